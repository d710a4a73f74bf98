package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowscribe/flowscribe/remote"
)

var flowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "Manage saved flows",
}

var flowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved flows",
	RunE:  runFlowsList,
}

var flowsExportCmd = &cobra.Command{
	Use:   "export <flow-id>",
	Short: "Export a flow as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsExport,
}

var flowsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a flow from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsImport,
}

var flowsDeleteCmd = &cobra.Command{
	Use:   "delete <flow-id>",
	Short: "Delete a flow and its stored screenshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsDelete,
}

var flowsPushCmd = &cobra.Command{
	Use:   "push <flow-id>",
	Short: "Push a flow to the team flow service",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowsPush,
}

func init() {
	flowsExportCmd.Flags().String("out", "", "write the export to a file instead of stdout")
	flowsCmd.AddCommand(flowsListCmd, flowsExportCmd, flowsImportCmd, flowsDeleteCmd, flowsPushCmd)
	rootCmd.AddCommand(flowsCmd)
}

func runFlowsList(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	flows, err := app.flows.GetAllFlows(cmd.Context())
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		fmt.Println("no saved flows")
		return nil
	}
	for _, f := range flows {
		fmt.Printf("%s  %-30s  %d steps  %s\n",
			f.ID, f.Name, len(f.Steps), f.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runFlowsExport(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := app.flows.ExportFlow(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		fmt.Println(string(data))
		return nil
	}
	err = os.WriteFile(out, data, 0o644)
	if err != nil {
		return err
	}
	fmt.Printf("exported flow %s to %s\n", args[0], out)
	return nil
}

func runFlowsImport(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	flow, err := app.flows.ImportFlow(cmd.Context(), data)
	if err != nil {
		return err
	}
	fmt.Printf("imported flow %s (%q, %d steps)\n", flow.ID, flow.Name, len(flow.Steps))
	return nil
}

func runFlowsDelete(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	err = app.flows.DeleteFlow(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted flow %s\n", args[0])
	return nil
}

func runFlowsPush(cmd *cobra.Command, args []string) error {
	baseURL := viper.GetString("remote.base_url")
	if baseURL == "" {
		return fmt.Errorf("remote.base_url is not configured")
	}

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	flow, err := app.flows.GetFlowByID(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	client := remote.NewClient(baseURL,
		remote.WithToken(viper.GetString("remote.token")),
		remote.WithLogger(app.logger),
	)
	res, err := client.PushFlow(cmd.Context(), flow)
	if err != nil {
		return err
	}
	fmt.Printf("pushed flow %s as %s (%d steps)\n", flow.ID, res.ID, len(res.Steps))
	return nil
}
