package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/chromepage"
	"github.com/flowscribe/flowscribe/recorder"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a walkthrough from a Chrome tab",
	Long: `Attach to a Chrome tab and record clicks and navigations as steps until
interrupted (Ctrl-C). With --name the finished recording is saved as a flow.`,
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().String("tab", "", "target id of the tab to record (default first open tab)")
	recordCmd.Flags().String("name", "", "save the recording as a flow with this name")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	browser, err := chromepage.Connect(ctx, viper.GetString("chrome.debug_url"),
		chromepage.WithLogger(app.logger))
	if err != nil {
		return err
	}
	defer browser.Close()

	tabID, _ := cmd.Flags().GetString("tab")
	if tabID == "" {
		tabID, err = firstTab(ctx, browser)
		if err != nil {
			return err
		}
	}

	page, err := browser.AttachTab(ctx, tabID)
	if err != nil {
		return err
	}

	rec := recorder.New(app.manager,
		recorder.WithScreenshots(browser, app.pipeline),
		recorder.WithLogger(app.logger),
	)
	page.BindRecorder(rec)

	summary, err := app.manager.StartRecording(ctx, tabID)
	if err != nil {
		return err
	}
	rec.Start(tabID)

	fmt.Printf("recording on tab %s (state %s) - Ctrl-C to stop\n", tabID, summary.State)
	<-ctx.Done()
	rec.Stop()

	// The signal context is done; finalise with a fresh one.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	steps, err := app.manager.StopRecording(stopCtx)
	if err != nil {
		return err
	}
	fmt.Printf("recorded %d steps\n", len(steps))

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		fmt.Println("no --name given, recording discarded")
		return nil
	}

	flow := flowscribe.Flow{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Steps:     steps,
	}
	err = app.flows.SaveFlow(stopCtx, &flow)
	if err != nil {
		return err
	}
	fmt.Printf("saved flow %s (%q)\n", flow.ID, flow.Name)
	return nil
}

func firstTab(ctx context.Context, browser *chromepage.Browser) (string, error) {
	tabs, err := browser.Tabs(ctx)
	if err != nil {
		return "", err
	}
	if len(tabs) == 0 {
		return "", fmt.Errorf("no open tabs to attach to")
	}
	return tabs[0].ID, nil
}
