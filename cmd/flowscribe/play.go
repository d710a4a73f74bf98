package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowscribe/flowscribe/adapters/chromepage"
	"github.com/flowscribe/flowscribe/playback"
)

var playCmd = &cobra.Command{
	Use:   "play <flow-id>",
	Short: "Replay a saved flow as a guided overlay on a Chrome tab",
	Long: `Walk a saved flow step by step on a live tab. Advance with ArrowRight in
the page (or Ctrl-C here to stop); ArrowLeft steps back, Escape stops.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().String("tab", "", "target id of the tab to play on (default first open tab)")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	flow, err := app.flows.GetFlowByID(ctx, args[0])
	if err != nil {
		return err
	}

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

	finished := make(chan struct{})
	engine := playback.New(page,
		playback.WithLogger(app.logger),
		playback.WithCallbacks(playback.Callbacks{
			StepShown: func(i int) {
				fmt.Printf("step %d/%d: %s\n", i+1, len(flow.Steps), flow.Steps[i].Explanation)
			},
			ElementLost: func(i int) {
				fmt.Printf("step %d: element not found, advance manually\n", i+1)
			},
			ActionSkipped: func(i int, reason string) {
				fmt.Printf("step %d: action skipped (%s)\n", i+1, reason)
			},
			Finished: func() {
				close(finished)
			},
		}),
	)

	page.BindKeys(func(k playback.Key) {
		err := engine.HandleKey(context.Background(), k)
		if err != nil {
			app.logger.Error(context.Background(), err)
		}
	})

	err = engine.Start(ctx, flow)
	if err != nil {
		return err
	}
	fmt.Printf("playing %q (%d steps) on tab %s\n", flow.Name, len(flow.Steps), tabID)

	select {
	case <-finished:
		fmt.Println("flow finished")
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	engine.Stop(stopCtx)
	return nil
}
