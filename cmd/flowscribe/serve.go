package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowscribe/flowscribe"
	"github.com/flowscribe/flowscribe/adapters/chromepage"
	"github.com/flowscribe/flowscribe/adapters/wsbridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the websocket message bridge and metrics",
	Long: `Run the privileged session process: the websocket bridge page agents and
UIs talk to at /ws, with Prometheus metrics at /metrics. When Chrome is
reachable the bridge also serves privileged screenshot capture.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from serve.addr config)")
	must(viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr")))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	var handlerOpts []flowscribe.HandlerOption
	handlerOpts = append(handlerOpts, flowscribe.WithHandlerLogger(app.logger))

	// Screenshot capture needs a live Chrome; without one the bridge still
	// serves session and flow traffic.
	browser, err := chromepage.Connect(ctx, viper.GetString("chrome.debug_url"),
		chromepage.WithLogger(app.logger))
	if err != nil {
		app.logger.Debug(ctx, "chrome unreachable, screenshot capture disabled", flowscribe.MKV{
			"error": err.Error(),
		})
	} else {
		defer browser.Close()
		handlerOpts = append(handlerOpts, flowscribe.WithHandlerCapturer(browser))
	}

	handler := flowscribe.NewHandler(app.manager, app.flows, app.blobs, handlerOpts...)
	bridge := wsbridge.New(handler, wsbridge.WithLogger(app.logger))

	mux := http.NewServeMux()
	mux.Handle("/ws", bridge)
	mux.Handle("/metrics", promhttp.Handler())

	addr := viper.GetString("serve.addr")
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	fmt.Printf("serving on %s (/ws, /metrics)\n", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
