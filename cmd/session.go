// File: cmd/session.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-inspector/internal/browser/cdpdriver"
	"github.com/xkilldash9x/scalpel-inspector/internal/config"
	"github.com/xkilldash9x/scalpel-inspector/internal/inspector"
	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
	"github.com/xkilldash9x/scalpel-inspector/internal/observability"
)

const metricsNamespace = "scalpel_inspector"

func newSessionCmd() *cobra.Command {
	var (
		headed    bool
		remoteURL string
	)

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Open a browser session and serve inspector requests",
		Long: `Starts (or attaches to) a browser and serves inspector requests against it.

By default one JSON request is read per line from stdin and answered with one JSON
line on stdout. With --listen, requests arrive as websocket text messages on /ws and
Prometheus metrics are served on /metrics.

Operations: fetchElement, fetchElements, executeElementCommand, executeMethod,
restart, entries. The session ends when input closes or the browser session is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headed") {
				cfg.SetBrowserHeadless(!headed)
			}
			if cmd.Flags().Changed("remote-url") {
				cfg.SetBrowserRemoteURL(remoteURL)
			}
			return runSession(ctx, cfg, observability.GetLogger(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	sessionCmd.Flags().BoolVar(&headed, "headed", false, "Show the browser window. (Overrides config/env)")
	sessionCmd.Flags().StringVar(&remoteURL, "remote-url", "", "DevTools websocket URL of a running browser to attach to. (Overrides config/env)")
	sessionCmd.Flags().String("start-url", "", "URL to open once the session starts. (Overrides config/env)")
	sessionCmd.Flags().Duration("settle", 0, "Pause between a command and its snapshot, e.g. 250ms. (Overrides config/env)")
	sessionCmd.Flags().Duration("command-timeout", 0, "Timeout for each browser command. (Overrides config/env)")
	sessionCmd.Flags().String("listen", "", "Serve websocket clients on this address instead of stdin/stdout, e.g. 127.0.0.1:4723. (Overrides config/env)")

	return sessionCmd
}

// runSession wires the browser, driver and handler together and serves the
// configured transport.
func runSession(ctx context.Context, cfg config.Interface, logger *zap.Logger, in io.Reader, out io.Writer) error {
	allocCtx, cancelAlloc := cdpdriver.Allocate(ctx, cfg)
	defer cancelAlloc()

	driver, err := cdpdriver.NewDriver(allocCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("Error closing browser session.", zap.Error(err))
		}
	}()

	handler := methodhandler.New(driver, logger,
		methodhandler.WithSettleInterval(cfg.Inspector().SettleInterval),
	)
	logger.Info("Inspector session ready.",
		zap.String("handler_id", handler.ID()),
		zap.Bool("headless", cfg.Browser().Headless),
		zap.Bool("remote", cfg.Browser().RemoteURL != ""),
	)

	if start := cfg.Inspector().StartURL; start != "" {
		if _, err := handler.ExecuteMethod(ctx, "navigate", []any{start}); err != nil {
			return fmt.Errorf("failed to open start URL %q: %w", start, err)
		}
	}

	return serve(ctx, cfg.Inspector(), handler, logger, in, out)
}

// serve runs the transport selected by cfg over handler.
func serve(ctx context.Context, cfg config.InspectorConfig, handler *methodhandler.Handler, logger *zap.Logger, in io.Reader, out io.Writer) error {
	if cfg.ListenAddr == "" {
		return inspector.ServeLines(ctx, inspector.NewDispatcher(handler, nil, logger), in, out)
	}

	metrics := observability.NewMetrics(metricsNamespace)
	dispatcher := inspector.NewDispatcher(handler, metrics, logger)
	return inspector.NewServer(dispatcher, cfg.AllowedOrigins, metrics, logger).ListenAndServe(ctx, cfg.ListenAddr)
}
