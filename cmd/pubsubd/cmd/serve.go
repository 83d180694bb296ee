package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/pubsubd/internal/app"
	"github.com/nfrund/pubsubd/internal/config"
	"github.com/nfrund/pubsubd/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker until interrupted",
	Long: `Run the broker. Configuration comes from the environment (and a .env
file if present): PUBSUB_LISTEN_ADDR, PUBSUB_HTTP_ADDR, PUBSUB_RESUBSCRIBE_POLICY,
PUBSUB_WRITE_TIMEOUT, PUBSUB_MAX_LINE_BYTES, PUBSUB_SHUTDOWN_TIMEOUT, LOG_FORMAT,
LOG_LEVEL and the PUBSUB_TRACING_* variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		if _, err := logging.New(cfg.LogFormat, cfg.LogLevel); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, err := app.Resolve(app.NewInjector(ctx, cfg))
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := deps.Close(closeCtx); err != nil {
				slog.Warn("Failed to release dependencies", logging.Err(err))
			}
		}()

		slog.Info("Starting broker",
			"listen_addr", cfg.ListenAddr,
			"http_addr", cfg.HTTPAddr,
			"resubscribe_policy", cfg.ResubscribePolicy,
		)
		return deps.Server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
