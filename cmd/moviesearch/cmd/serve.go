package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/moviesearch/internal/app"
	"github.com/utafrali/moviesearch/pkg/tracing"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP search API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.HTTPPort = port
			}
			ctx := cmd.Context()

			tcfg := tracing.DefaultConfig(serviceName)
			tcfg.Environment = cfg.Environment
			tcfg.Enabled = cfg.TracingEnabled
			tcfg.OTLPEndpoint = cfg.TracingEndpoint
			tcfg.Insecure = cfg.TracingInsecure
			tcfg.SampleRate = cfg.TracingSampleRate
			shutdownTracing, err := tracing.InitTracer(ctx, tcfg)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

			log.Info("starting moviesearch",
				slog.String("environment", cfg.Environment),
				slog.Int("http_port", cfg.HTTPPort),
				slog.String("engine", cfg.SearchEngine),
				slog.String("index", cfg.IndexName),
			)

			application, err := app.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("run application: %w", err)
			}

			log.Info("moviesearch stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides HTTP_PORT)")
	return cmd
}
