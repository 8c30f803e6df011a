// Package cmd provides the CLI commands for moviesearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/moviesearch/internal/config"
	"github.com/utafrali/moviesearch/pkg/logger"
)

const serviceName = "moviesearch"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	logLevel string
	engine   string
	index    string
}

// load reads the environment configuration and applies flag overrides.
func (o *globalOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.engine != "" {
		cfg.SearchEngine = o.engine
	}
	if o.index != "" {
		cfg.IndexName = o.index
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	// stdout carries command output; logs go to stderr.
	return cfg, logger.NewWithWriter(serviceName, cfg.LogLevel, os.Stderr), nil
}

// NewRootCmd creates the root command for the moviesearch CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "moviesearch",
		Short: "Index a movie dataset and search it with natural-language questions",
		Long: `moviesearch loads a TMDB-style movie CSV into a search index
(Elasticsearch, an embedded bleve index, or memory) and answers
filtered, fuzzy full-text searches over title and overview.

Configuration comes from the environment (ELASTICSEARCH_URL,
DEEPSEEK_API_URL, SEARCH_ENGINE, ...); flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.engine, "engine", "", "Search backend: elasticsearch, bleve, memory (overrides SEARCH_ENGINE)")
	cmd.PersistentFlags().StringVar(&opts.index, "index", "", "Index name (overrides INDEX_NAME)")

	cmd.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newSearchCmd(opts),
		newPublishCmd(opts),
	)
	return cmd
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
