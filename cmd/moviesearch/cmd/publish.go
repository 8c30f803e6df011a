package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/event"
	pkgkafka "github.com/utafrali/moviesearch/pkg/kafka"
)

func newPublishCmd(opts *globalOptions) *cobra.Command {
	var (
		file  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish CSV rows as movie.upserted events",
		Long: `Reads a movie CSV and publishes every row to the
moviesearch.movie.upserted topic on KAFKA_BROKERS. A server running
with KAFKA_ENABLED=true upserts them into the live index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.DatasetPath
			}

			src, err := dataset.OpenCSV(file)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
			defer func() { _ = producer.Close() }()
			events := event.NewProducer(producer)

			ctx := cmd.Context()
			published, skipped := 0, 0
			for limit <= 0 || published < limit {
				rec, err := src.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				if err := events.PublishMovieUpserted(ctx, rec); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					skipped++
					log.Warn("row not published", slog.String("error", err.Error()))
					continue
				}
				published++
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d events to %s (%d skipped)\n",
				published, event.TopicMovieUpserted, skipped)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to publish (default DATASET_PATH)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many events (0 publishes all)")
	return cmd
}
