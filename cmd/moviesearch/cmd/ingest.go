package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/utafrali/moviesearch/internal/app"
	"github.com/utafrali/moviesearch/internal/dataset"
	"github.com/utafrali/moviesearch/internal/domain"
)

type ingestOptions struct {
	file      string
	batchSize int
	workers   int
	append    bool
	jsonOut   bool
}

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var o ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Recreate the index and load a movie CSV into it",
		Long: `Drops and recreates the movie index with the fixed mapping, then
streams the CSV into it in batches and prints the ingestion report.

Rows without a usable id are skipped and counted; other malformed
values fall back to defaults. With --append the index is kept and
rows are upserted by id.

Examples:
  moviesearch ingest --file data/top-rated-movies-from-tmdb.csv
  moviesearch ingest --batch-size 500 --workers 4
  moviesearch ingest --engine bleve --append --file extra.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if o.workers > 0 {
				cfg.Workers = o.workers
			}
			path := o.file
			if path == "" {
				path = cfg.DatasetPath
			}

			backend, closeBackend, err := app.NewBackend(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeBackend() }()
			svc := app.NewService(cfg, backend, log)

			src, err := dataset.OpenCSV(path)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			var report *domain.IndexReport
			if o.append {
				report, err = svc.Index(cmd.Context(), src, o.batchSize)
			} else {
				report, err = svc.Reindex(cmd.Context(), src, o.batchSize)
			}
			if report != nil {
				if perr := printReport(cmd.OutOrStdout(), report, o.jsonOut); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			if report.Outcome() == domain.OutcomeFailure {
				return fmt.Errorf("ingest %s: no rows were indexed", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.file, "file", "f", "", "CSV file to load (default DATASET_PATH)")
	cmd.Flags().IntVarP(&o.batchSize, "batch-size", "b", 0, "Rows per bulk request (default BATCH_SIZE)")
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 0, "Concurrent bulk requests (default INDEX_WORKERS)")
	cmd.Flags().BoolVar(&o.append, "append", false, "Keep the existing index and upsert into it")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r *domain.IndexReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*domain.IndexReport
			Outcome domain.Outcome `json:"outcome"`
		}{r, r.Outcome()})
	}

	if _, err := fmt.Fprintln(w, r.String()); err != nil {
		return err
	}
	for _, be := range r.BatchErrors {
		if _, err := fmt.Fprintf(w, "  batch %d (%d rows): %s\n", be.Batch, be.Size, be.Error); err != nil {
			return err
		}
	}
	for _, ve := range r.ValidationErrors {
		if _, err := fmt.Fprintf(w, "  skipped: %s\n", ve); err != nil {
			return err
		}
	}
	return nil
}
