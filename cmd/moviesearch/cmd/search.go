package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utafrali/moviesearch/internal/app"
	"github.com/utafrali/moviesearch/internal/config"
	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/query"
	"github.com/utafrali/moviesearch/internal/service"
)

type searchOptions struct {
	yearFrom       int
	yearTo         int
	minPopularity  float64
	minVoteAverage float64
	size           int
	noRewrite      bool
	jsonOut        bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var o searchOptions

	cmd := &cobra.Command{
		Use:   "search [question...]",
		Short: "Search the movie index",
		Long: `Turns the question into a search query (through the configured
rewrite provider, falling back to the question itself) and runs a fuzzy
title/overview search restricted by release year, popularity and rating.

With no question every movie matching the filters is returned.

Examples:
  moviesearch search "Find action movies with high ratings"
  moviesearch search space exploration --year-from 1960 --min-vote-average 7.5
  moviesearch search --no-rewrite "godfather" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if o.noRewrite {
				cfg.RewriteProvider = config.RewriteNone
			}

			backend, closeBackend, err := app.NewBackend(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeBackend() }()
			svc := app.NewService(cfg, backend, log)

			from, to := domain.YearRange(o.yearFrom, o.yearTo)
			res, err := svc.Ask(cmd.Context(), domain.FilterSpec{
				Query:          strings.Join(args, " "),
				ReleaseFrom:    from,
				ReleaseTo:      to,
				MinPopularity:  o.minPopularity,
				MinVoteAverage: o.minVoteAverage,
				Limit:          o.size,
			})
			if err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), res, o.jsonOut)
		},
	}

	def := query.Defaults()
	cmd.Flags().IntVar(&o.yearFrom, "year-from", 2000, "Earliest release year")
	cmd.Flags().IntVar(&o.yearTo, "year-to", 2023, "Latest release year")
	cmd.Flags().Float64Var(&o.minPopularity, "min-popularity", def.MinPopularity, "Minimum popularity")
	cmd.Flags().Float64Var(&o.minVoteAverage, "min-vote-average", def.MinVoteAverage, "Minimum vote average (0-10)")
	cmd.Flags().IntVarP(&o.size, "size", "n", def.Limit, "Maximum number of results")
	cmd.Flags().BoolVar(&o.noRewrite, "no-rewrite", false, "Search the question verbatim")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func printResults(w io.Writer, res *service.AskResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	var b strings.Builder
	if res.Query != res.Question {
		fmt.Fprintf(&b, "Search query: %s\n", res.Query)
	}
	fmt.Fprintf(&b, "Found %d results:\n", len(res.Results))
	for _, r := range res.Results {
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
		fmt.Fprintf(&b, "Overview: %s\n", r.Overview)
		fmt.Fprintf(&b, "Release Date: %s\n", r.ReleaseDate)
		fmt.Fprintf(&b, "Popularity: %g\n", r.Popularity)
		fmt.Fprintf(&b, "Vote Average: %g\n", r.VoteAverage)
		fmt.Fprintf(&b, "Vote Count: %d\n", r.VoteCount)
		b.WriteString(strings.Repeat("-", 40) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
