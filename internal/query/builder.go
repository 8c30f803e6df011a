// Package query composes free text and structured filters into a
// backend-neutral domain.Query.
package query

import (
	"strings"

	"github.com/utafrali/moviesearch/internal/domain"
)

// Result size bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// TextFields are the fields the relevance clause matches against.
var TextFields = []string{domain.FieldTitle, domain.FieldOverview}

// Defaults returns the filter values the original search form started with:
// releases from 2000 through 2023, any popularity, rated 6.0 or better.
func Defaults() domain.FilterSpec {
	from, to := domain.YearRange(2000, 2023)
	return domain.FilterSpec{
		ReleaseFrom:    from,
		ReleaseTo:      to,
		MinPopularity:  0,
		MinVoteAverage: 6.0,
		Limit:          DefaultLimit,
	}
}

// Build returns a query that fuzzily matches freeText against TextFields,
// restricted by the filter ranges. Blank freeText matches every document.
// spec.Query is not consulted; callers pass the text they want matched,
// which may be a rewrite of spec.Query.
func Build(freeText string, spec domain.FilterSpec) *domain.Query {
	q := &domain.Query{Limit: clampLimit(spec.Limit)}

	if text := strings.TrimSpace(freeText); text != "" {
		q.Text = &domain.TextClause{
			Query:     text,
			Fields:    append([]string(nil), TextFields...),
			Fuzziness: domain.AutoFuzziness,
		}
	}

	if spec.ReleaseFrom != "" || spec.ReleaseTo != "" {
		q.DateRanges = []domain.DateRange{{
			Field: domain.FieldReleaseDate,
			From:  spec.ReleaseFrom,
			To:    spec.ReleaseTo,
		}}
	}

	minPopularity, minVote := spec.MinPopularity, spec.MinVoteAverage
	q.NumericRanges = []domain.NumericRange{
		{Field: domain.FieldPopularity, Min: &minPopularity},
		{Field: domain.FieldVoteAverage, Min: &minVote},
	}
	return q
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
