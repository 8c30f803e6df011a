package domain

import (
	"fmt"
	"time"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// AutoFuzziness is the Elasticsearch-style "AUTO" edit distance marker.
const AutoFuzziness = "AUTO"

// FilterSpec holds the structured constraints of a search request. Empty
// ReleaseFrom or ReleaseTo leaves that side of the date range open.
type FilterSpec struct {
	Query          string
	ReleaseFrom    string
	ReleaseTo      string
	MinPopularity  float64
	MinVoteAverage float64
	Limit          int
}

// YearRange returns the inclusive date bounds covering whole calendar years,
// e.g. YearRange(2000, 2023) is "2000-01-01".."2023-12-31".
func YearRange(from, to int) (string, string) {
	return fmt.Sprintf("%04d-01-01", from), fmt.Sprintf("%04d-12-31", to)
}

// TextClause is a relevance clause matching Query against Fields.
type TextClause struct {
	Query     string
	Fields    []string
	Fuzziness string
}

// DateRange is an inclusive date filter; an empty bound is open.
type DateRange struct {
	Field string
	From  string
	To    string
}

// NumericRange is an inclusive numeric filter; a nil bound is open.
type NumericRange struct {
	Field string
	Min   *float64
	Max   *float64
}

// Query is a backend-agnostic composite query. A nil Text matches every
// document; all ranges are non-scoring filters combined with AND.
type Query struct {
	Text          *TextClause
	DateRanges    []DateRange
	NumericRanges []NumericRange
	Limit         int
}

// Validate checks the filters for values no backend could interpret.
func (f FilterSpec) Validate() error {
	var from, to time.Time
	var err error
	if f.ReleaseFrom != "" {
		if from, err = time.Parse(DateLayout, f.ReleaseFrom); err != nil {
			return apperrors.InvalidInput("release_from must be a YYYY-MM-DD date")
		}
	}
	if f.ReleaseTo != "" {
		if to, err = time.Parse(DateLayout, f.ReleaseTo); err != nil {
			return apperrors.InvalidInput("release_to must be a YYYY-MM-DD date")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return apperrors.InvalidInput("release_from must not be after release_to")
	}
	if f.MinPopularity < 0 {
		return apperrors.InvalidInput("min_popularity must not be negative")
	}
	if f.MinVoteAverage < 0 {
		return apperrors.InvalidInput("min_vote_average must not be negative")
	}
	if f.Limit < 0 {
		return apperrors.InvalidInput("limit must not be negative")
	}
	return nil
}
