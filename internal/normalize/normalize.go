// Package normalize turns raw dataset rows into canonical documents.
//
// Only the id is mandatory. Every other field falls back to its default when
// it is absent or malformed, so a partially dirty dataset still loads as
// many rows as possible.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/utafrali/moviesearch/internal/domain"
)

// Options configures source column names.
type Options struct {
	IDKeys    []string
	TitleKeys []string
}

// DefaultOptions matches the TMDB top-rated CSV export.
func DefaultOptions() Options {
	return Options{
		IDKeys:    []string{"id"},
		TitleKeys: []string{"original_title", "title"},
	}
}

// Normalizer applies Options to rows. The zero value is not usable; use New.
type Normalizer struct {
	opts Options
}

// New creates a Normalizer, filling empty option lists with the defaults.
func New(opts Options) *Normalizer {
	def := DefaultOptions()
	if len(opts.IDKeys) == 0 {
		opts.IDKeys = def.IDKeys
	}
	if len(opts.TitleKeys) == 0 {
		opts.TitleKeys = def.TitleKeys
	}
	return &Normalizer{opts: opts}
}

var std = New(DefaultOptions())

// Normalize converts one row with the default options. row is the 1-based
// position used to tag validation errors.
func Normalize(row int, raw domain.RawRecord) (domain.Document, error) {
	return std.Normalize(row, raw)
}

// Normalize converts one row into a Document or returns a
// *domain.ValidationError when the row has no usable id.
func (n *Normalizer) Normalize(row int, raw domain.RawRecord) (domain.Document, error) {
	id, err := n.id(row, raw)
	if err != nil {
		return domain.Document{}, err
	}

	return domain.Document{
		ID:          id,
		Title:       n.title(raw),
		Overview:    stringOr(raw["overview"], ""),
		ReleaseDate: date(raw["release_date"]),
		Popularity:  nonNegativeFloat(raw["popularity"]),
		VoteAverage: nonNegativeFloat(raw["vote_average"]),
		VoteCount:   count(raw["vote_count"]),
	}, nil
}

func (n *Normalizer) id(row int, raw domain.RawRecord) (string, error) {
	var (
		key   = n.opts.IDKeys[0]
		value any
	)
	for _, k := range n.opts.IDKeys {
		if v, ok := raw[k]; ok && v != nil {
			key, value = k, v
			break
		}
	}
	if value == nil {
		return "", &domain.ValidationError{Row: row, Field: key, Reason: "missing id"}
	}

	id, ok := coerceID(value)
	if !ok {
		return "", &domain.ValidationError{Row: row, Field: key, Value: value, Reason: "id must be a non-empty string or an integer"}
	}
	return id, nil
}

func coerceID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return integralFloat(t)
	case float32:
		return integralFloat(float64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if f, err := t.Float64(); err == nil {
			return integralFloat(f)
		}
		return "", false
	default:
		return "", false
	}
}

func integralFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

func (n *Normalizer) title(raw domain.RawRecord) string {
	for _, k := range n.opts.TitleKeys {
		if s := strings.TrimSpace(stringOr(raw[k], "")); s != "" {
			return s
		}
	}
	return domain.UnknownTitle
}

func stringOr(v any, def string) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return def
	}
}

// date accepts YYYY-MM-DD or an RFC 3339 timestamp (truncated to its date).
func date(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case time.Time:
		if t.IsZero() {
			return domain.EpochDate
		}
		return t.Format(domain.DateLayout)
	default:
		return domain.EpochDate
	}

	if d, err := time.Parse(domain.DateLayout, s); err == nil {
		return d.Format(domain.DateLayout)
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.Format(domain.DateLayout)
	}
	return domain.EpochDate
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func nonNegativeFloat(v any) float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// count accepts integers and integral floats ("12.0" is 12).
func count(v any) int {
	f, ok := toFloat(v)
	if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}
