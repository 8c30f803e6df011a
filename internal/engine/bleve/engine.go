// Package bleve implements engine.Backend with an embedded bleve index, so
// the pipeline runs without an external cluster.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	"github.com/utafrali/moviesearch/internal/query"
)

var _ engine.Backend = (*Engine)(nil)

// textAnalyzer tokenizes on Unicode word boundaries and lowercases, without
// stemming or stop words.
const textAnalyzer = "movie_text"

// Config holds the engine settings. An empty Dir keeps every index in memory.
type Config struct {
	Dir string
}

// Engine is a bleve-backed implementation of engine.Backend.
type Engine struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	indices map[string]bleve.Index
}

// New creates an engine. Indexes are created on demand by Create.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("bleve: create data dir: %w", err)
		}
	}
	return &Engine{
		dir:     cfg.Dir,
		logger:  logger,
		indices: make(map[string]bleve.Index),
	}, nil
}

func (e *Engine) path(name string) string {
	return filepath.Join(e.dir, name+".bleve")
}

// open returns the named index, opening it from disk when needed.
func (e *Engine) open(name string) (bleve.Index, bool, error) {
	e.mu.RLock()
	idx, ok := e.indices[name]
	e.mu.RUnlock()
	if ok || e.dir == "" {
		return idx, ok, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indices[name]; ok {
		return idx, true, nil
	}
	idx, err := bleve.Open(e.path(name))
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e.indices[name] = idx
	return idx, true, nil
}

// Ping always succeeds; the index lives in-process.
func (e *Engine) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewBackendError("ping", "", 0, "", err)
	}
	return nil
}

func (e *Engine) Exists(_ context.Context, name string) (bool, error) {
	_, ok, err := e.open(name)
	if err != nil {
		return false, domain.NewBackendError("exists", name, 0, "", err)
	}
	return ok, nil
}

func (e *Engine) Delete(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if idx, ok := e.indices[name]; ok {
		if err := idx.Close(); err != nil {
			e.logger.Warn("bleve index close failed", "index", name, "error", err)
		}
		delete(e.indices, name)
	}
	if e.dir != "" {
		if err := os.RemoveAll(e.path(name)); err != nil {
			return domain.NewBackendError("delete index", name, 0, "", err)
		}
	}
	e.logger.Info("bleve index deleted", "index", name)
	return nil
}

func (e *Engine) Create(_ context.Context, name string, m domain.Mapping) error {
	if _, ok, err := e.open(name); err != nil {
		return domain.NewBackendError("create index", name, 0, "", err)
	} else if ok {
		return domain.NewBackendError("create index", name, http.StatusBadRequest, "resource_already_exists_exception", nil)
	}

	im, err := indexMapping(m)
	if err != nil {
		return fmt.Errorf("bleve create index: build mapping: %w", err)
	}

	var idx bleve.Index
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.New(e.path(name), im)
	}
	if err != nil {
		return domain.NewBackendError("create index", name, 0, "", err)
	}

	e.mu.Lock()
	e.indices[name] = idx
	e.mu.Unlock()

	e.logger.Info("bleve index created", "index", name, "persistent", e.dir != "")
	return nil
}

// indexMapping translates the neutral mapping into a static bleve mapping.
func indexMapping(m domain.Mapping) (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(textAnalyzer, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, err
	}

	doc := bleve.NewDocumentStaticMapping()
	for _, f := range m {
		var fm *mapping.FieldMapping
		switch f.Type {
		case domain.TypeText:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = textAnalyzer
		case domain.TypeDate:
			fm = bleve.NewDateTimeFieldMapping()
		case domain.TypeFloat, domain.TypeInteger:
			fm = bleve.NewNumericFieldMapping()
		default:
			return nil, fmt.Errorf("unsupported field type %q for %s", f.Type, f.Name)
		}
		fm.Store = true
		doc.AddFieldMappingsAt(f.Name, fm)
	}
	im.DefaultMapping = doc
	return im, nil
}

// BulkWrite indexes the items in one bleve batch. The index is created with
// the default mapping if it does not exist yet.
func (e *Engine) BulkWrite(ctx context.Context, name string, items []domain.BulkItem) ([]domain.BulkItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.NewBackendError("bulk", name, 0, "", err)
	}

	idx, ok, err := e.open(name)
	if err != nil {
		return nil, domain.NewBackendError("bulk", name, 0, "", err)
	}
	if !ok {
		if err := e.Create(ctx, name, domain.IndexMapping()); err != nil {
			return nil, err
		}
		idx, _, _ = e.open(name)
	}

	batch := idx.NewBatch()
	results := make([]domain.BulkItemResult, len(items))
	for i, it := range items {
		fields := it.Document.Fields()
		fields[domain.FieldVoteCount] = float64(it.Document.VoteCount)
		if err := batch.Index(it.ID, fields); err != nil {
			results[i] = domain.BulkItemResult{ID: it.ID, Status: http.StatusBadRequest, Error: err.Error()}
			continue
		}
		results[i] = domain.BulkItemResult{ID: it.ID, Status: http.StatusCreated}
	}

	if err := idx.Batch(batch); err != nil {
		return nil, domain.NewBackendError("bulk", name, 0, "", err)
	}
	return results, nil
}

func (e *Engine) Search(ctx context.Context, name string, q *domain.Query) ([]engine.Hit, error) {
	idx, ok, err := e.open(name)
	if err != nil {
		return nil, domain.NewBackendError("search", name, 0, "", err)
	}
	if !ok {
		return nil, domain.NewBackendError("search", name, http.StatusNotFound, "index_not_found_exception", nil)
	}

	size := q.Limit
	if size <= 0 {
		size = 10
	}
	req := bleve.NewSearchRequestOptions(buildQuery(q), size, 0, false)
	req.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, domain.NewBackendError("search", name, 0, "", err)
	}

	hits := make([]engine.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		src := make(map[string]any, len(h.Fields))
		for k, v := range h.Fields {
			src[k] = v
		}
		// Stored datetimes come back as RFC 3339; keep the date part.
		if d, ok := src[domain.FieldReleaseDate].(string); ok && len(d) > len(domain.DateLayout) {
			src[domain.FieldReleaseDate] = d[:len(domain.DateLayout)]
		}
		hits = append(hits, engine.Hit{ID: h.ID, Source: src})
	}
	return hits, nil
}

// buildQuery mirrors the Elasticsearch bool query: a fuzzy disjunction over
// every (term, field) pair, ANDed with the range filters.
func buildQuery(q *domain.Query) bquery.Query {
	var clauses []bquery.Query

	if q.Text != nil {
		var should []bquery.Query
		for _, term := range query.Terms(q.Text.Query) {
			for _, field := range q.Text.Fields {
				mq := bleve.NewMatchQuery(term)
				mq.SetField(field)
				if q.Text.Fuzziness != "" {
					mq.SetFuzziness(query.MaxEdits(term))
				}
				should = append(should, mq)
			}
		}
		if len(should) == 0 {
			return bleve.NewMatchNoneQuery()
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(should...))
	}

	inclusive := true
	for _, r := range q.DateRanges {
		if r.From == "" && r.To == "" {
			continue
		}
		dq := bleve.NewDateRangeInclusiveQuery(parseDate(r.From), parseDate(r.To), &inclusive, &inclusive)
		dq.SetField(r.Field)
		clauses = append(clauses, dq)
	}

	for _, r := range q.NumericRanges {
		if r.Min == nil && r.Max == nil {
			continue
		}
		nq := bleve.NewNumericRangeInclusiveQuery(r.Min, r.Max, &inclusive, &inclusive)
		nq.SetField(r.Field)
		clauses = append(clauses, nq)
	}

	switch len(clauses) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return clauses[0]
	default:
		return bleve.NewConjunctionQuery(clauses...)
	}
}

// parseDate returns the zero time, an open bound, for an empty or invalid date.
func parseDate(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Close closes every open index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for name, idx := range e.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(e.indices, name)
	}
	return errors.Join(errs...)
}
