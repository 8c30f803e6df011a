// Package memory is a map-backed Backend with the same query semantics as the
// real engines. Tests use its fault injection hooks to simulate rejected
// batches and unavailable backends.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	"github.com/utafrali/moviesearch/internal/query"
)

var _ engine.Backend = (*Engine)(nil)

// ErrUnavailable is the cause reported while the engine is marked down.
var ErrUnavailable = errors.New("memory engine unavailable")

type index struct {
	mapping domain.Mapping
	docs    map[string]map[string]any
}

// Engine is an in-memory Backend. Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]*index

	// fault injection
	unavailable atomic.Bool
	bulkDelay   time.Duration
	failBatch   map[int]error
	rejectID    map[string]string
	searchErr   error

	bulkCalls   atomic.Int64
	batchSizes  []int
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		indices:   make(map[string]*index),
		failBatch: make(map[int]error),
		rejectID:  make(map[string]string),
	}
}

// SetUnavailable makes every call fail as a transport error.
func (e *Engine) SetUnavailable(down bool) { e.unavailable.Store(down) }

// SetBulkDelay delays every BulkWrite call.
func (e *Engine) SetBulkDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulkDelay = d
}

// FailBatch rejects the n-th BulkWrite call (1-based) with err. A
// *domain.BackendError is returned as is; anything else is reported as a 503.
func (e *Engine) FailBatch(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failBatch[n] = err
}

// RejectID makes BulkWrite reject the item with this id.
func (e *Engine) RejectID(id, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectID[id] = reason
}

// SetSearchError makes Search fail with err.
func (e *Engine) SetSearchError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.searchErr = err
}

// BulkCalls returns the number of BulkWrite calls so far.
func (e *Engine) BulkCalls() int { return int(e.bulkCalls.Load()) }

// BatchSizes returns the item count of every BulkWrite call, in call order.
func (e *Engine) BatchSizes() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]int(nil), e.batchSizes...)
}

// MaxConcurrentBulk is the highest number of overlapping BulkWrite calls seen.
func (e *Engine) MaxConcurrentBulk() int { return int(e.maxInFlight.Load()) }

// Count returns the number of documents in the index.
func (e *Engine) Count(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if idx, ok := e.indices[name]; ok {
		return len(idx.docs)
	}
	return 0
}

// Get returns a stored document body.
func (e *Engine) Get(name, id string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return nil, false
	}
	doc, ok := idx.docs[id]
	return doc, ok
}

// Mapping returns the mapping the index was created with.
func (e *Engine) Mapping(name string) (domain.Mapping, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[name]
	if !ok {
		return nil, false
	}
	return idx.mapping, true
}

func (e *Engine) down(op, name string) error {
	if e.unavailable.Load() {
		return domain.NewBackendError(op, name, 0, "", ErrUnavailable)
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewBackendError("ping", "", 0, "", err)
	}
	return e.down("ping", "")
}

func (e *Engine) Exists(_ context.Context, name string) (bool, error) {
	if err := e.down("exists", name); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

func (e *Engine) Delete(_ context.Context, name string) error {
	if err := e.down("delete index", name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices, name)
	return nil
}

func (e *Engine) Create(_ context.Context, name string, mapping domain.Mapping) error {
	if err := e.down("create index", name); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[name]; ok {
		return domain.NewBackendError("create index", name, http.StatusBadRequest, "resource_already_exists_exception", nil)
	}
	e.indices[name] = &index{mapping: mapping, docs: make(map[string]map[string]any)}
	return nil
}

// BulkWrite upserts items, auto-creating the index like Elasticsearch does.
func (e *Engine) BulkWrite(ctx context.Context, name string, items []domain.BulkItem) ([]domain.BulkItemResult, error) {
	call := int(e.bulkCalls.Add(1))

	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		max := e.maxInFlight.Load()
		if n <= max || e.maxInFlight.CompareAndSwap(max, n) {
			break
		}
	}

	e.mu.Lock()
	e.batchSizes = append(e.batchSizes, len(items))
	delay := e.bulkDelay
	failErr := e.failBatch[call]
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, domain.NewBackendError("bulk", name, 0, "", ctx.Err())
		case <-time.After(delay):
		}
	}
	if err := e.down("bulk", name); err != nil {
		return nil, err
	}
	if failErr != nil {
		var be *domain.BackendError
		if errors.As(failErr, &be) {
			return nil, be
		}
		return nil, domain.NewBackendError("bulk", name, http.StatusServiceUnavailable, "", failErr)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx, ok := e.indices[name]
	if !ok {
		idx = &index{mapping: domain.IndexMapping(), docs: make(map[string]map[string]any)}
		e.indices[name] = idx
	}

	results := make([]domain.BulkItemResult, len(items))
	for i, it := range items {
		if reason, bad := e.rejectID[it.ID]; bad {
			results[i] = domain.BulkItemResult{ID: it.ID, Status: http.StatusBadRequest, Error: reason}
			continue
		}
		status := http.StatusCreated
		if _, exists := idx.docs[it.ID]; exists {
			status = http.StatusOK
		}
		idx.docs[it.ID] = it.Document.Fields()
		results[i] = domain.BulkItemResult{ID: it.ID, Status: status}
	}
	return results, nil
}

type scored struct {
	id    string
	score int
	doc   map[string]any
}

func (e *Engine) Search(ctx context.Context, name string, q *domain.Query) ([]engine.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewBackendError("search", name, 0, "", err)
	}
	if err := e.down("search", name); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.searchErr != nil {
		return nil, domain.NewBackendError("search", name, 0, "", e.searchErr)
	}
	idx, ok := e.indices[name]
	if !ok {
		return nil, domain.NewBackendError("search", name, http.StatusNotFound, "index_not_found_exception", nil)
	}

	var terms []string
	if q.Text != nil {
		terms = query.Terms(q.Text.Query)
	}

	matched := make([]scored, 0)
	for id, doc := range idx.docs {
		if !passesFilters(doc, q) {
			continue
		}
		score := 0
		if q.Text != nil {
			score = textScore(doc, q.Text.Fields, terms)
			if score == 0 {
				continue
			}
		}
		matched = append(matched, scored{id: id, score: score, doc: doc})
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		pi, _ := matched[i].doc[domain.FieldPopularity].(float64)
		pj, _ := matched[j].doc[domain.FieldPopularity].(float64)
		if pi != pj {
			return pi > pj
		}
		return matched[i].id < matched[j].id
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	hits := make([]engine.Hit, 0, len(matched))
	for _, m := range matched {
		src := make(map[string]any, len(m.doc))
		for k, v := range m.doc {
			src[k] = v
		}
		hits = append(hits, engine.Hit{ID: m.id, Source: src})
	}
	return hits, nil
}

func passesFilters(doc map[string]any, q *domain.Query) bool {
	for _, r := range q.DateRanges {
		d, _ := doc[r.Field].(string)
		if r.From != "" && d < r.From {
			return false
		}
		if r.To != "" && d > r.To {
			return false
		}
	}
	for _, r := range q.NumericRanges {
		v, ok := number(doc[r.Field])
		if !ok {
			return false
		}
		if r.Min != nil && v < *r.Min {
			return false
		}
		if r.Max != nil && v > *r.Max {
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

// textScore counts query terms that fuzzily match a token in any field.
func textScore(doc map[string]any, fields, terms []string) int {
	var tokens []string
	for _, f := range fields {
		s, _ := doc[f].(string)
		tokens = append(tokens, query.Terms(s)...)
	}

	score := 0
	for _, term := range terms {
		maxEdits := query.MaxEdits(term)
		for _, tok := range tokens {
			if levenshtein(term, tok, maxEdits) <= maxEdits {
				score++
				break
			}
		}
	}
	return score
}

// levenshtein returns the edit distance between a and b, or limit+1 as soon
// as it is known to exceed limit.
func levenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// String is used in test failure output.
func (e *Engine) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indices))
	for n, idx := range e.indices {
		names = append(names, fmt.Sprintf("%s(%d)", n, len(idx.docs)))
	}
	sort.Strings(names)
	return "memory[" + strings.Join(names, " ") + "]"
}
