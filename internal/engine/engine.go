// Package engine defines the search backend contract. Implementations live
// in subpackages: elasticsearch (remote), bleve (embedded) and memory.
package engine

import (
	"context"

	"github.com/utafrali/moviesearch/internal/domain"
)

// Hit is one raw search hit: the backend key and the stored fields.
type Hit struct {
	ID     string
	Source map[string]any
}

// Backend is the storage and search surface the pipeline depends on. Errors
// are *domain.BackendError so callers can classify them.
type Backend interface {
	// Exists reports whether the index exists.
	Exists(ctx context.Context, index string) (bool, error)
	// Delete removes the index. A missing index is not an error.
	Delete(ctx context.Context, index string) error
	// Create creates the index with the given mapping.
	Create(ctx context.Context, index string, mapping domain.Mapping) error
	// BulkWrite upserts items keyed by ID. A non-nil error means the whole
	// batch was rejected; otherwise one result per item is returned in order.
	BulkWrite(ctx context.Context, index string, items []domain.BulkItem) ([]domain.BulkItemResult, error)
	// Search runs q and returns at most q.Limit hits.
	Search(ctx context.Context, index string, q *domain.Query) ([]Hit, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
