package indexer

import "github.com/utafrali/moviesearch/internal/domain"

// Batch accumulates bulk items up to a fixed capacity. A Batch is handed to
// exactly one submission and never reused.
type Batch struct {
	Seq   int
	Items []domain.BulkItem
	limit int
}

func newBatch(seq, limit int) *Batch {
	return &Batch{Seq: seq, Items: make([]domain.BulkItem, 0, limit), limit: limit}
}

// Add appends item and reports whether the batch is now full.
func (b *Batch) Add(item domain.BulkItem) bool {
	b.Items = append(b.Items, item)
	return len(b.Items) >= b.limit
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int { return len(b.Items) }
