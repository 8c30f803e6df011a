package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// IdempotencyStore remembers processed event IDs. Implementations must be
// safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// MemoryIdempotencyStore is a bounded, expiring in-process store. Redelivery
// after a rebalance usually happens within seconds, so a modest window is
// enough to absorb it.
type MemoryIdempotencyStore struct {
	cache *expirable.LRU[string, struct{}]
}

// NewMemoryIdempotencyStore keeps at most size IDs, each for ttl.
func NewMemoryIdempotencyStore(size int, ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{cache: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	return s.cache.Contains(eventID), nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.cache.Add(eventID, struct{}{})
	return nil
}

// Len returns the number of remembered IDs.
func (s *MemoryIdempotencyStore) Len() int {
	return s.cache.Len()
}

// IdempotentHandler skips events whose ID was already handled successfully.
// Store failures fall through to processing.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.ID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.ID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}
		if seen {
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type),
			)
			return ErrDuplicate
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if err := store.Add(ctx, event.ID); err != nil {
			logger.WarnContext(ctx, "failed to record event id",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
