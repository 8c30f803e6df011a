// Package schema (re)creates the search index with a fixed mapping.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// Manager owns index creation against one backend.
type Manager struct {
	backend engine.Backend
	logger  *slog.Logger
}

// New creates a Manager.
func New(backend engine.Backend, logger *slog.Logger) *Manager {
	return &Manager{backend: backend, logger: logger}
}

// EnsureIndex drops the index if it exists and creates it empty with
// mapping. Calling it twice leaves the same empty index. Backend errors are
// returned as-is and never retried.
func (m *Manager) EnsureIndex(ctx context.Context, name string, mapping domain.Mapping) error {
	if name == "" {
		return apperrors.InvalidInput("index name is required")
	}
	if len(mapping) == 0 {
		mapping = domain.IndexMapping()
	}

	exists, err := m.backend.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	if exists {
		if err := m.backend.Delete(ctx, name); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
		m.logger.Info("dropped existing index", "index", name)
	}

	if err := m.backend.Create(ctx, name, mapping); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	m.logger.Info("index ready", "index", name, "fields", len(mapping))
	return nil
}
