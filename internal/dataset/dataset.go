// Package dataset provides sequential sources of raw records.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/utafrali/moviesearch/internal/domain"
)

// Source yields raw records one at a time and returns io.EOF when exhausted.
// Sources are finite and not restartable.
type Source interface {
	Next() (domain.RawRecord, error)
}

// CSV reads records from a CSV stream whose first row is the header.
type CSV struct {
	r      *csv.Reader
	header []string
	closer io.Closer
	line   int
}

// NewCSV creates a CSV source. The header is read lazily on the first Next.
func NewCSV(r io.Reader) *CSV {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &CSV{r: cr}
}

// OpenCSV opens a CSV file. Close releases the file.
func OpenCSV(path string) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	src := NewCSV(f)
	src.closer = f
	return src, nil
}

// Next returns the next row keyed by header name. Empty cells are nil,
// missing trailing cells are nil and surplus cells are dropped.
func (c *CSV) Next() (domain.RawRecord, error) {
	if c.header == nil {
		header, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		c.header = make([]string, len(header))
		for i, h := range header {
			c.header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}
		c.line = 1
	}

	row, err := c.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	c.line++
	if err != nil {
		return nil, fmt.Errorf("read csv line %d: %w", c.line, err)
	}

	rec := make(domain.RawRecord, len(c.header))
	for i, name := range c.header {
		if name == "" {
			continue
		}
		if i >= len(row) || row[i] == "" {
			rec[name] = nil
			continue
		}
		rec[name] = row[i]
	}
	return rec, nil
}

// Header returns the column names once the first record has been read.
func (c *CSV) Header() []string {
	return c.header
}

// Close closes the underlying file when the source was opened with OpenCSV.
func (c *CSV) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Records is an in-memory Source.
type Records struct {
	recs []domain.RawRecord
	pos  int
}

// FromRecords wraps a materialized slice.
func FromRecords(recs []domain.RawRecord) *Records {
	return &Records{recs: recs}
}

func (s *Records) Next() (domain.RawRecord, error) {
	if s.pos >= len(s.recs) {
		return nil, io.EOF
	}
	rec := s.recs[s.pos]
	s.pos++
	return rec, nil
}
