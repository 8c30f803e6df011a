// Package elasticsearch implements engine.Backend on top of the official
// go-elasticsearch client, talking to the REST API directly.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/moviesearch/internal/domain"
	"github.com/utafrali/moviesearch/internal/engine"
)

var _ engine.Backend = (*Engine)(nil)

// Config holds the connection settings.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	APIKey             string
	InsecureSkipVerify bool
	Timeout            time.Duration
	// Refresh is passed to the bulk API ("", "true", "false", "wait_for").
	Refresh string
}

// Engine is an Elasticsearch-backed implementation of engine.Backend.
type Engine struct {
	client  *elasticsearch.Client
	refresh string
	logger  *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a client for the given cluster. It does not touch any index.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed dev clusters
	}
	if cfg.Timeout > 0 {
		transport.ResponseHeaderTimeout = cfg.Timeout
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: transport,
		// Failed calls surface to the caller as a BackendError. The indexer
		// records a failed batch and moves on; it never resends it.
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return NewWithClient(client, cfg.Refresh, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *elasticsearch.Client, refresh string, logger *slog.Logger) *Engine {
	return &Engine{client: client, refresh: refresh, logger: logger}
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return domain.NewBackendError("ping", "", 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("ping", "", res)
	}
	return nil
}

// Exists reports whether the index exists.
func (e *Engine) Exists(ctx context.Context, index string) (bool, error) {
	res, err := e.client.Indices.Exists([]string{index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, domain.NewBackendError("exists", index, 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, responseError("exists", index, res)
	}
}

// Delete removes the index. A 404 response is treated as success.
func (e *Engine) Delete(ctx context.Context, index string) error {
	res, err := e.client.Indices.Delete([]string{index}, e.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return domain.NewBackendError("delete index", index, 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete index", index, res)
	}

	e.logger.Info("elasticsearch index deleted", "index", index)
	return nil
}

// Create creates the index with the given mapping.
func (e *Engine) Create(ctx context.Context, index string, mapping domain.Mapping) error {
	body, err := json.Marshal(indexBody(mapping))
	if err != nil {
		return fmt.Errorf("elasticsearch create index: marshal mapping: %w", err)
	}

	res, err := e.client.Indices.Create(
		index,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return domain.NewBackendError("create index", index, 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", index, res)
	}

	e.logger.Info("elasticsearch index created", "index", index)
	return nil
}

// BulkWrite indexes the items with the bulk NDJSON API and reports the
// per-item outcome.
func (e *Engine) BulkWrite(ctx context.Context, index string, items []domain.BulkItem) ([]domain.BulkItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range items {
		action := map[string]any{
			"index": map[string]any{"_index": index, "_id": items[i].ID},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode action: %w", err)
		}
		if err := enc.Encode(items[i].Document); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk: encode document: %w", err)
		}
	}

	opts := []func(*esapi.BulkRequest){
		e.client.Bulk.WithIndex(index),
		e.client.Bulk.WithContext(ctx),
	}
	if e.refresh != "" {
		opts = append(opts, e.client.Bulk.WithRefresh(e.refresh))
	}

	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()), opts...)
	if err != nil {
		return nil, domain.NewBackendError("bulk", index, 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("bulk", index, res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: decode response: %w", err)
	}

	results := make([]domain.BulkItemResult, len(items))
	for i := range items {
		results[i] = domain.BulkItemResult{ID: items[i].ID, Status: http.StatusInternalServerError, Error: "missing from bulk response"}
	}
	for i, item := range bulkResp.Items {
		if i >= len(results) {
			break
		}
		for _, r := range item {
			out := domain.BulkItemResult{ID: r.ID, Status: r.Status}
			if out.ID == "" {
				out.ID = items[i].ID
			}
			if r.Error != nil {
				out.Error = r.Error.Type + ": " + r.Error.Reason
			}
			results[i] = out
		}
	}

	e.logger.Debug("bulk indexed documents", "index", index, "count", len(items), "errors", bulkResp.Errors)
	return results, nil
}

// Search executes q against the index.
func (e *Engine) Search(ctx context.Context, index string, q *domain.Query) ([]engine.Hit, error) {
	data, err := json.Marshal(searchBody(q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, domain.NewBackendError("search", index, 0, "", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("search", index, res)
	}

	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	var esResp esSearchResponse
	if err := dec.Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]engine.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hits = append(hits, engine.Hit{ID: h.ID, Source: h.Source})
	}
	return hits, nil
}

// responseError converts an error response into a *domain.BackendError.
func responseError(op, index string, res *esapi.Response) error {
	reason := res.Status()
	body, _ := io.ReadAll(res.Body)
	var errResp esErrorResponse
	if len(body) > 0 && json.Unmarshal(body, &errResp) == nil && errResp.Error.Type != "" {
		reason = errResp.Error.Type + ": " + errResp.Error.Reason
	}
	return domain.NewBackendError(op, index, res.StatusCode, reason, nil)
}
