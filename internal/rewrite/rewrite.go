// Package rewrite turns a natural-language question into a search string.
//
// Rewriting is best effort: every failure falls back to the caller's input,
// so search keeps working when the rewrite service is down or misbehaving.
package rewrite

import (
	"context"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/utafrali/moviesearch/internal/metrics"
	"github.com/utafrali/moviesearch/pkg/logger"
)

// Defaults.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 256
	DefaultMaxTokens = 50
)

// promptPrefix is prepended to the user's question.
const promptPrefix = "Generate a search query for: "

// Prompt returns the prompt sent to a generator for input.
func Prompt(input string) string {
	return promptPrefix + input
}

// Rewriter turns input into a search string. It never fails; on any
// problem it returns input unchanged.
type Rewriter interface {
	Rewrite(ctx context.Context, input string) string
}

// Generator is a fallible text generator, typically a remote model.
type Generator interface {
	Generate(ctx context.Context, input string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, input string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, input string) (string, error) {
	return f(ctx, input)
}

// Passthrough returns its input unchanged.
type Passthrough struct{}

func (Passthrough) Rewrite(_ context.Context, input string) string { return input }

// Config tunes a Client. CacheSize below zero disables caching.
type Config struct {
	Timeout   time.Duration
	CacheSize int
}

// Client wraps a Generator with a timeout, a result cache and fallback.
type Client struct {
	gen     Generator
	timeout time.Duration
	cache   *lru.Cache[string, string]
	logger  *slog.Logger
}

// NewClient creates a Client. Zero Config fields take their defaults.
func NewClient(gen Generator, cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	c := &Client{gen: gen, timeout: cfg.Timeout, logger: logger}
	if cfg.CacheSize > 0 {
		// lru.New only fails for a non-positive size.
		c.cache, _ = lru.New[string, string](cfg.CacheSize)
	}
	return c
}

// Rewrite asks the generator for a search string. Blank output, errors and
// timeouts all yield input unchanged. Only successful rewrites are cached.
func (c *Client) Rewrite(ctx context.Context, input string) string {
	key := strings.TrimSpace(input)
	if key == "" {
		return input
	}

	if c.cache != nil {
		if out, ok := c.cache.Get(key); ok {
			metrics.Rewrites.WithLabelValues(metrics.OutcomeCached).Inc()
			return out
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.gen.Generate(ctx, key)
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		metrics.Rewrites.WithLabelValues(metrics.OutcomeFallback).Inc()
		logger.WithContext(ctx, c.logger).Warn("query rewrite failed, using input as-is",
			"input", input,
			"error", err,
		)
		return input
	}

	if c.cache != nil {
		c.cache.Add(key, out)
	}
	metrics.Rewrites.WithLabelValues(metrics.OutcomeRewrite).Inc()
	return out
}
