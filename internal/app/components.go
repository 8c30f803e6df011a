package app

import (
	"fmt"
	"log/slog"

	"github.com/utafrali/moviesearch/internal/config"
	"github.com/utafrali/moviesearch/internal/engine"
	bleveengine "github.com/utafrali/moviesearch/internal/engine/bleve"
	esengine "github.com/utafrali/moviesearch/internal/engine/elasticsearch"
	"github.com/utafrali/moviesearch/internal/engine/memory"
	"github.com/utafrali/moviesearch/internal/indexer"
	"github.com/utafrali/moviesearch/internal/normalize"
	"github.com/utafrali/moviesearch/internal/rewrite"
	"github.com/utafrali/moviesearch/internal/service"
	"github.com/utafrali/moviesearch/pkg/httpclient"
)

// NewBackend opens the search backend selected by cfg.SearchEngine. The
// returned close function releases it and is never nil.
func NewBackend(cfg *config.Config, logger *slog.Logger) (engine.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(esengine.Config{
			Addresses:          cfg.ElasticsearchURLs,
			Username:           cfg.ElasticsearchUsername,
			Password:           cfg.ElasticsearchPassword,
			APIKey:             cfg.ElasticsearchAPIKey,
			InsecureSkipVerify: cfg.ElasticsearchInsecure,
			Timeout:            cfg.ElasticsearchTimeout,
			Refresh:            cfg.ElasticsearchRefresh,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index", cfg.IndexName),
		)
		return eng, noop, nil

	case config.EngineBleve:
		eng, err := bleveengine.New(bleveengine.Config{Dir: cfg.BleveDir}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init bleve engine: %w", err)
		}
		logger.Info("bleve search engine initialized", slog.String("dir", cfg.BleveDir))
		return eng, eng.Close, nil

	default:
		logger.Info("in-memory search engine initialized")
		return memory.New(), noop, nil
	}
}

// NewRewriter builds the query rewriter selected by cfg.RewriteProvider.
func NewRewriter(cfg *config.Config, logger *slog.Logger) rewrite.Rewriter {
	var gen rewrite.Generator
	switch cfg.RewriteProvider {
	case config.RewriteCompletion:
		hc := httpclient.DefaultConfig()
		hc.Timeout = cfg.RewriteTimeout
		breaker := httpclient.NewBreaker(httpclient.New(hc), httpclient.DefaultBreakerConfig("query-rewrite"), logger)
		gen = rewrite.NewCompletionGenerator(rewrite.CompletionConfig{
			URL:    cfg.RewriteAPIURL,
			APIKey: cfg.RewriteAPIKey,
			Model:  cfg.RewriteModel,
		}, breaker)
	case config.RewriteChat:
		gen = rewrite.NewChatGenerator(rewrite.ChatConfig{
			APIKey:  cfg.RewriteAPIKey,
			BaseURL: cfg.RewriteAPIURL,
			Model:   cfg.RewriteModel,
		})
	default:
		logger.Info("query rewrite disabled, questions are searched verbatim")
		return rewrite.Passthrough{}
	}

	logger.Info("query rewrite enabled", slog.String("provider", cfg.RewriteProvider))
	return rewrite.NewClient(gen, rewrite.Config{
		Timeout:   cfg.RewriteTimeout,
		CacheSize: cfg.RewriteCacheSize,
	}, logger)
}

// NewService wires a MovieService over backend.
func NewService(cfg *config.Config, backend engine.Backend, logger *slog.Logger) *service.MovieService {
	return service.New(backend, service.Config{
		Index: cfg.IndexName,
		Indexer: indexer.Config{
			BatchSize:    cfg.BatchSize,
			Workers:      cfg.Workers,
			BatchTimeout: cfg.BatchTimeout,
		},
		Normalize: normalize.Options{
			IDKeys:    cfg.DatasetIDColumns,
			TitleKeys: cfg.DatasetTitleColumns,
		},
		SearchTimeout: cfg.SearchTimeout,
	}, NewRewriter(cfg, logger), logger)
}
