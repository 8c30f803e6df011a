package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/moviesearch/pkg/config"
)

// Search backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
	EngineMemory        = "memory"
)

// Query rewrite providers.
const (
	RewriteNone       = "none"
	RewriteCompletion = "completion"
	RewriteChat       = "chat"
)

// Config holds all configuration for moviesearch.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort      int           `env:"HTTP_PORT" envDefault:"8080"`
	CORSOrigins   []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	SearchTimeout time.Duration `env:"SEARCH_TIMEOUT" envDefault:"10s"`

	// Search engine selection (elasticsearch, bleve or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	IndexName    string `env:"INDEX_NAME" envDefault:"imdb_movies"`

	// Elasticsearch
	ElasticsearchURLs     []string      `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string        `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchAPIKey   string        `env:"ELASTICSEARCH_API_KEY"`
	ElasticsearchInsecure bool          `env:"ELASTICSEARCH_INSECURE_SKIP_VERIFY" envDefault:"false"`
	ElasticsearchTimeout  time.Duration `env:"ELASTICSEARCH_TIMEOUT" envDefault:"30s"`
	ElasticsearchRefresh  string        `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`

	// Bleve
	BleveDir string `env:"BLEVE_DIR" envDefault:"data/bleve"`

	// Ingestion
	DatasetPath string `env:"DATASET_PATH" envDefault:"data/top-rated-movies-from-tmdb.csv"`
	// Source columns tried in order for the id and the title.
	DatasetIDColumns    []string      `env:"DATASET_ID_COLUMNS" envDefault:"id" envSeparator:","`
	DatasetTitleColumns []string      `env:"DATASET_TITLE_COLUMNS" envDefault:"original_title,title" envSeparator:","`
	BatchSize           int           `env:"BATCH_SIZE" envDefault:"100"`
	Workers             int           `env:"INDEX_WORKERS" envDefault:"1"`
	BatchTimeout        time.Duration `env:"BATCH_TIMEOUT" envDefault:"30s"`

	// Query rewrite (none, completion or chat)
	RewriteProvider  string        `env:"REWRITE_PROVIDER" envDefault:"none"`
	RewriteAPIURL    string        `env:"DEEPSEEK_API_URL"`
	RewriteAPIKey    string        `env:"DEEPSEEK_API_KEY"`
	RewriteModel     string        `env:"REWRITE_MODEL"`
	RewriteTimeout   time.Duration `env:"REWRITE_TIMEOUT" envDefault:"10s"`
	RewriteCacheSize int           `env:"REWRITE_CACHE_SIZE" envDefault:"256"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"moviesearch"`

	// Redis holds consumer idempotency keys when set; otherwise they stay in memory.
	RedisURL       string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`

	// Tracing
	TracingEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	TracingEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TracingSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load moviesearch config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return fmt.Errorf("ELASTICSEARCH_URL is required for the elasticsearch engine")
		}
	case EngineBleve:
		if c.BleveDir == "" {
			return fmt.Errorf("BLEVE_DIR is required for the bleve engine")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("invalid search engine %q: want elasticsearch, bleve or memory", c.SearchEngine)
	}
	if c.IndexName == "" {
		return fmt.Errorf("INDEX_NAME must not be empty")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	switch c.RewriteProvider {
	case RewriteNone:
	case RewriteCompletion:
		if c.RewriteAPIURL == "" {
			return fmt.Errorf("DEEPSEEK_API_URL is required for the completion rewrite provider")
		}
	case RewriteChat:
		if c.RewriteAPIKey == "" {
			return fmt.Errorf("DEEPSEEK_API_KEY is required for the chat rewrite provider")
		}
	default:
		return fmt.Errorf("invalid rewrite provider %q: want none, completion or chat", c.RewriteProvider)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("invalid trace sample rate: %v", c.TracingSampleRate)
	}
	return nil
}
