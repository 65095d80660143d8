// Package config loads the indexer and searcher configuration: built-in
// defaults, then an optional YAML file, then SP_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of requests per minute allowed from one
	// client address. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// IndexerConfig controls where the corpus is read from, where the index is
// written and how many files are processed concurrently.
type IndexerConfig struct {
	CorpusDir string `yaml:"corpusDir"`
	// IndexRoot holds the _00index directory. Empty means CorpusDir.
	IndexRoot    string   `yaml:"indexRoot"`
	Workers      int      `yaml:"workers"`
	Extensions   []string `yaml:"extensions"`
	SkipDirs     []string `yaml:"skipDirs"`
	VerifyOnLoad bool     `yaml:"verifyOnLoad"`
	StopWords    []string `yaml:"stopWords"`
}

// Root returns the directory the index directory lives in.
func (c IndexerConfig) Root() string {
	if c.IndexRoot != "" {
		return c.IndexRoot
	}
	return c.CorpusDir
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxResults      int           `yaml:"maxResults"`
	ParallelLookups int           `yaml:"parallelLookups"`
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// Compression packs cached results: none, lz4 or zstd.
	Compression string `yaml:"compression"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server. When PushGateway
// is set the indexer also pushes its metrics there after each run.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	PushGateway string `yaml:"pushGateway"`
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. Unknown YAML keys and malformed
// environment values are errors.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Indexer: IndexerConfig{
			CorpusDir:    ".",
			Workers:      4,
			Extensions:   []string{".txt"},
			VerifyOnLoad: true,
		},
		Search: SearchConfig{
			DefaultLimit:    10,
			MaxResults:      100,
			ParallelLookups: 8,
			QueryTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			CacheTTL:    60 * time.Second,
			Compression: "zstd",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "positional-search-group",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "positionalsearch",
			User:            "positionalsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Indexer.Workers <= 0 {
		errs = append(errs, fmt.Errorf("indexer.workers must be positive, got %d", c.Indexer.Workers))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults <= 0 {
		errs = append(errs, errors.New("search limits must be positive"))
	} else if c.Search.DefaultLimit > c.Search.MaxResults {
		errs = append(errs, fmt.Errorf("search.defaultLimit %d exceeds search.maxResults %d",
			c.Search.DefaultLimit, c.Search.MaxResults))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers must not be empty when kafka is enabled"))
	}
	if c.Search.ParallelLookups <= 0 {
		c.Search.ParallelLookups = 1
	}
	return errors.Join(errs...)
}

type envVar struct {
	name string
	set  func(string) error
}

func envVars(cfg *Config) []envVar {
	return []envVar{
		{"SP_SERVER_PORT", intVar(&cfg.Server.Port)},
		{"SP_SERVER_RATE_LIMIT", intVar(&cfg.Server.RateLimit)},
		{"SP_INDEXER_CORPUS_DIR", stringVar(&cfg.Indexer.CorpusDir)},
		{"SP_INDEXER_INDEX_ROOT", stringVar(&cfg.Indexer.IndexRoot)},
		{"SP_INDEXER_WORKERS", intVar(&cfg.Indexer.Workers)},
		{"SP_INDEXER_EXTENSIONS", listVar(&cfg.Indexer.Extensions)},
		{"SP_SEARCH_QUERY_TIMEOUT", durationVar(&cfg.Search.QueryTimeout)},
		{"SP_REDIS_ENABLED", boolVar(&cfg.Redis.Enabled)},
		{"SP_REDIS_ADDR", stringVar(&cfg.Redis.Addr)},
		{"SP_REDIS_PASSWORD", stringVar(&cfg.Redis.Password)},
		{"SP_REDIS_COMPRESSION", stringVar(&cfg.Redis.Compression)},
		{"SP_KAFKA_ENABLED", boolVar(&cfg.Kafka.Enabled)},
		{"SP_KAFKA_BROKERS", listVar(&cfg.Kafka.Brokers)},
		{"SP_POSTGRES_ENABLED", boolVar(&cfg.Postgres.Enabled)},
		{"SP_POSTGRES_HOST", stringVar(&cfg.Postgres.Host)},
		{"SP_POSTGRES_PORT", intVar(&cfg.Postgres.Port)},
		{"SP_POSTGRES_DATABASE", stringVar(&cfg.Postgres.Database)},
		{"SP_POSTGRES_USER", stringVar(&cfg.Postgres.User)},
		{"SP_POSTGRES_PASSWORD", stringVar(&cfg.Postgres.Password)},
		{"SP_POSTGRES_SSLMODE", stringVar(&cfg.Postgres.SSLMode)},
		{"SP_METRICS_ENABLED", boolVar(&cfg.Metrics.Enabled)},
		{"SP_METRICS_PUSH_GATEWAY", stringVar(&cfg.Metrics.PushGateway)},
		{"SP_LOGGING_LEVEL", stringVar(&cfg.Logging.Level)},
		{"SP_LOGGING_FORMAT", stringVar(&cfg.Logging.Format)},
	}
}

// applyEnv overrides cfg with every set SP_* variable.
func applyEnv(cfg *Config) error {
	var errs []error
	for _, v := range envVars(cfg) {
		raw, ok := os.LookupEnv(v.name)
		if !ok || raw == "" {
			continue
		}
		if err := v.set(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", v.name, raw, err))
		}
	}
	return errors.Join(errs...)
}

func stringVar(p *string) func(string) error {
	return func(s string) error { *p = s; return nil }
}

func intVar(p *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err == nil {
			*p = n
		}
		return err
	}
}

func boolVar(p *bool) func(string) error {
	return func(s string) error {
		b, err := strconv.ParseBool(s)
		if err == nil {
			*p = b
		}
		return err
	}
}

func durationVar(p *time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(s)
		if err == nil {
			*p = d
		}
		return err
	}
}

// listVar splits on commas and drops empty entries.
func listVar(p *[]string) func(string) error {
	return func(s string) error {
		var out []string
		for part := range strings.SplitSeq(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*p = out
		return nil
	}
}
