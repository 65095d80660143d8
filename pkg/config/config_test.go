package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, ".", cfg.Indexer.Root())
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "index.complete", cfg.Kafka.Topics.IndexComplete)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
indexer:
  corpusDir: /data/corpus
  indexRoot: /data/index
  workers: 2
  extensions: [".txt", ".md"]
search:
  defaultLimit: 5
redis:
  enabled: true
  cacheTTL: 2m
`), 0644))
	t.Setenv("SP_INDEXER_WORKERS", "6")
	t.Setenv("SP_REDIS_ADDR", "cache:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/corpus", cfg.Indexer.CorpusDir)
	assert.Equal(t, "/data/index", cfg.Indexer.Root())
	assert.Equal(t, 6, cfg.Indexer.Workers)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Indexer.Extensions)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxResults)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  defaultLimit: 500\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}

func TestRateLimitAndCompression(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Server.RateLimit)
	assert.Equal(t, "zstd", cfg.Redis.Compression)

	t.Setenv("SP_SERVER_RATE_LIMIT", "120")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Server.RateLimit)

	t.Setenv("SP_SERVER_RATE_LIMIT", "-1")
	_, err = Load("")
	require.Error(t, err)
}

func TestPushGatewayFromEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Metrics.PushGateway)

	t.Setenv("SP_METRICS_PUSH_GATEWAY", "http://pushgateway:9091")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushGateway)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("SP_INDEXER_WORKERS", "many")
	t.Setenv("SP_REDIS_ENABLED", "perhaps")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SP_INDEXER_WORKERS")
	assert.Contains(t, err.Error(), "SP_REDIS_ENABLED")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  defaultLimt: 5\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaultLimt")
}

func TestEnvListsAndDurations(t *testing.T) {
	t.Setenv("SP_KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SP_SEARCH_QUERY_TIMEOUT", "750ms")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.QueryTimeout)
}

func TestEmptyConfigFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}
