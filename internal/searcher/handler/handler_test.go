package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var searchCfg = config.SearchConfig{DefaultLimit: 10, MaxResults: 2}

func newEngine(t *testing.T, build bool) *indexer.Engine {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"d1.txt": "cat dog",
		"d2.txt": "dog bird",
		"d3.txt": "cat bird dog",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	e := indexer.NewEngine(config.IndexerConfig{CorpusDir: dir, Workers: 2, Extensions: []string{".txt"}})
	t.Cleanup(func() { e.Close() })
	if build {
		_, err := e.Rebuild(context.Background(), dir)
		require.NoError(t, err)
	}
	return e
}

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) executor.SearchResult {
	t.Helper()
	var res executor.SearchResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestSearchValidation(t *testing.T) {
	e := newEngine(t, true)
	h := New(executor.New(e), e, searchCfg)

	assert.Equal(t, http.StatusBadRequest, get(h.Search, "/api/v1/search").Code)
	assert.Equal(t, http.StatusBadRequest, get(h.Search, "/api/v1/search?q=dog&limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(h.Search, "/api/v1/search?q=dog&limit=x").Code)
}

func TestSearchFreeTextAndBoolean(t *testing.T) {
	e := newEngine(t, true)
	agg := analytics.NewAggregator(10)
	h := New(executor.New(e), e, config.SearchConfig{DefaultLimit: 10, MaxResults: 10}, WithAnalytics(agg))

	rec := get(h.Search, "/api/v1/search?q=dog")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode(t, rec)
	assert.Equal(t, "dog", res.Query)
	assert.Equal(t, 3, res.TotalHits)
	assert.Len(t, res.Results, 3)

	rec = get(h.Search, "/api/v1/search?q=cat+AND+bird")
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode(t, rec)
	assert.Equal(t, "and", res.Kind)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "d3.txt", filepath.Base(res.Results[0].Path))

	assert.Equal(t, int64(2), agg.Stats().TotalSearches)
}

func TestSearchLimitClampedToMax(t *testing.T) {
	e := newEngine(t, true)
	h := New(executor.New(e), e, searchCfg)
	res := decode(t, get(h.Search, "/api/v1/search?q=dog&limit=50"))
	assert.Equal(t, 3, res.TotalHits)
	assert.Len(t, res.Results, 2)
}

func TestSearchBeforeIndexLoaded(t *testing.T) {
	e := newEngine(t, false)
	h := New(executor.New(e), e, searchCfg)
	rec := get(h.Search, "/api/v1/search?q=dog")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "index is not built")

	assert.Equal(t, http.StatusServiceUnavailable, get(h.IndexStats, "/api/v1/index/stats").Code)
}

func TestIndexStats(t *testing.T) {
	e := newEngine(t, true)
	h := New(executor.New(e), e, searchCfg)
	rec := get(h.IndexStats, "/api/v1/index/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats indexer.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(3), stats.Documents)
	assert.Equal(t, int64(3), stats.Terms)
	assert.Equal(t, e.Generation(), stats.Generation)
}

func TestSearchUsesCache(t *testing.T) {
	e := newEngine(t, true)
	store := &memStore{data: map[string][]byte{}}
	qc := cache.New(store, time.Minute)
	h := New(executor.New(e), e, searchCfg, WithCache(qc))

	rec := get(h.Search, "/api/v1/search?q=dog")
	assert.Equal(t, "miss", rec.Header().Get(CacheHeader))
	first := decode(t, rec)
	rec = get(h.Search, "/api/v1/search?q=Dogs")
	assert.Equal(t, "hit", rec.Header().Get(CacheHeader))
	second := decode(t, rec)
	assert.Equal(t, "Dogs", second.Query)
	assert.Equal(t, first.Results, second.Results)
	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"keys_deleted":1`)
	assert.Empty(t, store.data)

	rec = get(h.CacheStats, "/api/v1/cache/stats")
	assert.Contains(t, rec.Body.String(), `"hit_rate":"50.0%"`)
	assert.Contains(t, rec.Body.String(), `"state":"closed"`)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	e := newEngine(t, true)
	h := New(executor.New(e), e, searchCfg)
	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, get(h.CacheStats, "/api/v1/cache/stats").Body.String(), "disabled")
}
