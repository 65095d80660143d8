package analytics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorCounts(t *testing.T) {
	a := NewAggregator(100)
	start := a.startTime
	a.now = func() time.Time { return start.Add(2 * time.Minute) }

	a.Record(SearchEvent{Query: "dog", TotalHits: 3, Latency: 10 * time.Millisecond, Generation: 5})
	a.Record(SearchEvent{Query: " dog ", TotalHits: 3, Latency: 20 * time.Millisecond, CacheHit: true, Generation: 5})
	a.Record(SearchEvent{Query: "cow", TotalHits: 0, Latency: 30 * time.Millisecond, Generation: 6})
	a.Record(SearchEvent{Query: "cat AND bird", TotalHits: 1, Latency: 40 * time.Millisecond, Generation: 6})

	s := a.Stats()
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, uint64(6), s.LastGeneration)
	assert.InDelta(t, 25.0, s.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 30.0, s.P50LatencyMs, 1e-9)
	assert.InDelta(t, 40.0, s.P99LatencyMs, 1e-9)
	assert.InDelta(t, 2.0, s.QueriesPerMinute, 1e-9)
	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, QueryCount{Query: "dog", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "cow", Count: 1}}, s.ZeroResultQueries)
}

func TestLatencyWindowSlides(t *testing.T) {
	a := NewAggregator(2)
	a.Record(SearchEvent{Query: "a", TotalHits: 1, Latency: time.Second})
	a.Record(SearchEvent{Query: "b", TotalHits: 1, Latency: 2 * time.Millisecond})
	a.Record(SearchEvent{Query: "c", TotalHits: 1, Latency: 4 * time.Millisecond})
	s := a.Stats()
	assert.InDelta(t, 3.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(3), s.TotalSearches)
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator(10)
	a.Record(SearchEvent{Query: "dog", TotalHits: 1, Latency: time.Millisecond})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var s AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, int64(1), s.TotalSearches)
}

func TestStatsHandlerTop(t *testing.T) {
	a := NewAggregator(10)
	for _, q := range []string{"cat", "cat", "dog", "bird", "cow"} {
		a.Record(SearchEvent{Query: q, Latency: time.Millisecond})
	}
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search/stats?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var s AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	require.Len(t, s.TopQueries, 2)
	assert.Equal(t, QueryCount{Query: "cat", Count: 2}, s.TopQueries[0])
	assert.Len(t, s.ZeroResultQueries, 2)

	for _, bad := range []string{"0", "x", "101"} {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search/stats?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "top must be between 1 and 100")
	}
}
