// Package e2e exercises a running searcher over HTTP. The searcher is
// expected to serve an index built by the indexer binary; every test skips
// when the searcher cannot be reached.
//
// Prerequisites:
//   - cmd/indexer has built an index over a corpus that contains E2E_TERM
//   - cmd/searcher is serving that index
//   - Redis running if the cache assertions should apply
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	SearcherURL string
	Term        string
	Limit       int
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		SearcherURL: envOrDefault("E2E_SEARCHER_URL", "http://localhost:8080"),
		Term:        envOrDefault("E2E_TERM", "search"),
		Limit:       envOrDefaultInt("E2E_LIMIT", 5),
	}
}

var client = &http.Client{Timeout: 5 * time.Second}

type searchResponse struct {
	Query      string         `json:"query"`
	Kind       string         `json:"kind"`
	Terms      []string       `json:"terms"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Results    []hit          `json:"results"`
	TermStats  map[string]int `json:"term_stats"`
}

type hit struct {
	DocID uint32  `json:"doc_id"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

func getJSON(t *testing.T, rawURL string, out any) *http.Response {
	t.Helper()
	resp, err := client.Get(rawURL)
	if err != nil {
		t.Skipf("searcher unavailable: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decoding %s: %v: %s", rawURL, err, body)
		}
	}
	return resp
}

func searchURL(cfg e2eConfig, q string, limit int) string {
	v := url.Values{}
	v.Set("q", q)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	return cfg.SearcherURL + "/api/v1/search?" + v.Encode()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestSearcherHealth verifies the liveness and readiness probes.
func TestSearcherHealth(t *testing.T) {
	cfg := loadE2EConfig()
	for _, path := range []string{"/health/live", "/health/ready"} {
		t.Run(path, func(t *testing.T) {
			resp := getJSON(t, cfg.SearcherURL+path, nil)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
		})
	}
}

// TestIndexStats verifies a generation is being served.
func TestIndexStats(t *testing.T) {
	cfg := loadE2EConfig()
	var stats struct {
		Generation uint64 `json:"generation"`
		Documents  int64  `json:"documents"`
		Terms      int64  `json:"terms"`
	}
	resp := getJSON(t, cfg.SearcherURL+"/api/v1/index/stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stats.Generation == 0 || stats.Documents == 0 || stats.Terms == 0 {
		t.Errorf("expected a non-empty index, got %+v", stats)
	}
}

// TestFreeTextSearch verifies ranking order and the limit.
func TestFreeTextSearch(t *testing.T) {
	cfg := loadE2EConfig()
	var res searchResponse
	resp := getJSON(t, searchURL(cfg, cfg.Term, cfg.Limit), &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if res.Kind != "free_text" {
		t.Errorf("expected free_text, got %q", res.Kind)
	}
	if len(res.Results) > cfg.Limit {
		t.Errorf("expected at most %d results, got %d", cfg.Limit, len(res.Results))
	}
	if res.TotalHits == 0 {
		t.Skipf("term %q not in the served corpus", cfg.Term)
	}
	for i := 1; i < len(res.Results); i++ {
		if res.Results[i].Score > res.Results[i-1].Score {
			t.Errorf("results not sorted by score at %d: %v > %v", i, res.Results[i].Score, res.Results[i-1].Score)
		}
	}
}

// TestBooleanSearchIsSubset checks that "t AND t" matches the same
// documents as t alone.
func TestBooleanSearchIsSubset(t *testing.T) {
	cfg := loadE2EConfig()
	var single, both searchResponse
	getJSON(t, searchURL(cfg, cfg.Term, 0), &single)
	resp := getJSON(t, searchURL(cfg, cfg.Term+" AND "+cfg.Term, 0), &both)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if both.Kind != "and" {
		t.Errorf("expected and, got %q", both.Kind)
	}
	if both.TotalHits != single.TotalHits {
		t.Errorf("expected %d hits, got %d", single.TotalHits, both.TotalHits)
	}
}

// TestSearchRejectsEmptyQuery verifies input validation.
func TestSearchRejectsEmptyQuery(t *testing.T) {
	cfg := loadE2EConfig()
	resp := getJSON(t, cfg.SearcherURL+"/api/v1/search", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// TestRepeatedQueryHitsCache verifies the second identical query is counted
// as a cache hit when Redis is configured.
func TestRepeatedQueryHitsCache(t *testing.T) {
	cfg := loadE2EConfig()
	type cacheStats struct {
		Status string `json:"status"`
		Hits   int64  `json:"hits"`
	}
	var before, after cacheStats
	getJSON(t, cfg.SearcherURL+"/api/v1/cache/stats", &before)
	if before.Status == "disabled" {
		t.Skip("query cache disabled")
	}
	q := cfg.Term + " " + strconv.FormatInt(time.Now().UnixNano(), 36)
	getJSON(t, searchURL(cfg, q, 3), nil)
	resp := getJSON(t, searchURL(cfg, q, 3), nil)
	if got := resp.Header.Get("X-Cache"); got != "hit" {
		t.Errorf("expected X-Cache hit, got %q", got)
	}
	getJSON(t, cfg.SearcherURL+"/api/v1/cache/stats", &after)
	if after.Hits <= before.Hits {
		t.Errorf("expected hits to grow from %d, got %d", before.Hits, after.Hits)
	}
}

// TestSearchStats verifies the analytics window records queries.
func TestSearchStats(t *testing.T) {
	cfg := loadE2EConfig()
	getJSON(t, searchURL(cfg, cfg.Term, 1), nil)
	var stats struct {
		TotalSearches int64 `json:"total_searches"`
	}
	resp := getJSON(t, cfg.SearcherURL+"/api/v1/search/stats", &stats)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if stats.TotalSearches == 0 {
		t.Error("expected at least one recorded query")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
