package analytics

import "time"

// SearchEvent describes one served search request.
type SearchEvent struct {
	Query      string        `json:"query"`
	Kind       string        `json:"kind"`
	Terms      []string      `json:"terms"`
	Generation uint64        `json:"generation"`
	TotalHits  int           `json:"total_hits"`
	Returned   int           `json:"returned"`
	Latency    time.Duration `json:"latency"`
	CacheHit   bool          `json:"cache_hit"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id"`
}
