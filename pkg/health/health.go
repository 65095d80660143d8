// Package health probes the searcher's dependencies and serves liveness and
// readiness endpoints. Required dependencies (the loaded index) fail
// readiness; optional ones (the result cache) only degrade it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Dependency is one probed component.
type Dependency struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
	// Timeout bounds a single Check call. Zero means two seconds.
	Timeout time.Duration
}

type ComponentHealth struct {
	Status   Status `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type Checker struct {
	cacheFor time.Duration
	now      func() time.Time
	started  time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	deps   []Dependency
	last   Report
	lastAt time.Time
}

type Option func(*Checker)

// WithCacheFor reuses a report for d so frequent readiness probes do not
// hammer Redis.
func WithCacheFor(d time.Duration) Option {
	return func(c *Checker) { c.cacheFor = d }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		now:    time.Now,
		logger: slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Add registers d, replacing any dependency with the same name.
func (c *Checker) Add(d Dependency) {
	if d.Timeout <= 0 {
		d.Timeout = defaultCheckTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.deps {
		if c.deps[i].Name == d.Name {
			c.deps[i] = d
			c.lastAt = time.Time{}
			return
		}
	}
	c.deps = append(c.deps, d)
	c.lastAt = time.Time{}
}

// Run probes every dependency concurrently, or returns the previous report
// while it is younger than the cache period.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	if c.cacheFor > 0 && !c.lastAt.IsZero() && c.now().Sub(c.lastAt) < c.cacheFor {
		report := c.last
		c.mu.Unlock()
		return report
	}
	deps := append([]Dependency(nil), c.deps...)
	c.mu.Unlock()

	results := make([]ComponentHealth, len(deps))
	var g errgroup.Group
	for i, d := range deps {
		g.Go(func() error {
			results[i] = c.probe(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(deps)),
		Timestamp:  c.now().UTC(),
	}
	for i, d := range deps {
		report.Components[d.Name] = results[i]
		switch {
		case results[i].Status == StatusDown:
			report.Status = StatusDown
		case results[i].Status == StatusDegraded && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}

	c.mu.Lock()
	c.last, c.lastAt = report, c.now()
	c.mu.Unlock()
	return report
}

func (c *Checker) probe(ctx context.Context, d Dependency) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	start := time.Now()
	err := d.Check(ctx)
	h := ComponentHealth{
		Status:   StatusUp,
		Optional: d.Optional,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		h.Status, h.Message = StatusDown, err.Error()
		if d.Optional {
			h.Status = StatusDegraded
		}
		c.logger.Warn("dependency unhealthy", "dependency", d.Name, "optional", d.Optional, "error", err)
	}
	return h
}

// LiveHandler answers liveness probes without touching dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": c.now().Sub(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes. A degraded report is still ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
