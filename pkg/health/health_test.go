package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("unreachable") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name string
		deps []Dependency
		want Status
	}{
		{"all up", []Dependency{{Name: "index", Check: up}, {Name: "redis", Check: up, Optional: true}}, StatusUp},
		{"optional down", []Dependency{{Name: "index", Check: up}, {Name: "redis", Check: failing, Optional: true}}, StatusDegraded},
		{"required down", []Dependency{{Name: "redis", Check: failing, Optional: true}, {Name: "index", Check: failing}}, StatusDown},
		{"no dependencies", nil, StatusUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for _, d := range tt.deps {
				c.Add(d)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.deps))
		})
	}
}

func TestProbeTimesOut(t *testing.T) {
	c := NewChecker()
	c.Add(Dependency{Name: "redis", Optional: true, Timeout: 10 * time.Millisecond, Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	report := c.Run(context.Background())
	redis := report.Components["redis"]
	assert.Equal(t, StatusDegraded, redis.Status)
	assert.True(t, redis.Optional)
	assert.Equal(t, context.DeadlineExceeded.Error(), redis.Message)
}

func TestRunReusesRecentReport(t *testing.T) {
	var calls atomic.Int64
	now := time.Unix(100, 0)
	c := NewChecker(WithCacheFor(time.Second))
	c.now = func() time.Time { return now }
	c.Add(Dependency{Name: "index", Check: func(context.Context) error {
		calls.Add(1)
		return nil
	}})

	c.Run(context.Background())
	c.Run(context.Background())
	assert.Equal(t, int64(1), calls.Load())

	now = now.Add(2 * time.Second)
	c.Run(context.Background())
	assert.Equal(t, int64(2), calls.Load())

	c.Add(Dependency{Name: "index", Check: failing})
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Add(Dependency{Name: "redis", Check: failing, Optional: true})
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Add(Dependency{Name: "index", Check: failing})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDown, report.Components["index"].Status)
	assert.Equal(t, "unreachable", report.Components["index"].Message)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
	assert.Contains(t, rec.Body.String(), "uptime")
}
