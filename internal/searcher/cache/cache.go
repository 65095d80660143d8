// Package cache stores search results in Redis keyed by index generation,
// query kind, normalised terms and limit. Concurrent identical misses are
// collapsed with singleflight, and a circuit breaker keeps searches flowing
// when Redis is unhealthy.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is satisfied by *redis.Client.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

type QueryCache struct {
	store       Store
	ttl         time.Duration
	compression Compression
	group       singleflight.Group
	breaker     *resilience.CircuitBreaker
	metrics     *metrics.Metrics
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

type Option func(*QueryCache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

// WithCompression packs stored results with c.
func WithCompression(c Compression) Option {
	return func(qc *QueryCache) { qc.compression = c }
}

// WithBreaker overrides the circuit breaker settings used around Redis.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *QueryCache) { c.breaker = c.newBreaker(cfg) }
}

func New(store Store, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: logger.WithComponent("query-cache"),
	}
	c.breaker = c.newBreaker(resilience.CircuitBreakerConfig{})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *QueryCache) newBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		c.logger.Warn("cache circuit state changed", "from", from.String(), "to", to.String())
	}
	return resilience.NewCircuitBreaker("redis-cache", cfg)
}

// Get returns the cached result for plan at generation.
func (c *QueryCache) Get(ctx context.Context, generation uint64, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	key := BuildKey(generation, plan, limit)
	data, err := resilience.Call(c.breaker, func() ([]byte, error) {
		data, found, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return data, nil
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	raw, err := unpack(data)
	if err != nil {
		c.logger.Error("cache value unreadable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

// Set stores result. Results computed against a different generation than
// the one the key was built for are not stored.
func (c *QueryCache) Set(ctx context.Context, generation uint64, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	if result.Generation != generation {
		return
	}
	key := BuildKey(generation, plan, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	value := pack(c.compression, data)
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, value, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs computeFn once for all
// concurrent callers asking for the same key. The bool reports a cache hit.
// computeFn runs on a context that keeps ctx's values but not its
// cancellation, so a caller that goes away does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	plan *parser.QueryPlan,
	limit int,
	computeFn func(ctx context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, plan, limit); ok {
		return result, true, nil
	}
	key := BuildKey(generation, plan, limit)
	flight := c.group.DoChan(key, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		result, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, generation, plan, limit, result)
		return result, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*executor.SearchResult), false, nil
	}
}

// Invalidate removes every cached search result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeletePrefix(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Breaker reports the state of the circuit guarding Redis.
func (c *QueryCache) Breaker() resilience.Snapshot {
	return c.breaker.Snapshot()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the Redis key. Terms are the tokenized query terms, so
// queries that differ only in case, stop words or inflection share a key.
func BuildKey(generation uint64, plan *parser.QueryPlan, limit int) string {
	raw := plan.Kind.String() + "|" + strings.Join(plan.Terms, ",") + "|limit=" + strconv.Itoa(limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, generation, hash[:16])
}
