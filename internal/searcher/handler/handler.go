package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/tracing"
)

// CacheHeader reports hit, miss or bypass on every successful search.
const CacheHeader = "X-Cache"

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// IndexView is the part of *indexer.Engine the handlers read.
type IndexView interface {
	Generation() uint64
	Stats() (indexer.Stats, error)
	Tokenizer() tokenizer.Tokenizer
}

type Handler struct {
	executor     SearchExecutor
	index        IndexView
	cache        *cache.QueryCache
	aggregator   *analytics.Aggregator
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithAnalytics(a *analytics.Aggregator) Option {
	return func(h *Handler) { h.aggregator = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(exec SearchExecutor, idx IndexView, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		executor:     exec,
		index:        idx,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       logger.WithComponent("search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, limit, appErr := h.parseRequest(r)
	if appErr != nil {
		h.writeError(w, appErr.StatusCode, appErr.Message)
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer span.End()

	plan := parser.Parse(query, h.index.Tokenizer())
	generation := h.index.Generation()

	var (
		result *executor.SearchResult
		err    error
	)
	cacheStatus := "bypass"
	if h.cache != nil && generation != 0 && len(plan.Terms) > 0 {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, generation, plan, limit, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}

	if err != nil {
		status, message := apperrors.Response(err)
		log.Error("search execution failed", "query", query, "status", status, "error", err)
		h.writeError(w, status, message)
		return
	}

	// Cached and shared results carry the query of whoever computed them.
	resp := *result
	resp.Query = query

	latency := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	span.SetAttr("cache", cacheStatus)
	log.Info("search completed",
		"query", query,
		"kind", resp.Kind,
		"total_hits", resp.TotalHits,
		"returned", len(resp.Results),
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	if h.aggregator != nil {
		h.aggregator.Record(analytics.SearchEvent{
			Query:      query,
			Kind:       resp.Kind,
			Terms:      plan.Terms,
			Generation: resp.Generation,
			TotalHits:  resp.TotalHits,
			Returned:   len(resp.Results),
			Latency:    latency,
			CacheHit:   cacheStatus == "hit",
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}

	w.Header().Set(CacheHeader, cacheStatus)
	h.writeJSON(w, http.StatusOK, &resp)
}

func (h *Handler) parseRequest(r *http.Request) (string, int, *apperrors.AppError) {
	query := r.URL.Query().Get("q")
	if query == "" {
		return "", 0, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return "", 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer, got %q", raw)
		}
		limit = min(parsed, h.maxResults)
	}
	return query, limit, nil
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.index.Stats()
	if err != nil {
		h.writeError(w, apperrors.Response(err))
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.Breaker(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
