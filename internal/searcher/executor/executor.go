// Package executor runs a parsed query against the loaded index generation:
// term lookup, TF-IDF ranking or AND intersection, top-k selection and
// doc-id to path resolution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/tracing"
)

// Index is the read side of *indexer.Engine.
type Index interface {
	LookupTerms(ctx context.Context, terms []string) (indexer.TermLookup, error)
	ResolvePaths(generation uint64, ids []index.DocID) (map[index.DocID]string, error)
}

type Hit struct {
	DocID index.DocID `json:"doc_id"`
	Path  string      `json:"path"`
	Score float64     `json:"score"`
}

type SearchResult struct {
	Query      string         `json:"query"`
	Kind       string         `json:"kind"`
	Terms      []string       `json:"terms"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Results    []Hit          `json:"results"`
	TermStats  map[string]int `json:"term_stats"`
}

type Executor struct {
	index   Index
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Executor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTimeout bounds every Execute call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

func New(idx Index, opts ...Option) *Executor {
	e := &Executor{
		index:  idx,
		logger: logger.WithComponent("query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs plan and returns at most limit hits; limit <= 0 returns all.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Query:     plan.RawQuery,
		Kind:      plan.Kind.String(),
		Terms:     plan.Terms,
		Results:   []Hit{},
		TermStats: make(map[string]int, len(plan.Terms)),
	}
	if len(plan.Terms) == 0 {
		e.count(plan, "empty")
		return result, nil
	}

	err := resilience.WithTimeout(ctx, e.timeout, "search", func(ctx context.Context) error {
		return e.execute(ctx, plan, limit, result)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		e.count(plan, "error")
		return nil, err
	}

	e.count(plan, "ok")
	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(result.TotalHits))
	}
	logger.FromContext(ctx).Info("query executed",
		"query", plan.RawQuery,
		"kind", result.Kind,
		"terms", plan.Terms,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, plan *parser.QueryPlan, limit int, result *SearchResult) error {
	_, span := tracing.Start(ctx, "lookup", "")
	lookup, err := e.index.LookupTerms(ctx, plan.Terms)
	span.End()
	if err != nil {
		return fmt.Errorf("looking up query terms: %w", err)
	}
	result.Generation = lookup.Generation
	for i, term := range plan.Terms {
		result.TermStats[term] = len(lookup.Lists[i])
	}

	var top []ranker.ScoredDoc
	_, span = tracing.Start(ctx, "rank", "")
	switch plan.Kind {
	case parser.Boolean:
		matched := merger.IntersectMany(lookup.Lists)
		result.TotalHits = len(matched)
		if limit > 0 && len(matched) > limit {
			matched = matched[:limit]
		}
		top = make([]ranker.ScoredDoc, len(matched))
		for i, p := range matched {
			top[i] = ranker.ScoredDoc{DocID: p.DocID}
		}
	default:
		scored := ranker.Score(lookup.Lists, lookup.DocumentCount)
		result.TotalHits = len(scored)
		top = merger.TopK(scored, limit)
	}
	span.SetAttr("matched", result.TotalHits)
	span.End()
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(top) == 0 {
		return nil
	}

	ids := make([]index.DocID, len(top))
	for i, d := range top {
		ids[i] = d.DocID
	}
	_, span = tracing.Start(ctx, "resolve", "")
	paths, err := e.index.ResolvePaths(lookup.Generation, ids)
	span.End()
	if err != nil {
		return err
	}
	result.Results = make([]Hit, len(top))
	for i, d := range top {
		path, ok := paths[d.DocID]
		if !ok {
			return fmt.Errorf("%w: no path recorded for document %d", apperrors.ErrInconsistentIndex, d.DocID)
		}
		result.Results[i] = Hit{DocID: d.DocID, Path: path, Score: d.Score}
	}
	return nil
}

func (e *Executor) count(plan *parser.QueryPlan, outcome string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(plan.Kind.String(), outcome).Inc()
	}
}
