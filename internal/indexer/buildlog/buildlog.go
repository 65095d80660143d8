// Package buildlog records every saved index generation in PostgreSQL so
// operators can see when and from what each generation was built.
package buildlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_builds (
		generation   BIGINT PRIMARY KEY,
		index_dir    TEXT NOT NULL,
		corpus_dir   TEXT NOT NULL,
		documents    BIGINT NOT NULL,
		skipped      BIGINT NOT NULL,
		terms        BIGINT NOT NULL,
		postings     BIGINT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ NOT NULL,
		duration_ms  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS index_builds_finished_at_idx ON index_builds (finished_at DESC)`,
}

const insertBuild = `INSERT INTO index_builds
	(generation, index_dir, corpus_dir, documents, skipped, terms, postings, started_at, finished_at, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (generation) DO NOTHING`

const selectRecent = `SELECT generation, index_dir, corpus_dir, documents, skipped, terms, postings,
	started_at, finished_at, duration_ms
	FROM index_builds ORDER BY finished_at DESC LIMIT $1`

// DB is the subset of *sql.DB the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store implements indexer.Reporter on top of PostgreSQL.
type Store struct {
	db     DB
	logger *slog.Logger
}

func New(db DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "buildlog"),
	}
}

// Schema returns the idempotent DDL for the build history table.
func Schema() []string {
	return schema
}

// Report inserts r. Reporting the same generation twice is a no-op.
func (s *Store) Report(ctx context.Context, r indexer.BuildReport) error {
	_, err := s.db.ExecContext(ctx, insertBuild,
		int64(r.Generation),
		r.IndexDir,
		r.CorpusDir,
		r.Documents,
		r.Skipped,
		int64(r.Terms),
		int64(r.Postings),
		r.StartedAt.UTC(),
		r.FinishedAt.UTC(),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording build %d: %w", r.Generation, err)
	}
	s.logger.Info("build recorded", "generation", r.Generation)
	return nil
}

// Recent returns up to limit builds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]indexer.BuildReport, error) {
	rows, err := s.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var out []indexer.BuildReport
	for rows.Next() {
		var (
			r                        indexer.BuildReport
			generation, terms, posts int64
			durationMS               int64
		)
		if err := rows.Scan(&generation, &r.IndexDir, &r.CorpusDir, &r.Documents, &r.Skipped,
			&terms, &posts, &r.StartedAt, &r.FinishedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		r.Generation = uint64(generation)
		r.Terms = int(terms)
		r.Postings = int(posts)
		r.Duration = msToDuration(durationMS)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating builds: %w", err)
	}
	return out, nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
