// Package crawler walks a corpus directory and hands every eligible file to
// a bounded pool of indexing workers.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// IndexDirPrefix marks directories written by the indexer itself.
const IndexDirPrefix = "_00index"

type Config struct {
	Workers    int
	Extensions []string
	SkipDirs   []string
}

// Handler processes one file. A returned error is logged and counted; it
// never stops the walk.
type Handler func(ctx context.Context, path string) error

// Stats summarises a walk.
type Stats struct {
	Visited int64
	Failed  int64
	Ignored int64
}

type Crawler struct {
	workers    int
	extensions map[string]struct{}
	skipDirs   map[string]struct{}
	logger     *slog.Logger
}

func New(cfg Config) *Crawler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	c := &Crawler{
		workers:    workers,
		extensions: make(map[string]struct{}, len(cfg.Extensions)),
		skipDirs:   make(map[string]struct{}, len(cfg.SkipDirs)),
		logger:     logger.WithComponent("crawler"),
	}
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions[ext] = struct{}{}
	}
	for _, dir := range cfg.SkipDirs {
		c.skipDirs[dir] = struct{}{}
	}
	return c
}

// Accept reports whether a file name passes the extension filter. An empty
// filter accepts everything.
func (c *Crawler) Accept(name string) bool {
	if len(c.extensions) == 0 {
		return true
	}
	_, ok := c.extensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (c *Crawler) skipDir(name string) bool {
	if strings.HasPrefix(name, IndexDirPrefix) {
		return true
	}
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	_, ok := c.skipDirs[name]
	return ok
}

// Walk visits every regular file under root exactly once and runs fn on it
// from at most Workers goroutines. Unreadable directories are logged and
// skipped. Walk returns when every dispatched file was handled or ctx is
// cancelled.
func (c *Crawler) Walk(ctx context.Context, root string, fn Handler) (Stats, error) {
	var visited, failed, ignored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			c.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := gctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && c.skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.Accept(d.Name()) {
			ignored.Add(1)
			return nil
		}
		g.Go(func() error {
			visited.Add(1)
			if err := fn(gctx, path); err != nil {
				failed.Add(1)
				c.logger.Error("failed to process file", "path", path, "error", err)
			}
			return nil
		})
		return nil
	})
	waitErr := g.Wait()

	stats := Stats{
		Visited: visited.Load(),
		Failed:  failed.Load(),
		Ignored: ignored.Load(),
	}
	if walkErr != nil {
		return stats, fmt.Errorf("walking %s: %w", root, walkErr)
	}
	if err := errors.Join(waitErr, ctx.Err()); err != nil {
		return stats, err
	}
	c.logger.Info("corpus walk complete",
		"root", root,
		"visited", stats.Visited,
		"failed", stats.Failed,
		"ignored", stats.Ignored,
	)
	return stats, nil
}
