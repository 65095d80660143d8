package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/meta"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/metrics"
	"github.com/RoaringBitmap/roaring/v2"
)

// IndexDirName is the directory, under the index root, that holds the five
// artifacts of the current generation.
const IndexDirName = crawler.IndexDirPrefix

const stagingSuffix = ".staging"

// Artifacts lists every file a complete index directory contains.
var Artifacts = []string{
	segment.LexiconFile,
	segment.OffsetArrayFile,
	segment.PostingsFile,
	docstore.FileName,
	meta.FileName,
}

// BuildReport describes a saved generation.
type BuildReport struct {
	Generation uint64        `json:"generation"`
	IndexDir   string        `json:"index_dir"`
	CorpusDir  string        `json:"corpus_dir"`
	Documents  int64         `json:"documents"`
	Skipped    int64         `json:"skipped"`
	Terms      int           `json:"terms"`
	Postings   int           `json:"postings"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Reporter is notified after a generation was saved. Failures are logged and
// do not fail the build.
type Reporter interface {
	Report(ctx context.Context, r BuildReport) error
}

// BuildStats summarises the in-memory phase of a build.
type BuildStats struct {
	Documents int64
	Skipped   int64
	Ignored   int64
	Terms     int
}

type buildState struct {
	corpusDir string
	started   time.Time
	acc       *index.Accumulator
	docs      *docstore.Store
	meta      *meta.Store
	succeeded *roaring.Bitmap
	okMu      sync.Mutex
	skipped   atomic.Int64
}

// Engine owns the document-id counter, drives builds and serves term
// lookups against the loaded generation.
type Engine struct {
	cfg       config.IndexerConfig
	tokenizer tokenizer.Tokenizer
	metrics   *metrics.Metrics
	reporters []Reporter
	parallel  int
	logger    *slog.Logger

	nextID atomic.Uint32

	buildMu sync.Mutex
	build   *buildState

	mu   sync.RWMutex
	gen  *segment.Generation
	docs *docstore.Reader
	meta *meta.Store
}

type Option func(*Engine)

// WithTokenizer replaces the default stemming analyzer.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(e *Engine) { e.tokenizer = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithReporters(r ...Reporter) Option {
	return func(e *Engine) { e.reporters = append(e.reporters, r...) }
}

// WithLookupParallelism bounds concurrent term lookups per query.
func WithLookupParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallel = n
		}
	}
}

func NewEngine(cfg config.IndexerConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		parallel: 4,
		logger:   logger.WithComponent("indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tokenizer == nil {
		var topts []tokenizer.Option
		if cfg.StopWords != nil {
			topts = append(topts, tokenizer.WithStopWords(cfg.StopWords))
		}
		e.tokenizer = tokenizer.New(topts...)
	}
	return e
}

// Tokenizer is the analyzer used for documents; queries must use the same.
func (e *Engine) Tokenizer() tokenizer.Tokenizer {
	return e.tokenizer
}

// IndexDir is the directory holding the current generation.
func (e *Engine) IndexDir() string {
	return filepath.Join(e.cfg.Root(), IndexDirName)
}

// IsIndexed reports whether every artifact of a saved index exists.
func (e *Engine) IsIndexed() bool {
	dir := e.IndexDir()
	for _, name := range Artifacts {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Build indexes every eligible file under corpusDir into a fresh in-memory
// accumulator. Files that cannot be read are logged and skipped; their ids
// are not reused. Build must be followed by Save to produce a generation.
func (e *Engine) Build(ctx context.Context, corpusDir string) (BuildStats, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	abs, err := filepath.Abs(corpusDir)
	if err != nil {
		return BuildStats{}, fmt.Errorf("resolving corpus directory: %w", err)
	}
	bs := &buildState{
		corpusDir: abs,
		started:   time.Now(),
		acc:       index.NewAccumulator(),
		docs:      docstore.New(""),
		meta:      meta.New(""),
		succeeded: roaring.New(),
	}
	e.build = nil
	e.nextID.Store(0)
	e.logger.Info("index build starting", "corpus_dir", abs, "workers", e.cfg.Workers)

	c := crawler.New(crawler.Config{
		Workers:    e.cfg.Workers,
		Extensions: e.cfg.Extensions,
		SkipDirs:   e.cfg.SkipDirs,
	})
	walk, err := c.Walk(ctx, abs, func(ctx context.Context, path string) error {
		return e.indexFile(ctx, bs, path)
	})
	if err != nil {
		e.countBuild("failed")
		return BuildStats{}, fmt.Errorf("indexing corpus: %w", err)
	}

	e.build = bs
	stats := BuildStats{
		Documents: bs.meta.Get(meta.TotalDocumentCount),
		Skipped:   bs.skipped.Load(),
		Ignored:   walk.Ignored,
		Terms:     bs.acc.TermCount(),
	}
	e.logger.Info("index build complete",
		"documents", stats.Documents,
		"skipped", stats.Skipped,
		"ignored", stats.Ignored,
		"terms", stats.Terms,
		"accumulator_bytes", bs.acc.Size(),
	)
	return stats, nil
}

func (e *Engine) indexFile(ctx context.Context, bs *buildState, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docID := index.DocID(e.nextID.Add(1))
	data, err := os.ReadFile(path)
	if err != nil {
		bs.skipped.Add(1)
		if e.metrics != nil {
			e.metrics.DocsSkippedTotal.Inc()
		}
		return fmt.Errorf("reading document %d: %w", docID, err)
	}
	terms := e.tokenizer.Tokenize(string(data))
	bs.acc.InsertTerms(terms, docID)
	bs.docs.Add(docID, path)
	bs.meta.Increment(meta.TotalDocumentCount)

	bs.okMu.Lock()
	bs.succeeded.Add(uint32(docID))
	bs.okMu.Unlock()
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed", "doc_id", docID, "path", path, "terms", len(terms))
	return nil
}

// Save writes the built accumulator as a new generation into a staging
// directory, audits it and moves it into place. Reporters are notified once
// the generation is visible.
func (e *Engine) Save(ctx context.Context) (BuildReport, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	bs := e.build
	if bs == nil {
		return BuildReport{}, fmt.Errorf("%w: save called without a completed build", apperrors.ErrIndexNotBuilt)
	}
	e.build = nil

	report, err := e.save(bs)
	if err != nil {
		e.countBuild("failed")
		return report, err
	}
	e.countBuild("ok")
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(report.Duration.Seconds())
	}
	e.logger.Info("index generation saved",
		"generation", report.Generation,
		"dir", report.IndexDir,
		"documents", report.Documents,
		"skipped", report.Skipped,
		"terms", report.Terms,
		"postings", report.Postings,
		"duration", report.Duration,
	)
	for _, r := range e.reporters {
		if err := r.Report(ctx, report); err != nil {
			e.logger.Error("build reporter failed", "reporter", fmt.Sprintf("%T", r), "error", err)
		}
	}
	return report, nil
}

func (e *Engine) save(bs *buildState) (BuildReport, error) {
	final := e.IndexDir()
	staging := final + stagingSuffix
	if err := os.RemoveAll(staging); err != nil {
		return BuildReport{}, fmt.Errorf("clearing staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return BuildReport{}, fmt.Errorf("creating staging directory: %w", err)
	}

	generation := uint64(time.Now().UnixNano())
	ws, err := segment.NewWriter(staging).Write(bs.acc, generation)
	if err != nil {
		return BuildReport{}, fmt.Errorf("writing index: %w", err)
	}

	bs.docs.SetPath(filepath.Join(staging, docstore.FileName))
	if err := bs.docs.Flush(); err != nil {
		return BuildReport{}, fmt.Errorf("writing doc store: %w", err)
	}
	if err := auditIDs(bs); err != nil {
		return BuildReport{}, err
	}

	finished := time.Now()
	bs.meta.SetPath(filepath.Join(staging, meta.FileName))
	bs.meta.Set(meta.TotalTermCount, int64(ws.Terms))
	bs.meta.Set(meta.Generation, int64(generation))
	bs.meta.SetBuiltAt(finished)
	if err := bs.meta.Persist(); err != nil {
		return BuildReport{}, fmt.Errorf("writing metadata: %w", err)
	}

	if err := swapDir(staging, final, generation); err != nil {
		return BuildReport{}, err
	}

	return BuildReport{
		Generation: generation,
		IndexDir:   final,
		CorpusDir:  bs.corpusDir,
		Documents:  bs.meta.Get(meta.TotalDocumentCount),
		Skipped:    bs.skipped.Load(),
		Terms:      ws.Terms,
		Postings:   ws.Postings,
		StartedAt:  bs.started,
		FinishedAt: finished,
		Duration:   finished.Sub(bs.started),
	}, nil
}

// auditIDs checks that the flushed doc store holds exactly the ids of the
// documents that were indexed.
func auditIDs(bs *buildState) error {
	stored, err := bs.docs.IDs()
	if err != nil {
		return fmt.Errorf("auditing doc store: %w", err)
	}
	if !stored.Equals(bs.succeeded) {
		return fmt.Errorf("%w: doc store holds %d ids, %d documents were indexed",
			apperrors.ErrInconsistentIndex, stored.GetCardinality(), bs.succeeded.GetCardinality())
	}
	return nil
}

// swapDir moves staging to final. An existing final directory is moved
// aside first and removed once the new one is in place; open readers keep
// their file handles.
func swapDir(staging, final string, generation uint64) error {
	old := ""
	if _, err := os.Stat(final); err == nil {
		old = fmt.Sprintf("%s.old-%d", final, generation)
		if err := os.Rename(final, old); err != nil {
			return fmt.Errorf("moving previous index aside: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat index directory: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		if old != "" {
			os.Rename(old, final)
		}
		return fmt.Errorf("moving staging directory into place: %w", err)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			slog.Default().Warn("removing previous index", "dir", old, "error", err)
		}
	}
	return nil
}

func (e *Engine) countBuild(status string) {
	if e.metrics != nil {
		e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}

// Rebuild runs Build, Save and Load in sequence.
func (e *Engine) Rebuild(ctx context.Context, corpusDir string) (BuildReport, error) {
	if _, err := e.Build(ctx, corpusDir); err != nil {
		return BuildReport{}, err
	}
	report, err := e.Save(ctx)
	if err != nil {
		return report, err
	}
	if err := e.Load(ctx); err != nil {
		return report, fmt.Errorf("loading new generation: %w", err)
	}
	return report, nil
}
