package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/meta"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Load opens the generation in IndexDir and makes it the one served by
// lookups. The previously loaded generation, if any, is closed.
func (e *Engine) Load(ctx context.Context) error {
	if !e.IsIndexed() {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexNotBuilt, e.IndexDir())
	}
	dir := e.IndexDir()
	gen, err := segment.Open(dir)
	if err != nil {
		return classifyOpenError(err)
	}
	if e.cfg.VerifyOnLoad {
		if err := gen.Verify(); err != nil {
			gen.Close()
			return fmt.Errorf("%w: %v", apperrors.ErrInconsistentIndex, err)
		}
	}
	// The metadata is read last: if the directory was replaced after the
	// segment files were opened, its generation no longer matches.
	docs, err := docstore.Open(filepath.Join(dir, docstore.FileName))
	if err != nil {
		gen.Close()
		return err
	}
	release := func() {
		gen.Close()
		docs.Close()
	}
	ms := meta.New(filepath.Join(dir, meta.FileName))
	if err := ms.Reload(); err != nil {
		release()
		return fmt.Errorf("loading metadata: %w", err)
	}
	if got := uint64(ms.Get(meta.Generation)); got != gen.ID() {
		release()
		return fmt.Errorf("%w: metadata generation %d, index generation %d",
			apperrors.ErrInconsistentIndex, got, gen.ID())
	}
	if err := ctx.Err(); err != nil {
		release()
		return err
	}

	e.mu.Lock()
	oldGen, oldDocs := e.gen, e.docs
	e.gen, e.docs, e.meta = gen, docs, ms
	e.mu.Unlock()

	if oldGen != nil {
		if err := errors.Join(oldGen.Close(), oldDocs.Close()); err != nil {
			e.logger.Warn("closing previous generation", "generation", oldGen.ID(), "error", err)
		}
	}
	if e.metrics != nil {
		e.metrics.IndexGeneration.Set(float64(gen.ID()))
		e.metrics.IndexTerms.Set(float64(gen.Len()))
		e.metrics.IndexDocuments.Set(float64(ms.Get(meta.TotalDocumentCount)))
	}
	e.logger.Info("index generation loaded",
		"generation", gen.ID(),
		"terms", gen.Len(),
		"documents", ms.Get(meta.TotalDocumentCount),
		"verified", e.cfg.VerifyOnLoad,
	)
	return nil
}

func classifyOpenError(err error) error {
	if errors.Is(err, segment.ErrCorrupt) || errors.Is(err, segment.ErrGenerationMismatch) {
		return fmt.Errorf("%w: %v", apperrors.ErrInconsistentIndex, err)
	}
	return fmt.Errorf("opening index: %w", err)
}

// Generation returns the id of the loaded generation, or 0.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return 0
	}
	return e.gen.ID()
}

// Loaded reports whether a generation is being served.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen != nil
}

// DocumentCount is the number of documents in the loaded generation.
func (e *Engine) DocumentCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.meta == nil {
		return 0
	}
	return e.meta.Get(meta.TotalDocumentCount)
}

// LookupTerm fetches the posting list of a single already-normalised term.
func (e *Engine) LookupTerm(term string) (segment.PostingList, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return nil, false, apperrors.ErrIndexNotBuilt
	}
	return e.lookupLocked(term)
}

func (e *Engine) lookupLocked(term string) (segment.PostingList, bool, error) {
	pl, found, err := e.gen.Lookup(term)
	if e.metrics != nil {
		switch {
		case err != nil:
			e.metrics.TermLookupsTotal.WithLabelValues("error").Inc()
		case found:
			e.metrics.TermLookupsTotal.WithLabelValues("found").Inc()
		default:
			e.metrics.TermLookupsTotal.WithLabelValues("absent").Inc()
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up %q: %w", term, err)
	}
	return pl, found, nil
}

// TermLookup is the result of LookupTerms. Lists and Found are aligned with
// the requested terms; all values come from the same generation.
type TermLookup struct {
	Generation    uint64
	DocumentCount int64
	Lists         []segment.PostingList
	Found         []bool
}

// LookupTerms fetches every distinct term once, in parallel, and returns
// one entry per requested term.
func (e *Engine) LookupTerms(ctx context.Context, terms []string) (TermLookup, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return TermLookup{}, apperrors.ErrIndexNotBuilt
	}

	slot := make(map[string]int, len(terms))
	unique := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := slot[t]; !ok {
			slot[t] = len(unique)
			unique = append(unique, t)
		}
	}
	lists := make([]segment.PostingList, len(unique))
	found := make([]bool, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, term := range unique {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pl, ok, err := e.lookupLocked(term)
			if err != nil {
				return err
			}
			lists[i], found[i] = pl, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TermLookup{}, err
	}

	out := TermLookup{
		Generation:    e.gen.ID(),
		DocumentCount: e.meta.Get(meta.TotalDocumentCount),
		Lists:         make([]segment.PostingList, len(terms)),
		Found:         make([]bool, len(terms)),
	}
	for i, t := range terms {
		out.Lists[i] = lists[slot[t]]
		out.Found[i] = found[slot[t]]
	}
	return out, nil
}

// ResolvePaths maps document ids of the given generation to the files they
// were read from. Ids from any other generation are rejected.
func (e *Engine) ResolvePaths(generation uint64, ids []index.DocID) (map[index.DocID]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return nil, apperrors.ErrIndexNotBuilt
	}
	if loaded := e.gen.ID(); generation != loaded {
		return nil, fmt.Errorf("%w: document ids of generation %d, generation %d is loaded",
			apperrors.ErrInconsistentIndex, generation, loaded)
	}
	paths, err := e.docs.ResolveMany(ids)
	if err != nil {
		return nil, fmt.Errorf("resolving document paths: %w", err)
	}
	return paths, nil
}

// Stats describes the loaded generation.
type Stats struct {
	Generation uint64    `json:"generation"`
	IndexDir   string    `json:"index_dir"`
	Documents  int64     `json:"documents"`
	Terms      int64     `json:"terms"`
	BuiltAt    time.Time `json:"built_at"`
}

func (e *Engine) Stats() (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gen == nil {
		return Stats{}, apperrors.ErrIndexNotBuilt
	}
	return Stats{
		Generation: e.gen.ID(),
		IndexDir:   e.IndexDir(),
		Documents:  e.meta.Get(meta.TotalDocumentCount),
		Terms:      e.meta.Get(meta.TotalTermCount),
		BuiltAt:    e.meta.BuiltAt(),
	}, nil
}

// Close releases the loaded generation.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == nil {
		return nil
	}
	err := errors.Join(e.gen.Close(), e.docs.Close())
	e.gen, e.docs, e.meta = nil, nil, nil
	return err
}
