// Package index holds the in-memory positional index that a build fills
// document by document before it is frozen and written to disk.
package index

import (
	"math"
	"sort"
	"sync"
)

type termPostings struct {
	postings PostingList
	byDoc    map[DocID]int
}

// Accumulator maps terms to their postings and remembers the Euclidean norm
// of every document's raw term-frequency vector. All methods are safe for
// concurrent use by indexing workers.
type Accumulator struct {
	mu      sync.Mutex
	terms   map[string]*termPostings
	size    int64
	drained bool

	normMu sync.RWMutex
	norms  map[DocID]float64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		terms: make(map[string]*termPostings),
		norms: make(map[DocID]float64),
	}
}

// Insert appends pos to the posting of (term, docID), creating the term's
// list or the document's posting when they do not exist yet.
func (a *Accumulator) Insert(term string, docID DocID, pos uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.insertLocked(term, docID, pos)
}

func (a *Accumulator) insertLocked(term string, docID DocID, pos uint32) {
	if a.drained {
		panic("index: insert into drained accumulator")
	}
	tp, ok := a.terms[term]
	if !ok {
		tp = &termPostings{byDoc: make(map[DocID]int, 1)}
		a.terms[term] = tp
		a.size += int64(len(term)) + 64
	}
	i, ok := tp.byDoc[docID]
	if !ok {
		i = len(tp.postings)
		tp.byDoc[docID] = i
		tp.postings = append(tp.postings, Posting{
			DocID:     docID,
			Positions: make([]uint32, 0, 2),
		})
		a.size += 32
	}
	tp.postings[i].Positions = append(tp.postings[i].Positions, pos)
	a.size += 4
}

// InsertTerms indexes the full term sequence of one document. The position
// of a term is its index in terms. Once every term is inserted the
// document's norm sqrt(sum(tf^2)) is recorded.
func (a *Accumulator) InsertTerms(terms []string, docID DocID) {
	if len(terms) == 0 {
		return
	}
	tf := make(map[string]int, len(terms))
	a.mu.Lock()
	for i, term := range terms {
		tf[term]++
		a.insertLocked(term, docID, uint32(i))
	}
	a.mu.Unlock()

	var sum float64
	for _, f := range tf {
		sum += float64(f) * float64(f)
	}
	a.normMu.Lock()
	a.norms[docID] = math.Sqrt(sum)
	a.normMu.Unlock()
}

// Norm returns the stored norm of docID, or 1 when none was recorded.
func (a *Accumulator) Norm(docID DocID) float64 {
	a.normMu.RLock()
	defer a.normMu.RUnlock()
	if n, ok := a.norms[docID]; ok {
		return n
	}
	return 1
}

// Drain hands every term to the caller in ascending byte order, each with
// its postings ordered by document id, and freezes the accumulator. Norms
// stay readable so the writer can weight postings; any later Insert panics.
func (a *Accumulator) Drain() []TermEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make([]TermEntry, 0, len(a.terms))
	for term, tp := range a.terms {
		sort.Slice(tp.postings, func(i, j int) bool {
			return tp.postings[i].DocID < tp.postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: tp.postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	a.terms = nil
	a.size = 0
	a.drained = true
	return entries
}

// TermCount returns the number of distinct terms inserted so far.
func (a *Accumulator) TermCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.terms)
}

// DocCount returns the number of documents with a recorded norm.
func (a *Accumulator) DocCount() int {
	a.normMu.RLock()
	defer a.normMu.RUnlock()
	return len(a.norms)
}

// Size is a rough estimate of the accumulator's memory footprint in bytes.
func (a *Accumulator) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}
