// Package merger implements AND retrieval by sorted-merge intersection of
// posting lists and bounded top-k selection of scored documents.
package merger

import (
	"container/heap"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/ranker"
)

// Intersect returns the postings of a whose DocID also occurs in b, in
// ascending DocID order. Inputs are not modified.
func Intersect(a, b segment.PostingList) segment.PostingList {
	a, b = byDocID(a), byDocID(b)
	out := make(segment.PostingList, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].DocID < b[j].DocID:
			i++
		case a[i].DocID > b[j].DocID:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// IntersectMany folds Intersect over lists, smallest list first. A nil or
// empty list, as returned for an absent term, empties the result.
func IntersectMany(lists []segment.PostingList) segment.PostingList {
	if len(lists) == 0 {
		return segment.PostingList{}
	}
	ordered := slices.Clone(lists)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) < len(ordered[j]) })

	result := byDocID(ordered[0])
	for _, next := range ordered[1:] {
		if len(result) == 0 {
			break
		}
		result = Intersect(result, next)
	}
	if result == nil {
		return segment.PostingList{}
	}
	return result
}

func byDocID(pl segment.PostingList) segment.PostingList {
	if sort.SliceIsSorted(pl, func(i, j int) bool { return pl[i].DocID < pl[j].DocID }) {
		return pl
	}
	sorted := slices.Clone(pl)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DocID < sorted[j].DocID })
	return sorted
}

// TopK returns the k best documents by descending score, ties by ascending
// DocID. k <= 0 returns every document in that order.
func TopK(docs []ranker.ScoredDoc, k int) []ranker.ScoredDoc {
	if k <= 0 || k >= len(docs) {
		out := slices.Clone(docs)
		ranker.SortByScore(out)
		return out
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, doc := range docs {
		heap.Push(h, doc)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap: the root is the weakest kept document.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranker.Less(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
