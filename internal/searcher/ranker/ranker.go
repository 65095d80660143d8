// Package ranker scores documents for free-text queries with TF-IDF over
// the weights stored in each posting.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"golang.org/x/sync/errgroup"
)

type ScoredDoc struct {
	DocID index.DocID `json:"doc_id"`
	Score float64     `json:"score"`
}

// IDF is log10(N/df). It is 0 for an absent term or an empty index.
func IDF(totalDocs int64, docFreq int) float64 {
	if totalDocs <= 0 || docFreq <= 0 {
		return 0
	}
	return math.Log10(float64(totalDocs) / float64(docFreq))
}

// Score accumulates idf*weight per document over lists, one list per query
// term occurrence; nil lists are absent terms and contribute nothing. Every
// document found in any list is returned, ordered by ascending DocID.
//
// Lists are scored concurrently into private partial maps which are then
// summed in list order, so results are bit-for-bit repeatable.
func Score(lists []segment.PostingList, totalDocs int64) []ScoredDoc {
	partials := make([]map[index.DocID]float64, len(lists))
	var g errgroup.Group
	for i, pl := range lists {
		if len(pl) == 0 {
			continue
		}
		g.Go(func() error {
			idf := IDF(totalDocs, len(pl))
			m := make(map[index.DocID]float64, len(pl))
			for _, p := range pl {
				m[p.DocID] += idf * p.Weight
			}
			partials[i] = m
			return nil
		})
	}
	_ = g.Wait()

	scores := make(map[index.DocID]float64)
	for i, pl := range lists {
		for _, p := range pl {
			scores[p.DocID] += partials[i][p.DocID]
		}
	}

	out := make([]ScoredDoc, 0, len(scores))
	for id, s := range scores {
		out = append(out, ScoredDoc{DocID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

// Rank scores lists and orders the result by descending score, ties by
// ascending DocID.
func Rank(lists []segment.PostingList, totalDocs int64) []ScoredDoc {
	docs := Score(lists, totalDocs)
	SortByScore(docs)
	return docs
}

func SortByScore(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool { return Less(docs[j], docs[i]) })
}

// Less reports whether a ranks below b.
func Less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}
