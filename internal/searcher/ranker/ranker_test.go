package ranker

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	inv2 = 1 / math.Sqrt2
	inv3 = 1 / math.Sqrt(3)

	// "cat dog", "dog bird", "cat bird dog"
	dogList = segment.PostingList{
		{DocID: 1, Weight: inv2},
		{DocID: 2, Weight: inv2},
		{DocID: 3, Weight: inv3},
	}
	catList = segment.PostingList{
		{DocID: 1, Weight: inv2},
		{DocID: 3, Weight: inv3},
	}
)

func TestIDF(t *testing.T) {
	assert.InDelta(t, math.Log10(1.5), IDF(3, 2), 1e-12)
	assert.Equal(t, 0.0, IDF(3, 3))
	assert.Equal(t, 0.0, IDF(3, 0))
	assert.Equal(t, 0.0, IDF(0, 1))
}

func TestRankTermInEveryDocument(t *testing.T) {
	got := Rank([]segment.PostingList{dogList}, 3)
	require.Len(t, got, 3)
	for i, doc := range got {
		assert.Equal(t, 0.0, doc.Score)
		assert.EqualValues(t, i+1, doc.DocID)
	}
}

func TestRankOrdersByScore(t *testing.T) {
	got := Rank([]segment.PostingList{catList}, 3)
	require.Len(t, got, 2)
	idf := math.Log10(1.5)
	assert.EqualValues(t, 1, got[0].DocID)
	assert.InDelta(t, idf*inv2, got[0].Score, 1e-12)
	assert.EqualValues(t, 3, got[1].DocID)
	assert.InDelta(t, idf*inv3, got[1].Score, 1e-12)
}

func TestRankSkipsAbsentTerms(t *testing.T) {
	with := Rank([]segment.PostingList{catList, nil}, 3)
	without := Rank([]segment.PostingList{catList}, 3)
	assert.Equal(t, without, with)
	assert.Empty(t, Rank([]segment.PostingList{nil, nil}, 3))
	assert.Empty(t, Rank(nil, 3))
}

func TestRankCountsRepeatedTerms(t *testing.T) {
	once := Rank([]segment.PostingList{catList}, 3)
	twice := Rank([]segment.PostingList{catList, catList}, 3)
	require.Len(t, twice, len(once))
	for i := range once {
		assert.InDelta(t, 2*once[i].Score, twice[i].Score, 1e-12)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	lists := []segment.PostingList{catList, dogList, catList}
	first := Rank(lists, 3)
	for range 20 {
		assert.Equal(t, first, Rank(lists, 3))
	}
}

func TestSortByScoreBreaksTiesByDocID(t *testing.T) {
	docs := []ScoredDoc{{DocID: 9, Score: 1}, {DocID: 2, Score: 1}, {DocID: 5, Score: 3}}
	SortByScore(docs)
	assert.Equal(t, []ScoredDoc{{DocID: 5, Score: 3}, {DocID: 2, Score: 1}, {DocID: 9, Score: 1}}, docs)
}
