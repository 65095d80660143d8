package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `An inverted index maps each term to the documents containing it. The
        dictionary is kept sorted so a term can be found by binary search, and
        each posting list is prefixed with its byte length so it can be read
        with a single seek. Weights are normalised by the document's length so
        that long documents do not dominate the ranking.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming,
        and stop word removal to normalise text into searchable terms. Positions
        are recorded for every occurrence, and the ranking multiplies the stored
        weight by the inverse document frequency of the term. Boolean queries
        intersect sorted posting lists, starting from the shortest one. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	tok := tokenizer.New()
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tok.Tokenize(text)
				_ = tokens
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	tok := tokenizer.New()
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tokens := tok.Tokenize(text)
			_ = tokens
		}
	})
}

func BenchmarkTokenizeStemmingCost(b *testing.B) {
	text := sampleTexts["medium"]
	for _, tc := range []struct {
		name string
		tok  tokenizer.Tokenizer
	}{
		{"stemmed", tokenizer.New()},
		{"unstemmed", tokenizer.New(tokenizer.WithoutStemming())},
		{"simple", tokenizer.Simple{}},
	} {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = tc.tok.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	tok := tokenizer.New()
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "positional search engine lexicon postings "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := tok.Tokenize(text)
				_ = tokens
			}
		})
	}
}
