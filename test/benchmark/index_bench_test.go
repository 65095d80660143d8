// Package benchmark contains Go benchmarks for index construction, the
// on-disk lookup path and the query pipeline.
package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/vbyte"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/config"
)

var vocabulary = strings.Fields(`lexicon postings offset array binary search
	weight norm frequency document corpus crawler stemmer token query ranking
	intersection generation checksum prefix payload delimiter merge heap cache`)

func syntheticDoc(i, words int) string {
	var sb strings.Builder
	for w := 0; w < words; w++ {
		sb.WriteString(vocabulary[(i*7+w*13)%len(vocabulary)])
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "unique%d", i)
	return sb.String()
}

func writeCorpus(b *testing.B, docs int) string {
	b.Helper()
	dir := b.TempDir()
	for i := 0; i < docs; i++ {
		path := filepath.Join(dir, fmt.Sprintf("doc-%05d.txt", i))
		if err := os.WriteFile(path, []byte(syntheticDoc(i, 200)), 0644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

func BenchmarkVByteEncode(b *testing.B) {
	buf := make([]byte, 0, 16)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf = vbyte.Append(buf[:0], uint64(i)*2654435761)
	}
}

func BenchmarkVByteDecode(b *testing.B) {
	enc := vbyte.Encode(1 << 40)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := vbyte.Decode(enc); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAccumulatorInsertTerms measures per-document insert throughput
// into the in-memory positional index.
func BenchmarkAccumulatorInsertTerms(b *testing.B) {
	acc := index.NewAccumulator()
	terms := tokenizer.New().Tokenize(syntheticDoc(1, 200))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		acc.InsertTerms(terms, index.DocID(i+1))
	}
}

func BenchmarkAccumulatorInsertParallel(b *testing.B) {
	acc := index.NewAccumulator()
	terms := tokenizer.New().Tokenize(syntheticDoc(1, 200))
	var next atomic.Uint32
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			acc.InsertTerms(terms, index.DocID(next.Add(1)))
		}
	})
}

func BenchmarkSegmentWrite(b *testing.B) {
	tok := tokenizer.New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		acc := index.NewAccumulator()
		for d := 0; d < 1000; d++ {
			acc.InsertTerms(tok.Tokenize(syntheticDoc(d, 100)), index.DocID(d+1))
		}
		dir := b.TempDir()
		b.StartTimer()
		if _, err := segment.NewWriter(dir).Write(acc, uint64(i+1)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSegmentLookup(b *testing.B) {
	tok := tokenizer.New()
	acc := index.NewAccumulator()
	for d := 0; d < 5000; d++ {
		acc.InsertTerms(tok.Tokenize(syntheticDoc(d, 100)), index.DocID(d+1))
	}
	dir := b.TempDir()
	if _, err := segment.NewWriter(dir).Write(acc, 1); err != nil {
		b.Fatal(err)
	}
	gen, err := segment.Open(dir)
	if err != nil {
		b.Fatal(err)
	}
	defer gen.Close()

	terms := []string{"unique2500", "lexicon", "absentterm"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := gen.Lookup(terms[i%len(terms)]); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEngineBuild measures a full crawl, index and save of 500 files.
func BenchmarkEngineBuild(b *testing.B) {
	corpus := writeCorpus(b, 500)
	for _, workers := range []int{1, 4, 8} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			cfg := config.IndexerConfig{
				CorpusDir:  corpus,
				IndexRoot:  b.TempDir(),
				Workers:    workers,
				Extensions: []string{".txt"},
			}
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				e := indexer.NewEngine(cfg)
				if _, err := e.Build(context.Background(), corpus); err != nil {
					b.Fatal(err)
				}
				if _, err := e.Save(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
