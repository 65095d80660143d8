package segment

import (
	"bufio"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/vbyte"
)

// Writer serialises a frozen accumulator into the lexicon, offset array and
// postings files of one generation.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// WriteStats summarises a completed write.
type WriteStats struct {
	Generation    uint64
	Terms         int
	Postings      int
	LexiconBytes  int64
	PostingsBytes int64
}

// NewWriter creates a Writer that writes into dir.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		logger: slog.Default().With("component", "index-writer"),
	}
}

type checksumFile struct {
	f   *os.File
	crc hash.Hash32
	w   *bufio.Writer
}

func createChecksumFile(path string) (*checksumFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	crc := crc32.NewIEEE()
	return &checksumFile{
		f:   f,
		crc: crc,
		w:   bufio.NewWriterSize(io.MultiWriter(f, crc), 64*1024),
	}, nil
}

func (c *checksumFile) finish() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return err
	}
	if err := c.f.Sync(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// Write drains acc and writes every term in ascending order. The
// accumulator cannot be used for insertion afterwards. A failed write leaves
// partial files behind; callers stage the directory and rename on success.
func (w *Writer) Write(acc *index.Accumulator, generation uint64) (WriteStats, error) {
	stats := WriteStats{Generation: generation}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return stats, fmt.Errorf("creating index directory: %w", err)
	}
	lexicon, err := createChecksumFile(filepath.Join(w.dir, LexiconFile))
	if err != nil {
		return stats, fmt.Errorf("creating lexicon file: %w", err)
	}
	defer lexicon.f.Close()
	postings, err := createChecksumFile(filepath.Join(w.dir, PostingsFile))
	if err != nil {
		return stats, fmt.Errorf("creating postings file: %w", err)
	}
	defer postings.f.Close()

	entries := acc.Drain()
	array := make(OffsetArray, 0, len(entries))
	var termOffset, postingsOffset int64
	var prefix []byte
	for _, entry := range entries {
		if entry.Term == "" || strings.IndexByte(entry.Term, Delimiter) >= 0 {
			return stats, fmt.Errorf("%w: %q", ErrInvalidTerm, entry.Term)
		}
		pl := Weigh(entry.Postings, acc.Norm)
		payload := MarshalPostingList(pl)
		prefix = vbyte.Append(prefix[:0], uint64(len(payload)))

		if _, err := postings.w.Write(prefix); err != nil {
			return stats, fmt.Errorf("writing postings prefix for term %q: %w", entry.Term, err)
		}
		if _, err := postings.w.Write(payload); err != nil {
			return stats, fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		if _, err := lexicon.w.WriteString(entry.Term); err != nil {
			return stats, fmt.Errorf("writing lexicon term %q: %w", entry.Term, err)
		}
		if err := lexicon.w.WriteByte(Delimiter); err != nil {
			return stats, fmt.Errorf("writing lexicon delimiter: %w", err)
		}

		to, err := toInt32(termOffset)
		if err != nil {
			return stats, fmt.Errorf("lexicon offset of %q: %w", entry.Term, err)
		}
		po, err := toInt32(postingsOffset)
		if err != nil {
			return stats, fmt.Errorf("postings offset of %q: %w", entry.Term, err)
		}
		array = append(array, OffsetRecord{
			TermOffset:        to,
			PostingsOffset:    po,
			DocumentFrequency: int32(len(pl)),
		})
		termOffset += int64(len(entry.Term)) + 1
		postingsOffset += int64(len(prefix) + len(payload))
		stats.Postings += len(pl)
	}

	if err := lexicon.finish(); err != nil {
		return stats, fmt.Errorf("finishing lexicon file: %w", err)
	}
	if err := postings.finish(); err != nil {
		return stats, fmt.Errorf("finishing postings file: %w", err)
	}

	arrayFile, err := os.Create(filepath.Join(w.dir, OffsetArrayFile))
	if err != nil {
		return stats, fmt.Errorf("creating offset array file: %w", err)
	}
	defer arrayFile.Close()
	header := ArrayHeader{
		Generation:   generation,
		LexiconSize:  termOffset,
		PostingsSize: postingsOffset,
		LexiconCRC:   lexicon.crc.Sum32(),
		PostingsCRC:  postings.crc.Sum32(),
	}
	bw := bufio.NewWriter(arrayFile)
	if err := writeOffsetArray(bw, header, array); err != nil {
		return stats, err
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("flushing offset array: %w", err)
	}
	if err := arrayFile.Sync(); err != nil {
		return stats, fmt.Errorf("syncing offset array: %w", err)
	}

	stats.Terms = len(array)
	stats.LexiconBytes = termOffset
	stats.PostingsBytes = postingsOffset
	w.logger.Info("index generation written",
		"generation", generation,
		"terms", stats.Terms,
		"postings", stats.Postings,
		"lexicon_bytes", stats.LexiconBytes,
		"postings_bytes", stats.PostingsBytes,
	)
	return stats, nil
}

// Weigh turns the in-memory postings of a term into their stored form.
// Each weight is (1 + log10(tf)) / norm(doc); the result is ordered by
// descending weight, keeping input order among equal weights.
func Weigh(postings index.PostingList, norm func(index.DocID) float64) PostingList {
	pl := make(PostingList, len(postings))
	for i, p := range postings {
		pl[i] = Posting{
			DocID:     p.DocID,
			Positions: p.Positions,
			Weight:    (1 + math.Log10(float64(p.Frequency()))) / norm(p.DocID),
		}
	}
	sort.SliceStable(pl, func(i, j int) bool {
		return pl[i].Weight > pl[j].Weight
	})
	return pl
}
