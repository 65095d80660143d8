package segment

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/vbyte"
)

const termChunk = 64

// Generation is an opened, immutable set of index files. Lookups only use
// ReadAt, so a Generation is safe for concurrent use until Close.
type Generation struct {
	dir      string
	header   ArrayHeader
	array    OffsetArray
	lexicon  *os.File
	postings *os.File
	logger   *slog.Logger
}

// Open loads the offset array of dir into memory and opens its lexicon and
// postings files. The sizes recorded in the offset array header must match
// the files on disk.
func Open(dir string) (*Generation, error) {
	header, array, err := readArrayFile(filepath.Join(dir, OffsetArrayFile))
	if err != nil {
		return nil, err
	}
	lexicon, err := openSized(filepath.Join(dir, LexiconFile), header.LexiconSize)
	if err != nil {
		return nil, err
	}
	postings, err := openSized(filepath.Join(dir, PostingsFile), header.PostingsSize)
	if err != nil {
		lexicon.Close()
		return nil, err
	}
	g := &Generation{
		dir:      dir,
		header:   header,
		array:    array,
		lexicon:  lexicon,
		postings: postings,
		logger:   slog.Default().With("component", "index-reader"),
	}
	g.logger.Debug("index generation opened",
		"dir", dir,
		"generation", header.Generation,
		"terms", len(array),
	)
	return g, nil
}

func readArrayFile(path string) (ArrayHeader, OffsetArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return ArrayHeader{}, nil, fmt.Errorf("opening offset array: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ArrayHeader{}, nil, fmt.Errorf("stat offset array: %w", err)
	}
	if info.Size() < int64(HeaderSize) {
		return ArrayHeader{}, nil, fmt.Errorf("%w: offset array too small (%d bytes)", ErrCorrupt, info.Size())
	}
	header, array, err := ReadOffsetArray(bufio.NewReader(f))
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return header, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return header, nil, err
	}
	if want := int64(HeaderSize) + int64(len(array))*int64(RecordSize); info.Size() != want {
		return header, nil, fmt.Errorf("%w: offset array is %d bytes, header describes %d", ErrCorrupt, info.Size(), want)
	}
	return header, array, nil
}

func openSized(path string, want int64) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() != want {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, offset array expects %d",
			ErrGenerationMismatch, filepath.Base(path), info.Size(), want)
	}
	return f, nil
}

// ID is the generation identifier shared by all three files.
func (g *Generation) ID() uint64 {
	return g.header.Generation
}

// Header returns the offset array header.
func (g *Generation) Header() ArrayHeader {
	return g.header
}

// Len is the number of distinct terms.
func (g *Generation) Len() int {
	return len(g.array)
}

// Record returns the i-th offset record.
func (g *Generation) Record(i int) OffsetRecord {
	return g.array[i]
}

func (g *Generation) termEnd(i int) int64 {
	if i+1 < len(g.array) {
		return int64(g.array[i+1].TermOffset)
	}
	return g.header.LexiconSize
}

func (g *Generation) postingsEnd(i int) int64 {
	if i+1 < len(g.array) {
		return int64(g.array[i+1].PostingsOffset)
	}
	return g.header.PostingsSize
}

// TermAt reads the i-th term from the lexicon, scanning from its offset up
// to the next delimiter.
func (g *Generation) TermAt(i int) (string, error) {
	if i < 0 || i >= len(g.array) {
		return "", fmt.Errorf("%w: term index %d out of range", ErrCorrupt, i)
	}
	off := int64(g.array[i].TermOffset)
	limit := g.header.LexiconSize
	var term []byte
	buf := make([]byte, termChunk)
	for off < limit {
		n := int64(len(buf))
		if off+n > limit {
			n = limit - off
		}
		read, err := g.lexicon.ReadAt(buf[:n], off)
		if read == 0 && err != nil {
			return "", fmt.Errorf("reading lexicon at %d: %w", off, err)
		}
		if j := bytes.IndexByte(buf[:read], Delimiter); j >= 0 {
			term = append(term, buf[:j]...)
			return string(term), nil
		}
		term = append(term, buf[:read]...)
		off += int64(read)
	}
	return "", fmt.Errorf("%w: unterminated term at offset %d", ErrCorrupt, g.array[i].TermOffset)
}

// Locate binary searches the lexicon for term and returns its rank.
func (g *Generation) Locate(term string) (int, bool, error) {
	low, high := 0, len(g.array)-1
	for low <= high {
		mid := low + (high-low)/2
		candidate, err := g.TermAt(mid)
		if err != nil {
			return 0, false, err
		}
		switch {
		case candidate == term:
			return mid, true, nil
		case candidate < term:
			low = mid + 1
		default:
			high = mid - 1
		}
	}
	return 0, false, nil
}

// Fetch decodes the posting list of the i-th term. The length prefix must
// land exactly on the next term's postings offset and the decoded list must
// hold as many postings as the recorded document frequency.
func (g *Generation) Fetch(i int) (PostingList, error) {
	if i < 0 || i >= len(g.array) {
		return nil, fmt.Errorf("%w: term index %d out of range", ErrCorrupt, i)
	}
	rec := g.array[i]
	start := int64(rec.PostingsOffset)
	end := g.postingsEnd(i)
	if end <= start || end > g.header.PostingsSize {
		return nil, fmt.Errorf("%w: postings span [%d,%d) of term %d", ErrCorrupt, start, end, i)
	}
	span := make([]byte, end-start)
	if _, err := g.postings.ReadAt(span, start); err != nil {
		return nil, fmt.Errorf("reading postings at %d: %w", start, err)
	}
	length, n, err := vbyte.Decode(span)
	if err != nil {
		return nil, fmt.Errorf("%w: postings length prefix at %d: %v", ErrCorrupt, start, err)
	}
	if uint64(n)+length != uint64(len(span)) {
		return nil, fmt.Errorf("%w: postings length %d at %d disagrees with next offset %d",
			ErrCorrupt, length, start, end)
	}
	pl, err := UnmarshalPostingList(span[n:])
	if err != nil {
		return nil, err
	}
	if len(pl) != int(rec.DocumentFrequency) {
		return nil, fmt.Errorf("%w: term %d has %d postings, document frequency is %d",
			ErrCorrupt, i, len(pl), rec.DocumentFrequency)
	}
	return pl, nil
}

// Lookup returns the posting list of term. A term that is not indexed
// yields found == false and no error.
func (g *Generation) Lookup(term string) (PostingList, bool, error) {
	i, found, err := g.Locate(term)
	if err != nil || !found {
		return nil, false, err
	}
	pl, err := g.Fetch(i)
	if err != nil {
		return nil, false, err
	}
	return pl, true, nil
}

// Terms reads the full lexicon in order.
func (g *Generation) Terms() ([]string, error) {
	data := make([]byte, g.header.LexiconSize)
	if _, err := g.lexicon.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	terms := make([]string, 0, len(g.array))
	for i, rec := range g.array {
		start, end := int64(rec.TermOffset), g.termEnd(i)-1
		if start < 0 || end < start || end >= int64(len(data)) || data[end] != Delimiter {
			return nil, fmt.Errorf("%w: term %d spans [%d,%d]", ErrCorrupt, i, start, end)
		}
		terms = append(terms, string(data[start:end]))
	}
	return terms, nil
}

// Verify checks the lexicon and postings checksums, that every offset chain
// starts at zero and strictly increases, that the lexicon is sorted, and
// that each length-prefixed posting list ends exactly where the next one
// begins and holds DocumentFrequency postings.
func (g *Generation) Verify() error {
	if err := verifyChecksum(g.lexicon, g.header.LexiconSize, g.header.LexiconCRC); err != nil {
		return fmt.Errorf("lexicon: %w", err)
	}
	if err := verifyChecksum(g.postings, g.header.PostingsSize, g.header.PostingsCRC); err != nil {
		return fmt.Errorf("postings: %w", err)
	}
	if len(g.array) > 0 && (g.array[0].TermOffset != 0 || g.array[0].PostingsOffset != 0) {
		return fmt.Errorf("%w: first term does not start at offset 0", ErrCorrupt)
	}
	for i := 1; i < len(g.array); i++ {
		prev, cur := g.array[i-1], g.array[i]
		if cur.TermOffset <= prev.TermOffset || cur.PostingsOffset <= prev.PostingsOffset {
			return fmt.Errorf("%w: offsets of term %d do not increase", ErrCorrupt, i)
		}
	}
	terms, err := g.Terms()
	if err != nil {
		return err
	}
	if !sort.StringsAreSorted(terms) {
		return fmt.Errorf("%w: lexicon is not sorted", ErrCorrupt)
	}
	return g.verifyPostings()
}

// verifyPostings walks the postings file once, in lexicon order.
func (g *Generation) verifyPostings() error {
	r := bufio.NewReader(io.NewSectionReader(g.postings, 0, g.header.PostingsSize))
	var (
		pos     int64
		payload []byte
	)
	for i, rec := range g.array {
		end := g.postingsEnd(i)
		length, n, err := vbyte.Read(r)
		if err != nil {
			return fmt.Errorf("%w: postings length prefix of term %d at %d: %v", ErrCorrupt, i, pos, err)
		}
		if pos+int64(n) > end || uint64(end-pos-int64(n)) != length {
			return fmt.Errorf("%w: postings length %d at %d disagrees with next offset %d",
				ErrCorrupt, length, rec.PostingsOffset, end)
		}
		payload = slices.Grow(payload[:0], int(length))[:length]
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("reading postings of term %d: %w", i, err)
		}
		pl, err := UnmarshalPostingList(payload)
		if err != nil {
			return fmt.Errorf("term %d: %w", i, err)
		}
		if len(pl) != int(rec.DocumentFrequency) {
			return fmt.Errorf("%w: term %d has %d postings, document frequency is %d",
				ErrCorrupt, i, len(pl), rec.DocumentFrequency)
		}
		pos = end
	}
	if pos != g.header.PostingsSize {
		return fmt.Errorf("%w: %d trailing postings bytes", ErrCorrupt, g.header.PostingsSize-pos)
	}
	return nil
}

func verifyChecksum(f *os.File, size int64, want uint32) error {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, io.NewSectionReader(f, 0, size)); err != nil {
		return fmt.Errorf("checksumming: %w", err)
	}
	if got := h.Sum32(); got != want {
		return fmt.Errorf("%w: checksum %08x, expected %08x", ErrCorrupt, got, want)
	}
	return nil
}

// Close releases the lexicon and postings file handles.
func (g *Generation) Close() error {
	return errors.Join(g.lexicon.Close(), g.postings.Close())
}
