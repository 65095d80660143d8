// Package docstore maps document ids to the files they were read from. The
// store is an append-only log of length-delimited protobuf records. A Store
// appends to it during a build, and a Reader scans it linearly on lookup.
package docstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/index"
	"github.com/RoaringBitmap/roaring/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// FileName is the name of the store inside an index directory.
const FileName = "mapperIdFiles"

// maxRecordSize bounds a single record so a corrupt length cannot trigger a
// huge allocation.
const maxRecordSize = 1 << 20

const (
	fieldDocumentID protowire.Number = 1
	fieldFilePath   protowire.Number = 2
)

var ErrCorrupt = errors.New("docstore: corrupt record")

// Entry is one document id to file path association.
type Entry struct {
	DocID index.DocID
	Path  string
}

// Store buffers new entries in memory until Flush appends them to the log.
type Store struct {
	mu      sync.Mutex
	path    string
	pending []Entry
	logger  *slog.Logger
}

func New(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "docstore"),
	}
}

// Path is the location of the log file.
func (s *Store) Path() string {
	return s.path
}

// SetPath redirects subsequent reads and flushes, e.g. after the index
// directory was moved into place.
func (s *Store) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// Add records that docID was read from path. It is safe to call from many
// indexing workers at once.
func (s *Store) Add(docID index.DocID, path string) {
	s.mu.Lock()
	s.pending = append(s.pending, Entry{DocID: docID, Path: path})
	s.mu.Unlock()
}

// Flush appends all pending entries to the log and syncs it.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening doc store: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var buf []byte
	for _, e := range s.pending {
		buf = appendRecord(buf[:0], e)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("writing doc store record %d: %w", e.DocID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing doc store: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing doc store: %w", err)
	}
	s.logger.Debug("doc store flushed", "path", s.path, "records", len(s.pending))
	s.pending = nil
	return f.Close()
}

func appendRecord(dst []byte, e Entry) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldDocumentID, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(e.DocID))
	msg = protowire.AppendTag(msg, fieldFilePath, protowire.BytesType)
	msg = protowire.AppendString(msg, e.Path)

	dst = protowire.AppendVarint(dst, uint64(len(msg)))
	return append(dst, msg...)
}

func decodeRecord(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldDocumentID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, fmt.Errorf("%w: document id: %v", ErrCorrupt, protowire.ParseError(n))
			}
			e.DocID = index.DocID(v)
			b = b[n:]
		case num == fieldFilePath && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return e, fmt.Errorf("%w: file path: %v", ErrCorrupt, protowire.ParseError(n))
			}
			e.Path = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, fmt.Errorf("%w: field %d: %v", ErrCorrupt, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}

// scan calls fn for every flushed record until fn returns false.
func (s *Store) scan(fn func(Entry) bool) error {
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening doc store: %w", err)
	}
	defer f.Close()
	return scanRecords(f, fn)
}

func scanRecords(src io.Reader, fn func(Entry) bool) error {
	r := bufio.NewReader(src)
	var buf []byte
	for {
		size, err := binary.ReadUvarint(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: record length: %v", ErrCorrupt, err)
		}
		if size > maxRecordSize {
			return fmt.Errorf("%w: record of %d bytes", ErrCorrupt, size)
		}
		if cap(buf) < int(size) {
			buf = make([]byte, size)
		}
		buf = buf[:size]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%w: truncated record: %v", ErrCorrupt, err)
		}
		e, err := decodeRecord(buf)
		if err != nil {
			return err
		}
		if !fn(e) {
			return nil
		}
	}
}

// IDs returns the set of all flushed document ids.
func (s *Store) IDs() (*roaring.Bitmap, error) {
	ids := roaring.New()
	err := s.scan(func(e Entry) bool {
		ids.Add(uint32(e.DocID))
		return true
	})
	return ids, err
}

// Reader serves lookups from one flushed store. It keeps the file open, so
// it goes on answering from the same records after the index directory is
// replaced.
type Reader struct {
	f    *os.File
	size int64
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening doc store: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat doc store: %w", err)
	}
	return &Reader{f: f, size: info.Size()}, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// scan reads through a section reader so concurrent lookups do not share a
// file offset.
func (r *Reader) scan(fn func(Entry) bool) error {
	return scanRecords(io.NewSectionReader(r.f, 0, r.size), fn)
}

// Resolve returns the path of docID.
func (r *Reader) Resolve(docID index.DocID) (string, bool, error) {
	var (
		path  string
		found bool
	)
	err := r.scan(func(e Entry) bool {
		if e.DocID == docID {
			path, found = e.Path, true
			return false
		}
		return true
	})
	return path, found, err
}

// ResolveMany resolves a set of ids in a single pass over the log, stopping
// as soon as every requested id was seen. Unknown ids are absent from the
// result.
func (r *Reader) ResolveMany(ids []index.DocID) (map[index.DocID]string, error) {
	result := make(map[index.DocID]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	wanted := roaring.New()
	for _, id := range ids {
		wanted.Add(uint32(id))
	}
	remaining := wanted.GetCardinality()
	err := r.scan(func(e Entry) bool {
		if wanted.Contains(uint32(e.DocID)) {
			if _, dup := result[e.DocID]; !dup {
				remaining--
			}
			result[e.DocID] = e.Path
		}
		return remaining > 0
	})
	return result, err
}
