package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// File names of the three coupled artifacts of one index generation.
const (
	LexiconFile     = "lexicon"
	OffsetArrayFile = "lexiconArray"
	PostingsFile    = "postings"
)

// Delimiter terminates every term in the lexicon file.
const Delimiter byte = '|'

// MagicBytes identifies a valid offset array file.
const (
	MagicBytes    uint32 = 0x53504C41
	FormatVersion uint32 = 1
	HeaderSize    int    = 48
	RecordSize    int    = 12
)

var (
	ErrCorrupt            = errors.New("segment: corrupt index")
	ErrGenerationMismatch = errors.New("segment: index files belong to different generations")
	ErrInvalidTerm        = errors.New("segment: invalid term")
	ErrTooLarge           = errors.New("segment: offset exceeds int32 range")
)

// OffsetRecord is one entry of the offset array. Its index in the array is
// the rank of its term in the lexicon.
type OffsetRecord struct {
	TermOffset        int32
	PostingsOffset    int32
	DocumentFrequency int32
}

// OffsetArray is the in-memory directory of a generation, ordered like the
// lexicon.
type OffsetArray []OffsetRecord

// ArrayHeader describes the generation an offset array belongs to and the
// exact sizes and checksums of its sibling files.
type ArrayHeader struct {
	Magic        uint32
	Version      uint32
	Generation   uint64
	Count        uint32
	LexiconSize  int64
	PostingsSize int64
	LexiconCRC   uint32
	PostingsCRC  uint32
	RecordsCRC   uint32
}

func (h ArrayHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Generation)
	binary.LittleEndian.PutUint32(buf[16:20], h.Count)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(h.LexiconSize))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(h.PostingsSize))
	binary.LittleEndian.PutUint32(buf[36:40], h.LexiconCRC)
	binary.LittleEndian.PutUint32(buf[40:44], h.PostingsCRC)
	binary.LittleEndian.PutUint32(buf[44:48], h.RecordsCRC)
	return buf
}

func decodeHeader(buf []byte) (ArrayHeader, error) {
	h := ArrayHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Version:      binary.LittleEndian.Uint32(buf[4:8]),
		Generation:   binary.LittleEndian.Uint64(buf[8:16]),
		Count:        binary.LittleEndian.Uint32(buf[16:20]),
		LexiconSize:  int64(binary.LittleEndian.Uint64(buf[20:28])),
		PostingsSize: int64(binary.LittleEndian.Uint64(buf[28:36])),
		LexiconCRC:   binary.LittleEndian.Uint32(buf[36:40]),
		PostingsCRC:  binary.LittleEndian.Uint32(buf[40:44]),
		RecordsCRC:   binary.LittleEndian.Uint32(buf[44:48]),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, h.Version)
	}
	return h, nil
}

func (a OffsetArray) encodeRecords() []byte {
	buf := make([]byte, len(a)*RecordSize)
	for i, rec := range a {
		off := i * RecordSize
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(rec.TermOffset))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(rec.PostingsOffset))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(rec.DocumentFrequency))
	}
	return buf
}

// writeOffsetArray serializes the header and records as one block.
func writeOffsetArray(w io.Writer, h ArrayHeader, a OffsetArray) error {
	records := a.encodeRecords()
	h.Magic = MagicBytes
	h.Version = FormatVersion
	h.Count = uint32(len(a))
	h.RecordsCRC = crc32.ChecksumIEEE(records)
	if _, err := w.Write(h.encode()); err != nil {
		return fmt.Errorf("writing offset array header: %w", err)
	}
	if _, err := w.Write(records); err != nil {
		return fmt.Errorf("writing offset array records: %w", err)
	}
	return nil
}

// ReadOffsetArray parses a serialized offset array and checks its record
// checksum.
func ReadOffsetArray(r io.Reader) (ArrayHeader, OffsetArray, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return ArrayHeader{}, nil, fmt.Errorf("reading offset array header: %w", err)
	}
	h, err := decodeHeader(headerBytes)
	if err != nil {
		return h, nil, err
	}
	records := make([]byte, int(h.Count)*RecordSize)
	if _, err := io.ReadFull(r, records); err != nil {
		return h, nil, fmt.Errorf("reading offset array records: %w", err)
	}
	if crc32.ChecksumIEEE(records) != h.RecordsCRC {
		return h, nil, fmt.Errorf("%w: offset array checksum mismatch", ErrCorrupt)
	}
	a := make(OffsetArray, h.Count)
	for i := range a {
		off := i * RecordSize
		a[i] = OffsetRecord{
			TermOffset:        int32(binary.LittleEndian.Uint32(records[off : off+4])),
			PostingsOffset:    int32(binary.LittleEndian.Uint32(records[off+4 : off+8])),
			DocumentFrequency: int32(binary.LittleEndian.Uint32(records[off+8 : off+12])),
		}
	}
	return h, a, nil
}

func toInt32(v int64) (int32, error) {
	if v < 0 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrTooLarge, v)
	}
	return int32(v), nil
}
