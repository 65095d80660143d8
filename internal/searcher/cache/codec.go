package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/vbyte"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how cached results are packed before they go to Redis.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
)

// values below this size are stored raw
const minCompressSize = 256

var errCorruptValue = errors.New("cache: corrupt value")

// ParseCompression maps a config value to a Compression. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown cache compression %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
)

// EncodeAll and DecodeAll are safe for concurrent use on a shared coder.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder) {
	zstdOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEnc, zstdDec
}

// pack frames data as [codec][VB raw length][payload]. Data that does not
// shrink is stored raw.
func pack(c Compression, data []byte) []byte {
	var payload []byte
	if len(data) >= minCompressSize {
		switch c {
		case CompressionLZ4:
			buf := make([]byte, lz4.CompressBlockBound(len(data)))
			if n, err := lz4.CompressBlock(data, buf, nil); err == nil && n > 0 {
				payload = buf[:n]
			}
		case CompressionZSTD:
			enc, _ := zstdCoders()
			payload = enc.EncodeAll(data, nil)
		}
	}
	if payload == nil || len(payload) >= len(data) {
		c, payload = CompressionNone, data
	}
	out := make([]byte, 0, 1+vbyte.Len(uint64(len(data)))+len(payload))
	out = append(out, byte(c))
	out = vbyte.Append(out, uint64(len(data)))
	return append(out, payload...)
}

func unpack(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, errCorruptValue
	}
	size, n, err := vbyte.Decode(value[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptValue, err)
	}
	payload := value[1+n:]

	switch Compression(value[0]) {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, errCorruptValue
		}
		return payload, nil
	case CompressionLZ4:
		out := make([]byte, size)
		m, err := lz4.UncompressBlock(payload, out)
		if err != nil || uint64(m) != size {
			return nil, fmt.Errorf("%w: lz4: %v", errCorruptValue, err)
		}
		return out, nil
	case CompressionZSTD:
		_, dec := zstdCoders()
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil || uint64(len(out)) != size {
			return nil, fmt.Errorf("%w: zstd: %v", errCorruptValue, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: codec %d", errCorruptValue, value[0])
	}
}
