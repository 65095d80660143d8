// Package vbyte implements the variable-byte integer encoding used to
// length-prefix serialized posting lists.
//
// A value is split into 7-bit groups, most significant group first. The
// final byte of an encoding carries the high bit; every earlier byte has it
// clear. Zero is the one exception: it encodes to the single byte 0x00,
// which decoders treat as terminal only when it is the first byte read.
package vbyte

import (
	"errors"
	"io"
)

// MaxLen is the longest encoding of a uint64.
const MaxLen = 10

var (
	ErrTruncated = errors.New("vbyte: truncated encoding")
	ErrOverflow  = errors.New("vbyte: encoding overflows uint64")
)

// Encode returns the variable-byte encoding of n.
func Encode(n uint64) []byte {
	return Append(make([]byte, 0, Len(n)), n)
}

// Append appends the encoding of n to dst and returns the extended slice.
func Append(dst []byte, n uint64) []byte {
	if n == 0 {
		return append(dst, 0)
	}
	start := len(dst)
	for n > 0 {
		dst = append(dst, byte(n&0x7f))
		n >>= 7
	}
	for i, j := start, len(dst)-1; i < j; i, j = i+1, j-1 {
		dst[i], dst[j] = dst[j], dst[i]
	}
	dst[len(dst)-1] |= 0x80
	return dst
}

// Len returns the number of bytes Encode(n) produces.
func Len(n uint64) int {
	if n == 0 {
		return 1
	}
	l := 0
	for n > 0 {
		l++
		n >>= 7
	}
	return l
}

// Decode decodes the integer at the start of buf and reports how many bytes
// it occupied.
func Decode(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, ErrTruncated
	}
	if buf[0] == 0 {
		return 0, 1, nil
	}
	var v uint64
	for i, b := range buf {
		if i == MaxLen {
			return 0, 0, ErrOverflow
		}
		if v > (1<<64-1)>>7 {
			return 0, 0, ErrOverflow
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 != 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

// Read decodes one integer from r, consuming exactly the bytes of its
// encoding. It returns io.EOF only when r is exhausted before the first byte.
func Read(r io.ByteReader) (uint64, int, error) {
	var v uint64
	for n := 0; ; n++ {
		if n == MaxLen {
			return 0, n, ErrOverflow
		}
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && n == 0 {
				return 0, 0, io.EOF
			}
			if err == io.EOF {
				return 0, n, ErrTruncated
			}
			return 0, n, err
		}
		if n == 0 && b == 0 {
			return 0, 1, nil
		}
		if v > (1<<64-1)>>7 {
			return 0, n + 1, ErrOverflow
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 != 0 {
			return v, n + 1, nil
		}
	}
}
