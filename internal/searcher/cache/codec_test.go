package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/searcher/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte(`{"path":"/corpus/docs/file.txt","score":0.25},`), 40)
	tests := []struct {
		name  string
		codec Compression
		data  []byte
		want  Compression
	}{
		{"none", CompressionNone, compressible, CompressionNone},
		{"lz4", CompressionLZ4, compressible, CompressionLZ4},
		{"zstd", CompressionZSTD, compressible, CompressionZSTD},
		{"small stays raw", CompressionZSTD, []byte(`{"q":"dog"}`), CompressionNone},
		{"empty", CompressionLZ4, nil, CompressionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := pack(tt.codec, tt.data)
			assert.Equal(t, byte(tt.want), packed[0])
			if tt.want != CompressionNone {
				assert.Less(t, len(packed), len(tt.data))
			}
			got, err := unpack(packed)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			assert.True(t, bytes.Equal(tt.data, got))
		})
	}
}

func TestUnpackRejectsCorruptValues(t *testing.T) {
	for _, value := range [][]byte{
		nil,
		{byte(CompressionNone)},
		append([]byte{byte(CompressionNone)}, 0x85, 'a', 'b'),
		append([]byte{byte(CompressionZSTD)}, 0x84, 1, 2, 3),
		{9, 0x80},
	} {
		_, err := unpack(value)
		assert.ErrorIs(t, err, errCorruptValue, "value %x", value)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestCompressedCacheRoundTrip(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, WithCompression(CompressionZSTD))

	big := &executor.SearchResult{Query: "dog", Kind: "free_text", Generation: 3, TermStats: map[string]int{"dog": 60}}
	for i := range 60 {
		big.Results = append(big.Results, executor.Hit{DocID: 0, Path: fmt.Sprintf("/corpus/docs/%03d.txt", i), Score: 0.5})
	}
	big.TotalHits = len(big.Results)

	c.Set(context.Background(), 3, plan("dog"), 60, big)
	for _, v := range store.data {
		assert.Equal(t, byte(CompressionZSTD), v[0])
	}
	got, ok := c.Get(context.Background(), 3, plan("dog"), 60)
	require.True(t, ok)
	assert.Equal(t, big, got)
}
