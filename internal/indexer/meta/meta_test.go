package meta

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementConcurrent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), FileName))
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Increment(TotalDocumentCount)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(64), s.Get(TotalDocumentCount))
	assert.Equal(t, int64(0), s.Get(TotalTermCount))
	assert.Equal(t, int64(0), s.Get("unknown"))
}

func TestPersistReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := New(path)
	s.Set(TotalDocumentCount, 3)
	s.Set(TotalTermCount, 17)
	s.Set(Generation, 1729331200123456789)
	built := time.Date(2026, 10, 19, 12, 0, 0, 5, time.UTC)
	s.SetBuiltAt(built)
	require.NoError(t, s.Persist())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "total_document_count: 3")
	assert.Contains(t, string(data), "total_term_count: 17")

	loaded := New(path)
	require.NoError(t, loaded.Reload())
	assert.Equal(t, int64(3), loaded.Get(TotalDocumentCount))
	assert.Equal(t, int64(17), loaded.Get(TotalTermCount))
	assert.Equal(t, int64(1729331200123456789), loaded.Get(Generation))
	assert.True(t, built.Equal(loaded.BuiltAt()))
	assert.Equal(t, s.values, loaded.values)
}

func TestReloadErrors(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, FileName))
	require.Error(t, s.Reload())

	require.NoError(t, os.WriteFile(s.Path(), []byte("total_document_count: [1, 2]\n"), 0644))
	require.Error(t, s.Reload())

	require.NoError(t, os.WriteFile(s.Path(), []byte("total_document_count: 4\nbuilt_at: yesterday\n"), 0644))
	require.Error(t, s.Reload())
}
