package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	gen     uint64
	onDisk  uint64
	loads   int
	loadErr error
}

func (f *fakeEngine) Load(context.Context) error {
	f.loads++
	if f.loadErr != nil {
		return f.loadErr
	}
	f.gen = f.onDisk
	return nil
}

func (f *fakeEngine) Generation() uint64 { return f.gen }

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) Invalidate(context.Context) (int64, error) {
	f.calls++
	return 3, f.err
}

func event(t *testing.T, gen uint64) []byte {
	t.Helper()
	b, err := json.Marshal(notify.IndexComplete{Generation: gen, Documents: 3})
	require.NoError(t, err)
	return b
}

func TestReloadsNewGeneration(t *testing.T) {
	e := &fakeEngine{gen: 1, onDisk: 2}
	c := &fakeCache{}
	h := HandleIndexComplete(e, c)

	require.NoError(t, h(context.Background(), nil, event(t, 2)))
	assert.Equal(t, 1, e.loads)
	assert.Equal(t, uint64(2), e.gen)
	assert.Equal(t, 1, c.calls)
}

func TestSkipsCurrentGeneration(t *testing.T) {
	e := &fakeEngine{gen: 2, onDisk: 2}
	c := &fakeCache{}
	require.NoError(t, HandleIndexComplete(e, c)(context.Background(), nil, event(t, 2)))
	assert.Zero(t, e.loads)
	assert.Zero(t, c.calls)
}

func TestLoadFailureIsReturned(t *testing.T) {
	loadErr := errors.New("index files are inconsistent")
	e := &fakeEngine{gen: 1, loadErr: loadErr}
	c := &fakeCache{}
	err := HandleIndexComplete(e, c)(context.Background(), nil, event(t, 2))
	require.ErrorIs(t, err, loadErr)
	assert.Zero(t, c.calls)
}

func TestInvalidationFailureDoesNotFailMessage(t *testing.T) {
	e := &fakeEngine{gen: 1, onDisk: 2}
	c := &fakeCache{err: errors.New("redis down")}
	require.NoError(t, HandleIndexComplete(e, c)(context.Background(), nil, event(t, 2)))
	assert.Equal(t, 1, c.calls)
}

func TestNilInvalidator(t *testing.T) {
	e := &fakeEngine{gen: 0, onDisk: 5}
	require.NoError(t, HandleIndexComplete(e, nil)(context.Background(), nil, event(t, 5)))
	assert.Equal(t, uint64(5), e.gen)
}
