package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Generation uint64 `json:"generation"`
	Dir        string `json:"dir"`
}

func TestEncodeEvent(t *testing.T) {
	msg, err := encodeEvent(Event{
		Key:     "gen-7",
		Value:   sample{Generation: 7, Dir: "/idx"},
		Headers: map[string]string{"type": "index.complete"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("gen-7"), msg.Key)
	assert.JSONEq(t, `{"generation":7,"dir":"/idx"}`, string(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte("index.complete"), msg.Headers[0].Value)

	_, err = encodeEvent(Event{Value: make(chan int)})
	require.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[sample]([]byte(`{"generation":9,"dir":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, sample{Generation: 9, Dir: "x"}, got)

	_, err = DecodeJSON[sample]([]byte(`{`))
	require.Error(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishSortsHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "index-complete")
	require.NoError(t, p.Publish(context.Background(), Event{
		Key:     "/idx",
		Value:   sample{Generation: 3},
		Headers: map[string]string{"generation": "3", HeaderEventType: "index.complete", "b": "x"},
	}))
	require.Len(t, w.msgs, 1)
	var keys []string
	for _, h := range w.msgs[0].Headers {
		keys = append(keys, h.Key)
	}
	assert.Equal(t, []string{"b", HeaderEventType, "generation"}, keys)
}

func TestPublishWrapsWriterError(t *testing.T) {
	brokerErr := errors.New("not enough replicas")
	p := newProducer(&fakeWriter{err: brokerErr}, "index-complete")
	err := p.Publish(context.Background(), Event{Key: "k", Value: 1})
	require.ErrorIs(t, err, brokerErr)
	assert.Contains(t, err.Error(), "index-complete")
}
