// Package notify announces saved index generations on Kafka so that every
// searcher can reload the new generation and drop stale cached results.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/kafka"
)

// EventType is carried in the event-type header of every message.
const EventType = "index.complete"

// IndexComplete is the message published after a generation was saved.
type IndexComplete struct {
	Generation uint64    `json:"generation"`
	IndexDir   string    `json:"index_dir"`
	Documents  int64     `json:"documents"`
	Terms      int       `json:"terms"`
	BuiltAt    time.Time `json:"built_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier implements indexer.Reporter by publishing IndexComplete events.
type Notifier struct {
	pub    Publisher
	logger *slog.Logger
}

func New(pub Publisher) *Notifier {
	return &Notifier{
		pub:    pub,
		logger: slog.Default().With("component", "index-notifier"),
	}
}

func (n *Notifier) Report(ctx context.Context, r indexer.BuildReport) error {
	event := IndexComplete{
		Generation: r.Generation,
		IndexDir:   r.IndexDir,
		Documents:  r.Documents,
		Terms:      r.Terms,
		BuiltAt:    r.FinishedAt.UTC(),
	}
	err := n.pub.Publish(ctx, kafka.Event{
		Key:   r.IndexDir,
		Value: event,
		Headers: map[string]string{
			kafka.HeaderEventType: EventType,
			"generation": strconv.FormatUint(r.Generation, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("announcing generation %d: %w", r.Generation, err)
	}
	n.logger.Info("generation announced", "generation", r.Generation, "index_dir", r.IndexDir)
	return nil
}

// Handler adapts fn into a kafka.MessageHandler. Undecodable messages are
// logged and acknowledged so that they do not block the partition.
func Handler(fn func(ctx context.Context, event IndexComplete) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-notifier")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IndexComplete](value)
		if err != nil {
			logger.Error("failed to decode index event", "key", string(key), "error", err)
			return nil
		}
		return fn(ctx, event)
	}
}
