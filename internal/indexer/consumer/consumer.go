// Package consumer keeps a searcher's loaded index generation current by
// consuming index.complete events from Kafka.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/notify"
	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/pkg/kafka"
)

// Reloader is satisfied by *indexer.Engine.
type Reloader interface {
	Load(ctx context.Context) error
	Generation() uint64
}

// Invalidator is satisfied by *cache.QueryCache.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

// ReloadConsumer wraps a Kafka consumer subscribed to index.complete.
type ReloadConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *ReloadConsumer {
	return &ReloadConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "reload-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (rc *ReloadConsumer) Start(ctx context.Context) error {
	rc.logger.Info("reload consumer starting")
	return rc.consumer.Start(ctx)
}

// HandleIndexComplete returns a handler that loads the announced generation
// and then drops cached results. Events for the generation already being
// served are acknowledged without reloading. inv may be nil.
func HandleIndexComplete(r Reloader, inv Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-consumer")
	return notify.Handler(func(ctx context.Context, event notify.IndexComplete) error {
		current := r.Generation()
		if event.Generation == current {
			logger.Debug("generation already loaded", "generation", current)
			return nil
		}
		if err := r.Load(ctx); err != nil {
			return fmt.Errorf("reloading index for generation %d: %w", event.Generation, err)
		}
		loaded := r.Generation()
		if loaded != event.Generation {
			logger.Warn("loaded generation differs from announced",
				"announced", event.Generation,
				"loaded", loaded,
			)
		}
		logger.Info("index reloaded",
			"previous", current,
			"generation", loaded,
			"documents", event.Documents,
		)
		if inv == nil {
			return nil
		}
		if _, err := inv.Invalidate(ctx); err != nil {
			logger.Error("cache invalidation after reload failed", "error", err)
		}
		return nil
	})
}
