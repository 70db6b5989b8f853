// Package eventbus publishes two optional event types over Kafka:
// document.indexed after a batch flush, and cache.invalidate so that
// independently deployed read replicas of the query engine know to call
// reload_delta_index/reload_metadata. Publishes are synchronous, so they
// run on the caller's goroutine (the batch writer's, after a flush);
// failures are logged and swallowed, never returned.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/paperindex/docsearch/pkg/config"
	"github.com/segmentio/kafka-go"
)

// DocumentIndexed is published once per newly searchable doc_id.
type DocumentIndexed struct {
	DocID     string    `json:"doc_id"`
	Title     string    `json:"title"`
	IndexedAt time.Time `json:"indexed_at"`
}

// CacheInvalidate signals that a batch flush completed and cached query
// responses should be discarded.
type CacheInvalidate struct {
	FlushedAt time.Time `json:"flushed_at"`
	DocCount  int       `json:"doc_count"`
}

// Bus publishes JSON-encoded events to the configured Kafka topics.
type Bus struct {
	docIndexed *kafka.Writer
	invalidate *kafka.Writer
	logger     *slog.Logger
}

// New creates a Bus. Callers should check cfg.Enabled() first; New still
// works against an unreachable broker since kafka-go connects lazily.
func New(cfg config.KafkaConfig) *Bus {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			Async:        false,
		}
	}
	return &Bus{
		docIndexed: newWriter(cfg.Topics.DocumentIndexed),
		invalidate: newWriter(cfg.Topics.CacheInvalidate),
		logger:     slog.Default().With("component", "eventbus"),
	}
}

// PublishDocumentIndexed publishes one event per doc_id; errors are logged,
// never returned, per the writer's "never propagate across boundaries" rule.
func (b *Bus) PublishDocumentIndexed(ctx context.Context, ev DocumentIndexed) {
	b.publish(ctx, b.docIndexed, ev.DocID, ev)
}

// PublishCacheInvalidate publishes one event after a completed flush.
func (b *Bus) PublishCacheInvalidate(ctx context.Context, ev CacheInvalidate) {
	b.publish(ctx, b.invalidate, "flush", ev)
}

func (b *Bus) publish(ctx context.Context, w *kafka.Writer, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		b.logger.Error("marshaling event", "error", err)
		return
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		b.logger.Warn("publish failed, dropping event", "topic", w.Topic, "error", err)
	}
}

// Close closes both underlying writers.
func (b *Bus) Close() error {
	if err := b.docIndexed.Close(); err != nil {
		return fmt.Errorf("closing document.indexed writer: %w", err)
	}
	return b.invalidate.Close()
}
