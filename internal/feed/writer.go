// Package feed delivers finalized session envelopes to the downstream
// "logjoin.sessions" Kafka topic. It is the egress counterpart of
// internal/kafkaingress: where that package feeds raw pixel lines in, this
// package drains the "__sessionq-" envelope keys the LogJoin core writes
// and publishes them out.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the output topic envelopes are published to.
	Topic string

	// MaxAttempts bounds how many write attempts Publish makes in total.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is passed to the kafka writer as its write timeout.
	// Defaults to 10s if zero. Publish also bounds each attempt with its
	// own fixed 5s context.
	WriteTimeout time.Duration
}

// Writer publishes session envelopes keyed by session id, so every envelope
// for the same session lands on the same partition.
type Writer struct {
	writer      *kafka.Writer
	maxAttempts int
}

// NewWriter builds a Writer from cfg.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: at least one broker required")
	}

	if cfg.Topic == "" {
		return nil, fmt.Errorf("feed: topic required")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &Writer{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// Publish writes one encoded envelope, keyed by sessionID, retrying any
// write error with a capped exponential backoff.
func (w *Writer) Publish(ctx context.Context, sessionID string, envelope []byte) error {
	var lastErr error

	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := w.writer.WriteMessages(attemptCtx, kafka.Message{
			Key:   []byte(sessionID),
			Value: envelope,
			Time:  time.Now().UTC(),
		})
		cancel()

		if err == nil {
			return nil
		}

		lastErr = err

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("feed: publish canceled: %w", ctx.Err())
		}

		if backoff < 2*time.Second {
			backoff *= 2
		}
	}

	return fmt.Errorf("feed: publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (w *Writer) Close() error {
	if w == nil || w.writer == nil {
		return nil
	}

	return w.writer.Close()
}
