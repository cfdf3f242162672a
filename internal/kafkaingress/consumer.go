// Package kafkaingress feeds raw pixel loglines from a Kafka topic into
// the shared LogJoin core, as a higher-throughput alternative to
// internal/pixelingress's HTTP endpoint. It is the ingress counterpart of
// internal/feed: where that package drains "__sessionq-" envelopes out,
// this package reads "pixel.raw" lines in.
package kafkaingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	bolt "go.etcd.io/bbolt"

	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the input topic carrying pipe-wrapper loglines.
	Topic string

	// GroupID is the consumer group id. Required so multiple kafkaingress
	// replicas can share a topic's partitions.
	GroupID string

	// CommitBatchSize bounds how many messages are processed in one bbolt
	// write transaction before committing their Kafka offsets. Defaults
	// to 1 (commit per message) if <= 0, trading throughput for the
	// tightest possible at-most-once-per-flush-transaction window.
	CommitBatchSize int
}

// Consumer wraps a kafka.Reader, feeding each message into the shared
// LogJoin core inside a bbolt write transaction. The core's transaction
// commits before the Kafka offset does, so a crash mid-batch reprocesses
// the batch rather than silently dropping it (spec.md §5's "at most once
// per flush transaction" framing, applied symmetrically on ingest).
type Consumer struct {
	reader *kafka.Reader
	db     *bolt.DB
	core   *logjoin.LogJoin
	logger *slog.Logger

	batchSize int
	mu        sync.Mutex
}

// NewConsumer builds a Consumer from cfg, reading into core's store db.
func NewConsumer(cfg ConsumerConfig, db *bolt.DB, core *logjoin.LogJoin, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkaingress: at least one broker required")
	}

	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkaingress: topic required")
	}

	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafkaingress: group id required")
	}

	batchSize := cfg.CommitBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
		// CommitInterval 0 means every commit is explicit via CommitMessages,
		// which Run only calls after the corresponding bbolt txn commits.
		CommitInterval: 0,
	})

	return &Consumer{
		reader:    reader,
		db:        db,
		core:      core,
		logger:    logger,
		batchSize: batchSize,
	}, nil
}

// Run polls the topic until ctx is canceled or an unrecoverable read error
// occurs. Malformed loglines are logged and skipped (loglines_invalid is
// incremented by the core itself); only store or broker errors abort Run.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("kafkaingress: fetch batch: %w", err)
		}

		if len(batch) == 0 {
			continue
		}

		if err := c.processBatch(ctx, batch); err != nil {
			return fmt.Errorf("kafkaingress: process batch: %w", err)
		}
	}
}

// fetchBatch reads up to batchSize messages, blocking on the first one.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	batch := []kafka.Message{first}

	for len(batch) < c.batchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			break
		}

		batch = append(batch, msg)
	}

	return batch, nil
}

// processBatch inserts every message in one bbolt write transaction, then
// commits the Kafka offsets only once that transaction has committed.
func (c *Consumer) processBatch(ctx context.Context, batch []kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return fmt.Errorf("open transaction: %w", err)
		}

		for _, msg := range batch {
			if err := c.core.InsertLogline(string(msg.Value), txn); err != nil {
				if !errors.Is(err, logjoin.ErrParse) && !errors.Is(err, logjoin.ErrUnknownParam) {
					return fmt.Errorf("insert logline at offset %d: %w", msg.Offset, err)
				}

				c.logger.Warn("kafkaingress: dropping malformed logline",
					slog.Int64("offset", msg.Offset),
					slog.Any("error", err),
				)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := c.reader.CommitMessages(ctx, batch...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}

	return nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}

	return c.reader.Close()
}
