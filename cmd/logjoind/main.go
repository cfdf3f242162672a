// Package main provides logjoind, the LogJoin tracking-pixel sessionizer
// service: it accepts raw pixel events over HTTP and/or Kafka, sessionizes
// them against a shared bbolt store, and feeds finalized sessions out to
// Kafka and Postgres.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixeljoin/logjoin/internal/adminapi"
	"github.com/pixeljoin/logjoin/internal/audit"
	"github.com/pixeljoin/logjoin/internal/config"
	"github.com/pixeljoin/logjoin/internal/feed"
	"github.com/pixeljoin/logjoin/internal/kafkaingress"
	"github.com/pixeljoin/logjoin/internal/kvstore/boltstore"
	"github.com/pixeljoin/logjoin/internal/logjoin"
	"github.com/pixeljoin/logjoin/internal/metrics"
	"github.com/pixeljoin/logjoin/internal/pixelingress"

	bolt "go.etcd.io/bbolt"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "logjoind"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	appCfg := config.LoadAppConfig()
	pixelCfg := pixelingress.LoadConfig()
	adminCfg := adminapi.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: appCfg.LogLevel,
	}))

	logger.Info("starting logjoind",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("bolt_db_path", appCfg.BoltDBPath),
		slog.Bool("dry_run", appCfg.DryRun),
		slog.Bool("kafka_ingress_enabled", appCfg.EnableKafkaIngress),
	)

	db, err := boltstore.Open(appCfg.BoltDBPath)
	if err != nil {
		logger.Error("failed to open bbolt store", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	counters := metrics.New(appCfg.StatsPrefix)

	var target logjoin.JoinTarget = logjoin.NewCountingJoinTarget(counters)

	shard := buildShard(appCfg, logger)

	var auditStore *audit.Store
	if appCfg.AuditDatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		auditStore, err = audit.Open(ctx, appCfg.AuditDatabaseURL)
		cancel()

		if err != nil {
			logger.Error("failed to connect to audit database", slog.Any("error", err))
			os.Exit(1)
		}

		defer auditStore.Close()

		var archiver audit.Archiver
		if appCfg.AuditArchiveS3Bucket != "" {
			archiveCtx, archiveCancel := context.WithTimeout(context.Background(), 10*time.Second)

			archiver, err = audit.NewS3Archiver(archiveCtx, appCfg.AuditArchiveS3Bucket, appCfg.AuditArchiveS3Prefix)
			archiveCancel()

			if err != nil {
				logger.Error("failed to build s3 archiver", slog.Any("error", err))
				os.Exit(1)
			}
		}

		target = audit.NewRecordingJoinTarget(target, auditStore, archiver, logger)
	} else {
		logger.Info("audit database url not configured, flush auditing disabled")
	}

	core := logjoin.New(
		logjoin.NewParamCodec(),
		target,
		logjoin.WithIdleTimeout(appCfg.IdleTimeout),
		logjoin.WithDryRun(appCfg.DryRun),
		logjoin.WithShardPredicate(shard),
		logjoin.WithStats(counters),
		logjoin.WithLogger(logger),
	)

	if err := bootstrap(db, core); err != nil {
		logger.Error("failed to rebuild deadline index from store", slog.Any("error", err))
		os.Exit(1)
	}

	var sink *feed.Sink
	if len(appCfg.KafkaBrokers) > 0 {
		writer, err := feed.NewWriter(feed.WriterConfig{
			Brokers: appCfg.KafkaBrokers,
			Topic:   appCfg.SessionFeedTopic,
		})
		if err != nil {
			logger.Error("failed to build session feed writer", slog.Any("error", err))
			os.Exit(1)
		}

		defer writer.Close()

		sink = feed.NewSink(writer)
	} else {
		logger.Info("kafka brokers not configured, session feed publishing disabled")
	}

	var kafkaConsumer *kafkaingress.Consumer
	if appCfg.EnableKafkaIngress {
		if len(appCfg.KafkaBrokers) == 0 {
			logger.Error("kafka ingress enabled but no brokers configured")
			os.Exit(1)
		}

		kafkaConsumer, err = kafkaingress.NewConsumer(kafkaingress.ConsumerConfig{
			Brokers: appCfg.KafkaBrokers,
			Topic:   appCfg.PixelRawTopic,
			GroupID: appCfg.KafkaGroupID,
		}, db, core, logger)
		if err != nil {
			logger.Error("failed to build kafka ingress consumer", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pixelServer := pixelingress.NewServer(db, core, pixelCfg)
	adminServer := adminapi.NewServer(adminCfg, counters, core.Deadlines(), counters.Registry())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 4)

	go func() { errCh <- pixelServer.Start() }()
	go func() { errCh <- adminServer.Start() }()

	if kafkaConsumer != nil {
		go func() { errCh <- kafkaConsumer.Run(ctx) }()
	}

	go runFlushLoop(ctx, db, core, appCfg.FlushInterval, logger)

	if sink != nil {
		go runFeedLoop(ctx, db, sink, appCfg.FeedInterval, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("a service component failed", slog.Any("error", err))
		}
	}

	logger.Info("logjoind stopped")
}

// buildShard picks a HashRangeShard when the deployment is configured to
// run multiple instances over disjoint uid buckets, falling back to
// AcceptAll for a single unsharded instance.
func buildShard(cfg config.AppConfig, logger *slog.Logger) logjoin.ShardPredicate {
	if cfg.ShardTotal <= 1 {
		return logjoin.AcceptAll
	}

	logger.Info("running as a shard",
		slog.Int("shard_index", int(cfg.ShardIndex)),
		slog.Int("shard_total", int(cfg.ShardTotal)),
	)

	return logjoin.NewHashRangeShard(cfg.ShardIndex, cfg.ShardTotal)
}

// bootstrap rebuilds the DeadlineIndex from whatever events are already in
// the store, the recovery step every restart must run before the first
// Insert call.
func bootstrap(db *bolt.DB, core *logjoin.LogJoin) error {
	return db.Update(func(tx *bolt.Tx) error {
		txn, err := boltstore.NewTxn(tx)
		if err != nil {
			return err
		}

		return core.ImportTimeoutList(txn)
	})
}

// runFlushLoop periodically evicts every user whose deadline has elapsed,
// ticking at interval until ctx is canceled.
func runFlushLoop(ctx context.Context, db *bolt.DB, core *logjoin.LogJoin, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			streamTime := time.Now().UnixMicro()

			err := db.Update(func(tx *bolt.Tx) error {
				txn, err := boltstore.NewTxn(tx)
				if err != nil {
					return err
				}

				return core.Flush(txn, streamTime)
			})
			if err != nil {
				logger.Error("flush pass failed", slog.Any("error", err))
			}
		}
	}
}

// runFeedLoop periodically drains queued session envelopes out to Kafka,
// ticking at interval until ctx is canceled.
func runFeedLoop(ctx context.Context, db *bolt.DB, sink *feed.Sink, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := db.Update(func(tx *bolt.Tx) error {
				txn, err := boltstore.NewTxn(tx)
				if err != nil {
					return err
				}

				published, drainErr := sink.Drain(ctx, txn)
				if published > 0 {
					logger.Debug("drained session envelopes", slog.Int("count", published))
				}

				return drainErr
			})
			if err != nil {
				logger.Error("feed drain pass failed", slog.Any("error", err))
			}
		}
	}
}
