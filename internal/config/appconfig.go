package config

import (
	"log/slog"
	"time"
)

// AppConfig aggregates the settings cmd/logjoind needs that don't belong
// to any one HTTP surface: where the bbolt database lives, the sharding
// and idle-timeout behavior of the LogJoin core, and the Kafka/Postgres/S3
// coordinates of its downstream collaborators.
type AppConfig struct {
	BoltDBPath  string
	IdleTimeout time.Duration
	DryRun      bool
	StatsPrefix string
	LogLevel    slog.Level

	// ShardIndex/ShardTotal configure a HashRangeShard when ShardTotal > 1.
	// ShardTotal == 1 (the default) runs unsharded (logjoin.AcceptAll).
	ShardIndex uint32
	ShardTotal uint32

	KafkaBrokers     []string
	PixelRawTopic    string
	SessionFeedTopic string
	KafkaGroupID     string

	AuditDatabaseURL     string
	AuditMigrationsPath  string
	AuditRetentionDays   int
	AuditArchiveS3Bucket string
	AuditArchiveS3Prefix string

	// EnableKafkaIngress turns on the kafkaingress.Consumer alongside the
	// pixelingress HTTP server. Both may run in the same process and feed
	// the same core through the same bbolt handle; each guards its write
	// transactions with its own mutex.
	EnableKafkaIngress bool

	FlushInterval time.Duration
	FeedInterval  time.Duration
	AuditInterval time.Duration
}

// LoadAppConfig reads top-level service configuration from the environment.
func LoadAppConfig() AppConfig {
	return AppConfig{
		BoltDBPath:  GetEnvStr("LOGJOIN_BOLT_DB_PATH", "./data/logjoin.db"),
		IdleTimeout: GetEnvDuration("LOGJOIN_IDLE_TIMEOUT", 30*time.Minute),
		DryRun:      GetEnvBool("LOGJOIN_DRY_RUN", false),
		StatsPrefix: GetEnvStr("LOGJOIN_STATS_PREFIX", "logjoin"),
		LogLevel:    GetEnvLogLevel("LOGJOIN_LOG_LEVEL", slog.LevelInfo),

		ShardIndex: uint32(GetEnvInt("LOGJOIN_SHARD_INDEX", 0)),
		ShardTotal: uint32(GetEnvInt("LOGJOIN_SHARD_TOTAL", 1)),

		KafkaBrokers:     ParseCommaSeparatedList(GetEnvStr("LOGJOIN_KAFKA_BROKERS", "")),
		PixelRawTopic:    GetEnvStr("LOGJOIN_KAFKA_PIXEL_TOPIC", "pixel.raw"),
		SessionFeedTopic: GetEnvStr("LOGJOIN_KAFKA_SESSION_TOPIC", "logjoin.sessions"),
		KafkaGroupID:     GetEnvStr("LOGJOIN_KAFKA_GROUP_ID", "logjoind"),

		AuditDatabaseURL:     GetEnvStr("LOGJOIN_AUDIT_DATABASE_URL", ""),
		AuditMigrationsPath:  GetEnvStr("LOGJOIN_AUDIT_MIGRATIONS_PATH", "file://migrations"),
		AuditRetentionDays:   GetEnvInt("LOGJOIN_AUDIT_RETENTION_DAYS", 30),
		AuditArchiveS3Bucket: GetEnvStr("LOGJOIN_AUDIT_ARCHIVE_BUCKET", ""),
		AuditArchiveS3Prefix: GetEnvStr("LOGJOIN_AUDIT_ARCHIVE_PREFIX", "logjoin-audit"),

		EnableKafkaIngress: GetEnvBool("LOGJOIN_ENABLE_KAFKA_INGRESS", false),

		FlushInterval: GetEnvDuration("LOGJOIN_FLUSH_INTERVAL", 1*time.Minute),
		FeedInterval:  GetEnvDuration("LOGJOIN_FEED_INTERVAL", 10*time.Second),
		AuditInterval: GetEnvDuration("LOGJOIN_AUDIT_ARCHIVE_INTERVAL", 24*time.Hour),
	}
}
