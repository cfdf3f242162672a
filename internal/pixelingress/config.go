// Package pixelingress serves the HTTP pixel endpoint: it decodes the
// request's query string into a pipe-wrapper logline and hands it to the
// shared LogJoin core. It deliberately never serves a 1x1 GIF response
// body — decoding is its only job.
package pixelingress

import (
	"time"

	"github.com/pixeljoin/logjoin/internal/config"
)

const (
	// DefaultPort is the default pixel listener port.
	DefaultPort = 8080
	// DefaultHost is the default pixel listener host.
	DefaultHost = "0.0.0.0"
	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 5 * time.Second
	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 5 * time.Second
	// DefaultShutdownTimeout is the default graceful-shutdown grace period.
	DefaultShutdownTimeout = 15 * time.Second
	// DefaultGlobalRPS is the default global rate-limit budget.
	DefaultGlobalRPS = 5000
	// DefaultSourceRPS is the default per-source-IP rate-limit budget.
	DefaultSourceRPS = 50
)

// Config holds pixelingress server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	GlobalRPS       int
	SourceRPS       int
	// CustomerKeyHeader, if set, is read for the customer key instead of
	// deriving one from the request's remote address.
	CustomerKeyHeader string
}

// LoadConfig reads pixelingress configuration from the environment.
func LoadConfig() Config {
	return Config{
		Host:              config.GetEnvStr("LOGJOIN_PIXEL_HOST", DefaultHost),
		Port:              config.GetEnvInt("LOGJOIN_PIXEL_PORT", DefaultPort),
		ReadTimeout:       config.GetEnvDuration("LOGJOIN_PIXEL_READ_TIMEOUT", DefaultReadTimeout),
		WriteTimeout:      config.GetEnvDuration("LOGJOIN_PIXEL_WRITE_TIMEOUT", DefaultWriteTimeout),
		ShutdownTimeout:   config.GetEnvDuration("LOGJOIN_PIXEL_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		GlobalRPS:         config.GetEnvInt("LOGJOIN_PIXEL_GLOBAL_RPS", DefaultGlobalRPS),
		SourceRPS:         config.GetEnvInt("LOGJOIN_PIXEL_SOURCE_RPS", DefaultSourceRPS),
		CustomerKeyHeader: config.GetEnvStr("LOGJOIN_PIXEL_CUSTOMER_KEY_HEADER", "X-Customer-Key"),
	}
}
