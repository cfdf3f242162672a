// Package adminapi provides the operator-facing HTTP surface: liveness,
// stats, and deadline-index diagnostics, fronted by a shared-secret JWT.
package adminapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/pixeljoin/logjoin/internal/config"
)

const (
	// DefaultPort is the default admin listener port.
	DefaultPort = 9090
	// DefaultHost is the default admin listener host.
	DefaultHost = "0.0.0.0"
	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultShutdownTimeout is the default graceful-shutdown grace period.
	DefaultShutdownTimeout = 15 * time.Second
)

// Static validation errors.
var (
	ErrInvalidPort = errors.New("invalid admin port")
	ErrEmptyHost   = errors.New("admin host cannot be empty")
	ErrEmptyJWTKey = errors.New("admin JWT signing key cannot be empty")
)

// Config holds adminapi server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// JWTSigningKey is the HS256 shared secret bearer tokens are signed
	// and verified with. /statsz and /debug/deadlines reject requests
	// without a valid token; /healthz and /metrics never require one.
	JWTSigningKey string
}

// LoadConfig reads adminapi configuration from the environment.
func LoadConfig() Config {
	return Config{
		Host:            config.GetEnvStr("LOGJOIN_ADMIN_HOST", DefaultHost),
		Port:            config.GetEnvInt("LOGJOIN_ADMIN_PORT", DefaultPort),
		ReadTimeout:     config.GetEnvDuration("LOGJOIN_ADMIN_READ_TIMEOUT", DefaultReadTimeout),
		WriteTimeout:    config.GetEnvDuration("LOGJOIN_ADMIN_WRITE_TIMEOUT", DefaultWriteTimeout),
		ShutdownTimeout: config.GetEnvDuration("LOGJOIN_ADMIN_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		JWTSigningKey:   config.GetEnvStr("LOGJOIN_ADMIN_JWT_SECRET", ""),
	}
}

// Address returns the listener address in host:port form.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.JWTSigningKey == "" {
		return ErrEmptyJWTKey
	}

	return nil
}
