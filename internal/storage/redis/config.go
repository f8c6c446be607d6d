package redis

import "time"

// Config holds Redis connection and locking settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces every key written by the store
	KeyPrefix string

	// LockTTL expires update locks left behind by a crashed process
	LockTTL time.Duration

	// LockTimeout bounds how long an update lock is waited for
	LockTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "partyroom",
		LockTTL:      30 * time.Second,
		LockTimeout:  5 * time.Second,
	}
}
