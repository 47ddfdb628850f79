package storage

import "time"

// PostgresConfig tunes the pgx connection pool backing the Postgres
// repository.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	ConnectTimeout      time.Duration
	ApplicationName     string
}

// PostgresOption overrides a PostgresConfig field.
type PostgresOption func(*PostgresConfig)

// WithMaxConnections caps the pool size.
func WithMaxConnections(n int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if n > 0 {
			cfg.MaxConnections = n
		}
	}
}

// WithMinConnections keeps idle connections warm.
func WithMinConnections(n int32) PostgresOption {
	return func(cfg *PostgresConfig) {
		if n >= 0 {
			cfg.MinConnections = n
		}
	}
}

// WithConnLifetimes bounds how long pooled connections live and idle.
func WithConnLifetimes(lifetime, idle time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if lifetime > 0 {
			cfg.MaxConnLifetime = lifetime
		}
		if idle > 0 {
			cfg.MaxConnIdleTime = idle
		}
	}
}

// WithHealthCheckInterval sets the pool health check period.
func WithHealthCheckInterval(interval time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if interval > 0 {
			cfg.HealthCheckInterval = interval
		}
	}
}

// WithConnectTimeout bounds new connection establishment.
func WithConnectTimeout(timeout time.Duration) PostgresOption {
	return func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.ConnectTimeout = timeout
		}
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) PostgresOption {
	return func(cfg *PostgresConfig) {
		if name != "" {
			cfg.ApplicationName = name
		}
	}
}

func newPostgresConfig(dsn string, opts ...PostgresOption) PostgresConfig {
	cfg := PostgresConfig{DSN: dsn}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
