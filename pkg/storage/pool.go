package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// MaxIdleConns is the maximum number of connections in the idle pool.
	// Default: 5
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	// Default: 5 minutes
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	// Default: 1 minute
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DefaultPoolConfig returns the pool settings used when none are given.
// A worker holds at most one connection for claiming plus one for progress
// reports, so the defaults stay small.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// PoolOption configures connection pool settings.
type PoolOption interface {
	applyPool(*PoolConfig)
}

type poolOptionFunc func(*PoolConfig)

func (f poolOptionFunc) applyPool(c *PoolConfig) { f(c) }

// MaxOpenConns sets the maximum number of open connections.
func MaxOpenConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxOpenConns = n
	})
}

// MaxIdleConns sets the maximum number of idle connections.
func MaxIdleConns(n int) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.MaxIdleConns = n
	})
}

// ConnMaxLifetime sets the maximum connection lifetime.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxLifetime = d
	})
}

// ConnMaxIdleTime sets the maximum idle time for connections.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return poolOptionFunc(func(c *PoolConfig) {
		c.ConnMaxIdleTime = d
	})
}

// ConfigurePool applies pool configuration to a GORM database connection.
func ConfigurePool(db *gorm.DB, config PoolConfig, opts ...PoolOption) error {
	for _, opt := range opts {
		opt.applyPool(&config)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return nil
}

// Config describes how to open the job database.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is a PostgreSQL connection string or a SQLite file path.
	DSN string `mapstructure:"dsn"`
	// AutoMigrate creates the jobs table on open.
	AutoMigrate bool       `mapstructure:"auto_migrate"`
	Pool        PoolConfig `mapstructure:"pool"`
	// LogLevel is the GORM logger level. Zero silences SQL logging.
	LogLevel logger.LogLevel `mapstructure:"-"`
}

// Open connects to the configured database and applies pool settings.
//
// SQLite connections are opened with immediate transactions, a busy timeout
// and WAL journaling so that concurrent runners serialize their claims on the
// database write lock.
func Open(cfg Config, opts ...PoolOption) (*gorm.DB, error) {
	level := cfg.LogLevel
	if level == 0 {
		level = logger.Silent
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	pool := cfg.Pool
	if pool == (PoolConfig{}) {
		pool = DefaultPoolConfig()
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DialectPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
	case DialectSQLite, "":
		if path := sqlitePath(cfg.DSN); path != "" && !isMemoryDSN(cfg.DSN) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(SQLiteDSN(cfg.DSN)), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
		}
		if isMemoryDSN(cfg.DSN) {
			// every connection to :memory: is a separate database
			pool.MaxOpenConns = 1
			pool.MaxIdleConns = 1
			pool.ConnMaxLifetime = 0
			pool.ConnMaxIdleTime = 0
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := ConfigurePool(db, pool, opts...); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&core.Job{}); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return db, nil
}

// SQLiteDSN appends the connection parameters the claiming protocol relies on
// unless the caller already set them.
func SQLiteDSN(dsn string) string {
	if dsn == "" {
		dsn = "jobs.db"
	}
	params := []struct{ key, value string }{
		{"_txlock", "immediate"},
		{"_busy_timeout", "5000"},
		{"_journal_mode", "WAL"},
	}
	for _, p := range params {
		if p.key == "_journal_mode" && isMemoryDSN(dsn) {
			continue
		}
		if strings.Contains(dsn, p.key+"=") {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + p.key + "=" + p.value
	}
	return dsn
}

func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	return strings.TrimPrefix(path, "file:")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
