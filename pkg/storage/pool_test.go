package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 1*time.Minute, cfg.ConnMaxIdleTime)
}

func TestPoolOptions_Apply(t *testing.T) {
	cfg := DefaultPoolConfig()
	for _, opt := range []PoolOption{
		MaxOpenConns(3),
		MaxIdleConns(2),
		ConnMaxLifetime(time.Minute),
		ConnMaxIdleTime(time.Second),
	} {
		opt.applyPool(&cfg)
	}

	assert.Equal(t, 3, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, time.Second, cfg.ConnMaxIdleTime)
}

func TestConfigurePool(t *testing.T) {
	db, err := Open(Config{Driver: DialectSQLite, DSN: filepath.Join(t.TempDir(), "pool.db")})
	require.NoError(t, err)

	require.NoError(t, ConfigurePool(db, DefaultPoolConfig(), MaxOpenConns(7)))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.Equal(t, 7, sqlDB.Stats().MaxOpenConnections)
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jobs.db", "jobs.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL"},
		{"", "jobs.db?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL"},
		{"data/jobs.db?cache=shared", "data/jobs.db?cache=shared&_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL"},
		{"jobs.db?_txlock=exclusive", "jobs.db?_txlock=exclusive&_busy_timeout=5000&_journal_mode=WAL"},
		{":memory:", ":memory:?_txlock=immediate&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLiteDSN(tt.in))
		})
	}
}

func TestOpen_SQLiteCreatesDirectoryAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "jobs.db")

	db, err := Open(Config{Driver: DialectSQLite, DSN: path, AutoMigrate: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("jobs"))
}

func TestOpen_MemoryUsesSingleConnection(t *testing.T) {
	db, err := Open(Config{Driver: DialectSQLite, DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	s := NewGormStorage(db)
	count, err := s.Count(context.Background(), "import", "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
