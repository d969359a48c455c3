package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh SQLite file in the test's temp directory. A file is used
// instead of :memory: so concurrent tests can hold several connections to
// the same database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := Config{
		Driver: DialectSQLite,
		DSN:    filepath.Join(t.TempDir(), "jobs.db"),
		Pool: PoolConfig{
			MaxOpenConns: 8,
			MaxIdleConns: 4,
		},
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		cfg.Driver = DialectPostgres
		cfg.DSN = dsn
	}

	db, err := Open(cfg)
	require.NoError(t, err, "open test db")

	sqlDB, err := db.DB()
	require.NoError(t, err, "get underlying sql.DB")

	if cfg.Driver == DialectPostgres {
		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(db)
		t.Cleanup(func() {
			cleanupPostgresDB(db)
		})
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// cleanupPostgresDB deletes all rows so tests are isolated without
// requiring a fresh database per test.
func cleanupPostgresDB(db *gorm.DB) {
	if db.Migrator().HasTable(&core.Job{}) {
		db.Exec("DELETE FROM jobs")
	}
}

// newTestStorage creates a migrated GormStorage for testing.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

// newTestJob builds a requested job of jobType due at due.
func newTestJob(jobType string, due time.Time, params string) *core.Job {
	job := &core.Job{
		CreatedAt: due.Add(-time.Minute),
		DueDate:   due,
		Type:      jobType,
		State:     core.StateRequested,
	}
	if params != "" {
		job.Parameters = []byte(params)
	}
	return job
}

// insertJob inserts a job and fails the test on error.
func insertJob(t *testing.T, s *GormStorage, job *core.Job) *core.Job {
	t.Helper()
	require.NoError(t, s.Insert(context.Background(), job))
	require.NotZero(t, job.ID)
	return job
}

// claimed claims the next job of jobType and requires one to be available.
func claimed(t *testing.T, s *GormStorage, jobType, runner string) *core.Job {
	t.Helper()
	job, err := s.ClaimNext(context.Background(), jobType, runner, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, job, "expected a job to be claimed")
	return job
}
