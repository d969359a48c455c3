// Package storage provides storage implementations for the jobs package.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/simple-job-worker/pkg/core"
)

// GormStorage implements core.Store using GORM.
type GormStorage struct {
	db *gorm.DB
}

var _ core.Store = (*GormStorage)(nil)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// WithTx returns a storage that issues its statements inside tx.
// Claiming and progress updates are refused on such a handle because they
// must run in a transaction of their own.
func (s *GormStorage) WithTx(tx *gorm.DB) *GormStorage {
	return &GormStorage{db: tx}
}

// DB returns the underlying database handle.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// inTransaction reports whether the handle is bound to an open transaction.
func (s *GormStorage) inTransaction() bool {
	if s.db.Statement == nil {
		return false
	}
	_, ok := s.db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

// Insert adds a job row and fills in its ID.
func (s *GormStorage) Insert(ctx context.Context, job *core.Job) error {
	if job.State == "" {
		job.State = core.StateRequested
	}
	return s.db.WithContext(ctx).Create(job).Error
}

// ClaimNext moves the oldest due requested job of jobType to the started
// state on behalf of runner. It returns (nil, nil) when nothing is due.
//
// The whole select-and-update runs in one transaction holding an exclusive
// lock on the jobs table (PostgreSQL) or the database write lock (SQLite
// opened through Open). The update is additionally guarded on the requested
// state so a lost race yields no job instead of a double claim.
func (s *GormStorage) ClaimNext(ctx context.Context, jobType, runner string, now time.Time) (*core.Job, error) {
	if s.inTransaction() {
		return nil, core.ErrUncommittedChanges
	}
	now = now.UTC()

	var claimed *core.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockTable(tx); err != nil {
			return fmt.Errorf("lock jobs table: %w", err)
		}

		var job core.Job
		result := tx.
			Where("type = ?", jobType).
			Where("state = ?", string(core.StateRequested)).
			Where("due_date <= ?", now).
			Order("due_date ASC, id ASC").
			First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		update := tx.Model(&core.Job{}).
			Where("id = ? AND state = ?", job.ID, string(core.StateRequested)).
			Updates(map[string]any{
				"state":      string(core.StateStarted),
				"runner":     runner,
				"updated_at": now,
				"started_at": now,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return nil
		}

		job.State = core.StateStarted
		job.Runner = &runner
		job.UpdatedAt = &now
		job.StartedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Finish marks a started job finished and inserts the successor, if any,
// in the same transaction. The runner is cleared.
func (s *GormStorage) Finish(ctx context.Context, c core.Completion) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&core.Job{}).
			Where("id = ? AND state = ? AND runner = ?", c.JobID, string(core.StateStarted), c.Runner).
			Updates(map[string]any{
				"state":              string(core.StateFinished),
				"runner":             nil,
				"updated_at":         c.FinishedAt,
				"result":             datatypes.JSON(c.Result),
				"processing_time_ms": c.ProcessingTimeMs,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return core.ErrJobNotOwned
		}

		if c.Successor != nil {
			if c.Successor.State == "" {
				c.Successor.State = core.StateRequested
			}
			if err := tx.Create(c.Successor).Error; err != nil {
				return fmt.Errorf("add successor job: %w", err)
			}
		}
		return nil
	})
}

// Reset returns a started job to the requested state and clears its runner,
// start time and progress counters.
func (s *GormStorage) Reset(ctx context.Context, jobID int64, runner string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND state = ? AND runner = ?", jobID, string(core.StateStarted), runner).
		Updates(map[string]any{
			"state":            string(core.StateRequested),
			"runner":           nil,
			"started_at":       nil,
			"successful_items": nil,
			"failed_items":     nil,
			"updated_at":       now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// SetTotalItems records the number of items a job will process.
func (s *GormStorage) SetTotalItems(ctx context.Context, jobID int64, total int, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"total_items": total,
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotFound
	}
	return nil
}

// AddProgress increments the successful or failed counter of a job.
// The row is locked for the duration of the read-modify-write so concurrent
// reporters never lose an increment.
func (s *GormStorage) AddProgress(ctx context.Context, jobID int64, items int, failed bool, now time.Time) (*core.Progress, error) {
	if s.inTransaction() {
		return nil, core.ErrUncommittedChanges
	}

	var progress *core.Progress
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job core.Job
		query := tx.Select("id", "total_items", "successful_items", "failed_items")
		if s.supportsRowLocks() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Where("id = ?", jobID).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrJobNotFound
			}
			return err
		}

		column := "successful_items"
		counter := &job.SuccessfulItems
		if failed {
			column = "failed_items"
			counter = &job.FailedItems
		}
		next := items
		if *counter != nil {
			next += **counter
		}
		*counter = &next

		if err := tx.Model(&core.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]any{
				column:       next,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}

		progress = &core.Progress{
			TotalItems:      job.TotalItems,
			SuccessfulItems: job.SuccessfulItems,
			FailedItems:     job.FailedItems,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// FindExisting returns the oldest job matching the filter, or nil.
func (s *GormStorage) FindExisting(ctx context.Context, f core.FindFilter) (*core.Job, error) {
	query := s.db.WithContext(ctx).Where("type = ?", f.Type)
	if f.IncludeStarted {
		query = query.Where("state IN ?", []string{string(core.StateRequested), string(core.StateStarted)})
	} else {
		query = query.Where("state = ?", string(core.StateRequested))
	}
	if f.DueBefore != nil {
		query = query.Where("due_date <= ?", f.DueBefore.UTC())
	}
	query = query.Order("due_date ASC, id ASC")

	if len(f.Parameters) == 0 {
		return first(query)
	}
	if s.IsPostgres() {
		return first(query.Where("parameters @> CAST(? AS jsonb)", string(f.Parameters)))
	}

	wanted, err := decodeDocument(f.Parameters)
	if err != nil {
		return nil, fmt.Errorf("decode parameter filter: %w", err)
	}
	var candidates []*core.Job
	if err := query.Where("parameters IS NOT NULL").Find(&candidates).Error; err != nil {
		return nil, err
	}
	for _, job := range candidates {
		stored, err := decodeDocument(job.Parameters)
		if err != nil {
			continue
		}
		if jsonContains(stored, wanted) {
			return job, nil
		}
	}
	return nil, nil
}

// Count returns the number of jobs of jobType, optionally restricted to state.
func (s *GormStorage) Count(ctx context.Context, jobType string, state core.JobState) (int64, error) {
	query := s.db.WithContext(ctx).Model(&core.Job{}).Where("type = ?", jobType)
	if state != "" {
		query = query.Where("state = ?", string(state))
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// GetJob retrieves a job by ID. Returns (nil, nil) if it does not exist.
func (s *GormStorage) GetJob(ctx context.Context, id int64) (*core.Job, error) {
	return first(s.db.WithContext(ctx).Where("id = ?", id))
}

// Delete removes the jobs matching the filter and returns how many were removed.
// An empty filter is rejected.
func (s *GormStorage) Delete(ctx context.Context, f core.DeleteFilter) (int64, error) {
	if f.Empty() {
		return 0, core.ErrMissingDeleteFilter
	}

	query := s.db.WithContext(ctx)
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.State != "" {
		query = query.Where("state = ?", string(f.State))
	}
	if !f.OlderThan.IsZero() {
		query = query.Where("COALESCE(updated_at, created_at) < ?", f.OlderThan.UTC())
	}

	result := query.Delete(&core.Job{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func first(query *gorm.DB) (*core.Job, error) {
	var job core.Job
	if err := query.First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}
