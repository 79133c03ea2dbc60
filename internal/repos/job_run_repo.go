package repos

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/convoindex/internal/dbctx"
	"github.com/yungbote/convoindex/internal/domain"
	"github.com/yungbote/convoindex/internal/logger"
)

// JobRunRepo is the Job Broker's persistence layer (§4.3). Grounded on the
// teacher's repos/jobs.JobRunRepo.ClaimNextRunnable, which already does the
// "SELECT ... FOR UPDATE SKIP LOCKED" + conditional reclaim-on-stale-lease
// pattern this spec needs; this version adds priority ordering and a
// dedup-key coalescing insert.
type JobRunRepo interface {
	// Enqueue inserts a new queued job, or — if dedupKey is set and a
	// pending job with the same key exists within the dedup window —
	// coalesces into the existing job and returns it unchanged (§4.3).
	Enqueue(dbc dbctx.Context, jobType string, priority domain.JobPriority, payload []byte, dedupKey *string, dedupWindow time.Duration, delay time.Duration) (*domain.JobRun, error)

	// ClaimNextRunnable atomically claims one ready job in priority order
	// (high before default before low), locking its row and setting a
	// lease that expires at now+visibilityTimeout.
	ClaimNextRunnable(dbc dbctx.Context, workerID string, classes []domain.JobPriority, visibilityTimeout time.Duration) (*domain.JobRun, error)

	Ack(dbc dbctx.Context, id uuid.UUID) error

	// Nack releases the lease, increments attempts, and reschedules with
	// backoff, or moves the job to dead-letter if attempts are exhausted.
	Nack(dbc dbctx.Context, id uuid.UUID, reason string, maxAttempts int, backoffBase, backoffCap time.Duration) error

	// SweepExpiredLeases releases any job whose lease expired without an
	// ack/nack, treating it as an implicit nack (§4.3 lease_expired_sweeper).
	SweepExpiredLeases(dbc dbctx.Context, backoffBase time.Duration) (int64, error)

	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error)

	CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

func tx(dbc dbctx.Context, db *gorm.DB) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return db.WithContext(dbc.Ctx)
}

func (r *jobRunRepo) Enqueue(dbc dbctx.Context, jobType string, priority domain.JobPriority, payload []byte, dedupKey *string, dedupWindow time.Duration, delay time.Duration) (*domain.JobRun, error) {
	now := time.Now()
	return withResult(func(fc func(tx *gorm.DB) error) error { return r.db.WithContext(dbc.Ctx).Transaction(fc) }, func(txx *gorm.DB) (*domain.JobRun, error) {
		if dedupKey != nil && *dedupKey != "" {
			var existing domain.JobRun
			err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("dedup_key = ? AND status = ? AND created_at > ?", *dedupKey, domain.JobQueued, now.Add(-dedupWindow)).
				Order("created_at DESC").
				Limit(1).
				First(&existing).Error
			if err == nil {
				return &existing, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
		}
		job := &domain.JobRun{
			JobType:     jobType,
			Priority:    priority,
			Status:      domain.JobQueued,
			DedupKey:    dedupKey,
			AvailableAt: now.Add(delay),
			Payload:     payload,
		}
		if err := txx.Create(job).Error; err != nil {
			return nil, err
		}
		return job, nil
	})
}

func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, workerID string, classes []domain.JobPriority, visibilityTimeout time.Duration) (*domain.JobRun, error) {
	now := time.Now()
	return withResult(func(fc func(tx *gorm.DB) error) error { return r.db.WithContext(dbc.Ctx).Transaction(fc) }, func(txx *gorm.DB) (*domain.JobRun, error) {
		var job domain.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND available_at <= ?", domain.JobQueued, now)
		if len(classes) > 0 {
			q = q.Where("priority IN ?", classes)
		}
		// CASE ordering keeps "high before default before low" independent
		// of alphabetic sort, then FIFO within a class (§4.3 Ordering).
		q = q.Order(`CASE priority WHEN 'high' THEN 0 WHEN 'default' THEN 1 WHEN 'low' THEN 2 ELSE 1 END ASC`).
			Order("created_at ASC")

		err := q.First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		lease := now.Add(visibilityTimeout)
		upd := txx.Model(&domain.JobRun{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":           domain.JobRunning,
			"attempts":         gorm.Expr("attempts + 1"),
			"lease_expires_at": lease,
			"locked_by":        workerID,
			"updated_at":       now,
		})
		if upd.Error != nil {
			return nil, upd.Error
		}
		job.Status = domain.JobRunning
		job.Attempts++
		job.LeaseExpiresAt = &lease
		job.LockedBy = &workerID
		return &job, nil
	})
}

func (r *jobRunRepo) Ack(dbc dbctx.Context, id uuid.UUID) error {
	return tx(dbc, r.db).Where("id = ?", id).Delete(&domain.JobRun{}).Error
}

func (r *jobRunRepo) Nack(dbc dbctx.Context, id uuid.UUID, reason string, maxAttempts int, backoffBase, backoffCap time.Duration) error {
	now := time.Now()
	return r.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.JobRun
		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if job.Attempts >= maxAttempts {
			if err := txx.Create(&domain.DeadLetter{
				OriginJobID: job.ID,
				JobType:     job.JobType,
				Reason:      reason,
				Payload:     job.Payload,
			}).Error; err != nil {
				return err
			}
			return txx.Where("id = ?", id).Delete(&domain.JobRun{}).Error
		}

		delay := backoff(job.Attempts, backoffBase, backoffCap)
		return txx.Model(&domain.JobRun{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":           domain.JobQueued,
			"last_error":       reason,
			"last_error_at":    now,
			"available_at":     now.Add(delay),
			"lease_expires_at": nil,
			"locked_by":        nil,
			"updated_at":       now,
		}).Error
	})
}

func (r *jobRunRepo) SweepExpiredLeases(dbc dbctx.Context, backoffBase time.Duration) (int64, error) {
	now := time.Now()
	res := tx(dbc, r.db).Model(&domain.JobRun{}).
		Where("status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?", domain.JobRunning, now).
		Updates(map[string]interface{}{
			"status":           domain.JobQueued,
			"last_error":       "lease expired",
			"last_error_at":    now,
			"available_at":     now.Add(backoffBase),
			"lease_expires_at": nil,
			"locked_by":        nil,
			"updated_at":       now,
		})
	return res.RowsAffected, res.Error
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.JobRun, error) {
	var job domain.JobRun
	if err := tx(dbc, r.db).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *jobRunRepo) CountByStatus(dbc dbctx.Context, status domain.JobStatus) (int64, error) {
	var n int64
	err := tx(dbc, r.db).Model(&domain.JobRun{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	jitter := time.Duration(pseudoJitter(attempt)) % base
	return d + jitter
}

// pseudoJitter avoids a crypto/rand dependency for a cosmetic jitter term;
// it is deterministic per attempt count, which is fine since the base delay
// already dominates backoff growth.
func pseudoJitter(attempt int) int64 {
	return int64(attempt*2654435761) & 0x7fffffff
}

func withResult[T any](txFn func(func(*gorm.DB) error) error, f func(*gorm.DB) (T, error)) (T, error) {
	var out T
	err := txFn(func(txx *gorm.DB) error {
		v, err := f(txx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
