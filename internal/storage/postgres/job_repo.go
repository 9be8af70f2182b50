package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/retry"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const reclaimBatchSize = 100

// JobRepository is the durable job table. Every state transition is a single
// guarded UPDATE or runs inside a transaction holding the row lock.
type JobRepository struct {
	db                 *gorm.DB
	schedule           retry.Schedule
	defaultMaxAttempts int
	now                func() time.Time
}

func NewJobRepository(db *gorm.DB, schedule retry.Schedule, defaultMaxAttempts int) *JobRepository {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = 3
	}
	return &JobRepository{
		db:                 db,
		schedule:           schedule,
		defaultMaxAttempts: defaultMaxAttempts,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue inserts a queued job and returns its ID.
func (r *JobRepository) Enqueue(ctx context.Context, req storage.EnqueueRequest) (string, error) {
	job := r.newJob(req)
	if err := conn(ctx, r.db).Create(job).Error; err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return job.ID, nil
}

func (r *JobRepository) newJob(req storage.EnqueueRequest) *models.Job {
	now := r.now()
	availableAt := req.AvailableAt
	if availableAt.IsZero() {
		availableAt = now
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.defaultMaxAttempts
	}
	return &models.Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Payload:     datatypes.JSON(req.Payload),
		Status:      string(config.JobStatusQueued),
		MaxAttempts: maxAttempts,
		AvailableAt: availableAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ClaimNext atomically moves the oldest eligible queued job to processing
// and returns it. The selection and the update are one statement; on
// PostgreSQL the subquery also skips rows locked by competing claimers.
// Attempts are counted at claim time. Returns storage.ErrNoJobAvailable when
// nothing is eligible.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string, jobTypes []string) (*models.Job, error) {
	now := r.now()

	args := []any{
		string(config.JobStatusProcessing), workerID, now, now,
		string(config.JobStatusQueued), now,
	}
	typeFilter := ""
	if len(jobTypes) > 0 {
		typeFilter = " AND type IN ?"
		args = append(args, jobTypes)
	}
	lock := ""
	if r.db.Dialector.Name() == "postgres" {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	args = append(args, string(config.JobStatusQueued))

	query := "UPDATE jobs SET status = ?, claimed_by = ?, claimed_at = ?, attempts = attempts + 1, updated_at = ?" +
		" WHERE id = (SELECT id FROM jobs WHERE status = ? AND available_at <= ?" + typeFilter +
		" ORDER BY available_at ASC, created_at ASC LIMIT 1" + lock + ")" +
		" AND status = ? RETURNING id"

	var claimedID string
	res := r.db.WithContext(ctx).Raw(query, args...).Scan(&claimedID)
	if res.Error != nil {
		return nil, fmt.Errorf("claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 || claimedID == "" {
		return nil, storage.ErrNoJobAvailable
	}

	job, err := r.Get(ctx, claimedID)
	if err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}
	return job, nil
}

// Complete marks a claimed job completed. Completing a job already completed
// under the same claim is a no-op.
func (r *JobRepository) Complete(ctx context.Context, claim storage.Claim) error {
	now := r.now()
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where(claimGuard, claimArgs(claim)...).
		Updates(map[string]any{
			"status":       string(config.JobStatusCompleted),
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("complete job: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	job, err := r.Get(ctx, claim.JobID)
	if err != nil {
		return err
	}
	if job.Status == string(config.JobStatusCompleted) && heldBy(job, claim) {
		return nil
	}
	return fmt.Errorf("complete job %s in status %s: %w", claim.JobID, job.Status, storage.ErrJobNotClaimed)
}

// Fail records a failed attempt. The job goes back to the queue with the
// scheduled backoff, or to the dead-letter table once its attempts are spent.
func (r *JobRepository) Fail(ctx context.Context, claim storage.Claim, errMsg string) (storage.FailResult, error) {
	var result storage.FailResult
	now := r.now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockClaimed(tx, claim, "fail")
		if err != nil {
			return err
		}
		result.Attempts = job.Attempts

		if job.Attempts >= job.MaxAttempts {
			result.DeadLettered = true
			return moveToDeadLetter(tx, job, config.DeadLetterMaxAttempts, errMsg, now)
		}

		result.RetryAt = now.Add(r.schedule.Delay(job.Attempts))
		res := tx.Model(&models.Job{}).
			Where(claimGuard, claimArgs(claim)...).
			Updates(map[string]any{
				"status":       string(config.JobStatusQueued),
				"available_at": result.RetryAt,
				"claimed_by":   nil,
				"claimed_at":   nil,
				"last_error":   errMsg,
				"updated_at":   now,
			})
		if res.Error != nil {
			return fmt.Errorf("requeue job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("requeue job %s: %w", claim.JobID, storage.ErrJobNotClaimed)
		}
		return nil
	})
	if err != nil {
		return storage.FailResult{}, err
	}
	return result, nil
}

// DeadLetter moves a claimed job straight to the dead-letter table,
// regardless of its remaining attempts.
func (r *JobRepository) DeadLetter(ctx context.Context, claim storage.Claim, reason config.DeadLetterReason, errMsg string) error {
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockClaimed(tx, claim, "dead-letter")
		if err != nil {
			return err
		}
		return moveToDeadLetter(tx, job, reason, errMsg, now)
	})
}

// ReclaimStale returns processing jobs claimed before now-threshold to the
// queue. Jobs that already used their final attempt are dead-lettered
// instead. Each row is guarded on its claim time, so a job re-claimed in the
// meantime is left alone.
func (r *JobRepository) ReclaimStale(ctx context.Context, threshold time.Duration) (storage.ReclaimResult, error) {
	var result storage.ReclaimResult
	now := r.now()
	cutoff := now.Add(-threshold)

	var stale []models.Job
	if err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", string(config.JobStatusProcessing), cutoff).
		Order("claimed_at ASC").
		Limit(reclaimBatchSize).
		Find(&stale).Error; err != nil {
		return result, fmt.Errorf("list stale jobs: %w", err)
	}

	for _, job := range stale {
		if job.Attempts >= job.MaxAttempts {
			moved, err := r.deadLetterStale(ctx, job.ID, cutoff, threshold, now)
			if err != nil {
				return result, err
			}
			if moved {
				result.DeadLettered++
			}
			continue
		}

		res := r.db.WithContext(ctx).Model(&models.Job{}).
			Where("id = ? AND status = ? AND claimed_at < ?", job.ID, string(config.JobStatusProcessing), cutoff).
			Updates(map[string]any{
				"status":       string(config.JobStatusQueued),
				"available_at": now,
				"claimed_by":   nil,
				"claimed_at":   nil,
				"last_error":   fmt.Sprintf("claim expired after %s", threshold),
				"updated_at":   now,
			})
		if res.Error != nil {
			return result, fmt.Errorf("reclaim job: %w", res.Error)
		}
		result.Requeued += int(res.RowsAffected)
	}
	return result, nil
}

func (r *JobRepository) deadLetterStale(ctx context.Context, id string, cutoff time.Time, threshold time.Duration, now time.Time) (bool, error) {
	moved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.Job
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ? AND claimed_at < ?", id, string(config.JobStatusProcessing), cutoff).
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock stale job: %w", err)
		}
		lastErr := fmt.Sprintf("claim expired after %s on final attempt", threshold)
		if job.LastError != nil && *job.LastError != "" {
			lastErr = *job.LastError + "; " + lastErr
		}
		moved = true
		return moveToDeadLetter(tx, &job, config.DeadLetterStaleClaim, lastErr, now)
	})
	return moved, err
}

// DeadLetterUnknownTypes dead-letters queued jobs whose type is not in known
// and that have been due for longer than grace. It returns how many moved.
func (r *JobRepository) DeadLetterUnknownTypes(ctx context.Context, known []string, grace time.Duration) (int, error) {
	if len(known) == 0 {
		return 0, nil
	}
	now := r.now()
	queued := string(config.JobStatusQueued)

	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("status = ? AND available_at < ? AND type NOT IN ?", queued, now.Add(-grace), known).
		Order("available_at ASC").
		Limit(reclaimBatchSize).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list unknown-type jobs: %w", err)
	}

	moved := 0
	for _, id := range ids {
		found := false
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var job models.Job
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND status = ? AND type NOT IN ?", id, queued, known).
				Take(&job).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("lock unknown-type job: %w", err)
			}
			found = true
			return moveToDeadLetter(tx, &job, config.DeadLetterUnknownJobType,
				fmt.Sprintf("no worker handles job type %q", job.Type), now)
		})
		if err != nil {
			return moved, err
		}
		if found {
			moved++
		}
	}
	return moved, nil
}

// Get retrieves a single job by ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Take(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get job %s: %w", id, storage.ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs newest first, optionally filtered by status and type.
func (r *JobRepository) List(ctx context.Context, filter storage.JobFilter) ([]models.Job, error) {
	limit, offset := storage.PageBounds(filter.Limit, filter.Offset)

	q := r.db.WithContext(ctx).Model(&models.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}

	var jobs []models.Job
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// claimGuard matches a job only while the given claim still holds it.
const claimGuard = "id = ? AND status = ? AND claimed_by = ? AND attempts = ?"

func claimArgs(c storage.Claim) []any {
	return []any{c.JobID, string(config.JobStatusProcessing), c.WorkerID, c.Attempt}
}

func heldBy(job *models.Job, c storage.Claim) bool {
	return job.ClaimedBy != nil && *job.ClaimedBy == c.WorkerID && job.Attempts == c.Attempt
}

// lockClaimed locks the job row and checks that claim still owns it.
func lockClaimed(tx *gorm.DB, claim storage.Claim, op string) (*models.Job, error) {
	var job models.Job
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&job, "id = ?", claim.JobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock job %s: %w", claim.JobID, storage.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock job: %w", err)
	}
	if job.Status != string(config.JobStatusProcessing) || !heldBy(&job, claim) {
		return nil, fmt.Errorf("%s job %s in status %s: %w", op, claim.JobID, job.Status, storage.ErrJobNotClaimed)
	}
	return &job, nil
}

// moveToDeadLetter writes the dead-letter entry and removes the job in the
// caller's transaction.
func moveToDeadLetter(tx *gorm.DB, job *models.Job, reason config.DeadLetterReason, errMsg string, now time.Time) error {
	entry := models.DeadLetter{
		ID:            uuid.NewString(),
		OriginalJobID: job.ID,
		JobType:       job.Type,
		Payload:       job.Payload,
		Reason:        string(reason),
		LastError:     errMsg,
		TotalAttempts: job.Attempts,
		MaxAttempts:   job.MaxAttempts,
		FailedAt:      now,
		CreatedAt:     now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("create dead letter: %w", err)
	}
	if err := tx.Delete(&models.Job{}, "id = ?", job.ID).Error; err != nil {
		return fmt.Errorf("delete dead-lettered job: %w", err)
	}
	return nil
}
