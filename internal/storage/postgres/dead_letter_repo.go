package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeadLetterRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// List returns dead-letter entries, most recent failure first.
func (r *DeadLetterRepository) List(ctx context.Context, filter storage.DeadLetterFilter) ([]models.DeadLetter, error) {
	limit, offset := storage.PageBounds(filter.Limit, filter.Offset)

	q := r.db.WithContext(ctx).Model(&models.DeadLetter{})
	if filter.JobType != "" {
		q = q.Where("job_type = ?", filter.JobType)
	}
	if filter.Reason != "" {
		q = q.Where("reason = ?", filter.Reason)
	}
	if filter.Requeued != nil {
		q = q.Where("requeued = ?", *filter.Requeued)
	}

	var entries []models.DeadLetter
	if err := q.Order("failed_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return entries, nil
}

func (r *DeadLetterRepository) Get(ctx context.Context, id string) (*models.DeadLetter, error) {
	var entry models.DeadLetter
	if err := r.db.WithContext(ctx).Take(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get dead letter %s: %w", id, storage.ErrDeadLetterNotFound)
		}
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return &entry, nil
}

// Requeue turns an entry back into a fresh queued job and flags the entry as
// requeued. The entry itself is otherwise left untouched. With resetAttempts
// false the new job carries the exhausted count in PreviousAttempts.
func (r *DeadLetterRepository) Requeue(ctx context.Context, id string, resetAttempts bool) (string, error) {
	now := r.now()
	var jobID string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.DeadLetter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&entry, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("requeue dead letter %s: %w", id, storage.ErrDeadLetterNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock dead letter: %w", err)
		}
		if entry.Requeued {
			return fmt.Errorf("requeue dead letter %s: %w", id, storage.ErrAlreadyRequeued)
		}

		job := models.Job{
			ID:          uuid.NewString(),
			Type:        entry.JobType,
			Payload:     entry.Payload,
			Status:      string(config.JobStatusQueued),
			MaxAttempts: entry.MaxAttempts,
			AvailableAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if !resetAttempts {
			job.PreviousAttempts = entry.TotalAttempts
		}
		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("create requeued job: %w", err)
		}

		res := tx.Model(&models.DeadLetter{}).
			Where("id = ? AND requeued = ?", id, false).
			Updates(map[string]any{
				"requeued":        true,
				"requeued_job_id": job.ID,
				"requeued_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("mark dead letter requeued: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("requeue dead letter %s: %w", id, storage.ErrAlreadyRequeued)
		}

		jobID = job.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (r *DeadLetterRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.DeadLetter{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete dead letter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete dead letter %s: %w", id, storage.ErrDeadLetterNotFound)
	}
	return nil
}
