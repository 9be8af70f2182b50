package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"gorm.io/gorm"
)

// DeliveryLogRepository is append-only: attempts are recorded and listed,
// never updated.
type DeliveryLogRepository struct {
	db *gorm.DB
}

func NewDeliveryLogRepository(db *gorm.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

func (r *DeliveryLogRepository) Record(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}
	return nil
}

func (r *DeliveryLogRepository) List(ctx context.Context, filter storage.DeliveryFilter) ([]models.DeliveryAttempt, error) {
	limit, offset := storage.PageBounds(filter.Limit, filter.Offset)

	q := r.db.WithContext(ctx).Model(&models.DeliveryAttempt{})
	if filter.JobID != "" {
		q = q.Where("job_id = ?", filter.JobID)
	}
	if filter.SubscriberID != "" {
		q = q.Where("subscriber_id = ?", filter.SubscriberID)
	}
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}

	var attempts []models.DeliveryAttempt
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	return attempts, nil
}
