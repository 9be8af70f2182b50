package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"gorm.io/gorm"
)

type SubscriberRepository struct {
	db *gorm.DB
}

func NewSubscriberRepository(db *gorm.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) Create(ctx context.Context, sub *models.WebhookSubscriber) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *SubscriberRepository) Get(ctx context.Context, id string) (*models.WebhookSubscriber, error) {
	var sub models.WebhookSubscriber
	if err := r.db.WithContext(ctx).Take(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get subscriber %s: %w", id, storage.ErrSubscriberNotFound)
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return &sub, nil
}

func (r *SubscriberRepository) List(ctx context.Context, activeOnly bool) ([]models.WebhookSubscriber, error) {
	q := r.db.WithContext(ctx).Model(&models.WebhookSubscriber{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	var subs []models.WebhookSubscriber
	if err := q.Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

// ListActiveFor returns the active subscribers whose event filter matches
// eventType. Filtering happens in Go so it does not depend on JSON operators.
func (r *SubscriberRepository) ListActiveFor(ctx context.Context, eventType string) ([]models.WebhookSubscriber, error) {
	subs, err := r.List(ctx, true)
	if err != nil {
		return nil, err
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.Wants(eventType) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

func (r *SubscriberRepository) Deactivate(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.WebhookSubscriber{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("deactivate subscriber: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("deactivate subscriber %s: %w", id, storage.ErrSubscriberNotFound)
	}
	return nil
}
