package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/joshu-sajeev/hookqueue/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InboundEventLedger is the SQL dedupe index for inbound webhooks. An event
// ID stays reserved for the retention window.
type InboundEventLedger struct {
	db        *gorm.DB
	retention time.Duration
	now       func() time.Time
}

func NewInboundEventLedger(db *gorm.DB, retention time.Duration) *InboundEventLedger {
	return &InboundEventLedger{
		db:        db,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Admit reserves eventID and runs enqueue in the same transaction, so the
// reservation commits only together with the job. Repository writes made with
// the context passed to enqueue join that transaction.
func (l *InboundEventLedger) Admit(ctx context.Context, eventID, eventType string, enqueue func(context.Context) (string, error)) (string, bool, error) {
	var jobID string
	admitted := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := l.reserve(tx, eventID, eventType)
		if err != nil || !ok {
			return err
		}
		jobID, err = enqueue(withTx(ctx, tx))
		if err != nil {
			return err
		}
		admitted = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return jobID, admitted, nil
}

// reserve records eventID and reports whether this call was the first to do
// so within the retention window. An expired row is taken over in place.
func (l *InboundEventLedger) reserve(tx *gorm.DB, eventID, eventType string) (bool, error) {
	now := l.now()
	event := models.InboundEvent{EventID: eventID, EventType: eventType, ReceivedAt: now}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return false, fmt.Errorf("reserve inbound event: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = tx.Model(&models.InboundEvent{}).
		Where("event_id = ? AND received_at < ?", eventID, now.Add(-l.retention)).
		Updates(map[string]any{"event_type": eventType, "received_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("renew inbound event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Prune deletes entries older than the retention window.
func (l *InboundEventLedger) Prune(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("received_at < ?", l.now().Add(-l.retention)).
		Delete(&models.InboundEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune inbound events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
