package models

import "time"

// DeliveryAttempt is one append-only row of the outbound delivery log.
type DeliveryAttempt struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	JobID         string    `gorm:"type:varchar(36);not null;index"`
	SubscriberID  string    `gorm:"type:varchar(36);not null;index"`
	EventID       string    `gorm:"type:varchar(255);not null"`
	EventType     string    `gorm:"type:varchar(255);not null"`
	AttemptNumber int       `gorm:"not null"`
	HTTPStatus    *int
	DurationMS    int64     `gorm:"not null"`
	Outcome       string    `gorm:"type:varchar(32);not null;index"`
	Error         *string   `gorm:"type:text"`
	ResponseBody  *string   `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (DeliveryAttempt) TableName() string { return "webhook_delivery_attempts" }
