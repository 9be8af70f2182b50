package models

import "time"

// InboundEvent is the dedupe index for accepted inbound webhooks.
type InboundEvent struct {
	EventID    string    `gorm:"primaryKey;type:varchar(255)"`
	EventType  string    `gorm:"type:varchar(255);not null"`
	ReceivedAt time.Time `gorm:"not null;index"`
}

func (InboundEvent) TableName() string { return "webhook_inbound_events" }
