package models

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type WebhookSubscriber struct {
	ID        string                      `gorm:"primaryKey;type:varchar(36)"`
	URL       string                      `gorm:"type:text;not null"`
	Secret    string                      `gorm:"type:text;not null"`
	Events    datatypes.JSONSlice[string] `gorm:"not null"`
	Active    bool                        `gorm:"not null;default:true;index"`
	CreatedAt time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt time.Time                   `gorm:"autoUpdateTime"`
}

func (WebhookSubscriber) TableName() string { return "webhook_subscribers" }

// Wants reports whether the subscriber's event filter matches eventType.
func (s *WebhookSubscriber) Wants(eventType string) bool {
	return slices.Contains(s.Events, "*") || slices.Contains(s.Events, eventType)
}
