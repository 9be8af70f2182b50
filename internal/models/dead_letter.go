package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeadLetter is a job that exhausted its attempts (or could never run).
// Entries are never rewritten on requeue; only Requeued* fields change.
type DeadLetter struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)"`
	OriginalJobID string         `gorm:"type:varchar(36);not null;index"`
	JobType       string         `gorm:"type:varchar(255);not null;index"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	Reason        string         `gorm:"type:varchar(64);not null"`
	LastError     string         `gorm:"type:text"`
	TotalAttempts int            `gorm:"not null"`
	MaxAttempts   int            `gorm:"not null"`
	FailedAt      time.Time      `gorm:"not null;index"`
	Requeued      bool           `gorm:"not null;default:false"`
	RequeuedJobID *string        `gorm:"type:varchar(36)"`
	RequeuedAt    *time.Time
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
