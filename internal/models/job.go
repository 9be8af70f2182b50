package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job is a unit of deferred work. A job in status "processing" always has
// ClaimedBy and ClaimedAt set; ClaimedAt drives stale-claim recovery.
type Job struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)"`
	Type        string         `gorm:"type:varchar(255);not null;index"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	Status      string         `gorm:"type:varchar(50);not null;default:'queued';index:idx_jobs_claim,priority:1"`
	Attempts    int            `gorm:"not null;default:0"`
	MaxAttempts int            `gorm:"not null;default:3"`
	AvailableAt time.Time      `gorm:"not null;index:idx_jobs_claim,priority:2"`
	ClaimedBy   *string        `gorm:"type:varchar(255)"`
	ClaimedAt   *time.Time
	LastError   *string        `gorm:"type:text"`
	CompletedAt *time.Time
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`

	// PreviousAttempts carries the exhausted attempt count of a dead-letter
	// entry requeued without resetting attempts.
	PreviousAttempts int `gorm:"not null;default:0"`
}

func (Job) TableName() string { return "jobs" }
