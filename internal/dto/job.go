package dto

import (
	"encoding/json"
	"time"
)

type JobCreateDTO struct {
	Type        string          `json:"type" validate:"required,max=255"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	MaxAttempts int             `json:"max_attempts" validate:"gte=0,lte=50"`
	AvailableAt *time.Time      `json:"available_at,omitempty"`
}

type JobCreatedDTO struct {
	ID string `json:"id"`
}

type JobResponseDTO struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	Payload          json.RawMessage `json:"payload"`
	Status           string          `json:"status"`
	Attempts         int             `json:"attempts"`
	MaxAttempts      int             `json:"max_attempts"`
	PreviousAttempts int             `json:"previous_attempts,omitempty"`
	AvailableAt      time.Time       `json:"available_at"`
	ClaimedBy        string          `json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time      `json:"claimed_at,omitempty"`
	LastError        string          `json:"last_error,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type JobListQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=queued processing completed failed"`
	Type   string `form:"type" validate:"omitempty,max=255"`
	Limit  int    `form:"limit" validate:"gte=0,lte=500"`
	Offset int    `form:"offset" validate:"gte=0"`
}

// EnqueueOptions tunes an internal enqueue. Zero values mean "now" and the
// configured default attempts.
type EnqueueOptions struct {
	MaxAttempts int
	AvailableAt time.Time
}
