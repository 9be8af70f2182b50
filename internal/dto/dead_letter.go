package dto

import (
	"encoding/json"
	"time"
)

type DeadLetterResponseDTO struct {
	ID            string          `json:"id"`
	OriginalJobID string          `json:"original_job_id"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	LastError     string          `json:"last_error"`
	TotalAttempts int             `json:"total_attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	FailedAt      time.Time       `json:"failed_at"`
	Requeued      bool            `json:"requeued"`
	RequeuedJobID string          `json:"requeued_job_id,omitempty"`
	RequeuedAt    *time.Time      `json:"requeued_at,omitempty"`
}

type DeadLetterListQuery struct {
	JobType  string `form:"job_type" validate:"omitempty,max=255"`
	Reason   string `form:"reason" validate:"omitempty,oneof=max_attempts_exceeded unknown_job_type stale_claim"`
	Requeued *bool  `form:"requeued"`
	Limit    int    `form:"limit" validate:"gte=0,lte=500"`
	Offset   int    `form:"offset" validate:"gte=0"`
}

// RequeueDTO controls a dead-letter requeue. ResetAttempts defaults to true.
type RequeueDTO struct {
	ResetAttempts *bool `json:"reset_attempts,omitempty"`
}

type RequeueResponseDTO struct {
	JobID string `json:"job_id"`
}
