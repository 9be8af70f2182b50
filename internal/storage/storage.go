// Package storage holds the types shared by the store implementations and
// their callers.
package storage

import (
	"errors"
	"time"

	"github.com/joshu-sajeev/hookqueue/internal/models"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrNoJobAvailable     = errors.New("no job available")
	ErrJobNotClaimed      = errors.New("job is not claimed")
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrAlreadyRequeued    = errors.New("dead letter already requeued")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// EnqueueRequest describes a new job. Zero AvailableAt means now and zero
// MaxAttempts means the store default.
type EnqueueRequest struct {
	Type        string
	Payload     []byte
	AvailableAt time.Time
	MaxAttempts int
}

// Claim names one claim on a job. Attempts grow on every claim, so once a job
// is reclaimed and claimed again an older Claim no longer matches it.
type Claim struct {
	JobID    string
	WorkerID string
	Attempt  int
}

// ClaimOf returns the claim a freshly claimed job carries.
func ClaimOf(job *models.Job) Claim {
	c := Claim{JobID: job.ID, Attempt: job.Attempts}
	if job.ClaimedBy != nil {
		c.WorkerID = *job.ClaimedBy
	}
	return c
}

// FailResult reports what Fail did with a job.
type FailResult struct {
	Attempts     int
	DeadLettered bool
	RetryAt      time.Time
}

type ReclaimResult struct {
	Requeued     int
	DeadLettered int
}

type JobFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

type DeadLetterFilter struct {
	JobType  string
	Reason   string
	Requeued *bool
	Limit    int
	Offset   int
}

type DeliveryFilter struct {
	JobID        string
	SubscriberID string
	Outcome      string
	Limit        int
	Offset       int
}

// PageBounds clamps a requested page to the allowed range.
func PageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
