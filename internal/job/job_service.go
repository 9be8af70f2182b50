package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"go.uber.org/zap"
)

type JobService struct {
	repo     JobRepoInterface
	dlq      DeadLetterRepoInterface
	payloads *PayloadRegistry
	log      *zap.Logger
}

func NewJobService(repo JobRepoInterface, dlq DeadLetterRepoInterface, payloads *PayloadRegistry, log *zap.Logger) *JobService {
	if payloads == nil {
		payloads = DefaultPayloadRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobService{repo: repo, dlq: dlq, payloads: payloads, log: log}
}

var _ JobServiceInterface = (*JobService)(nil)

// Enqueue is the entry point for internal producers such as the webhook
// gateway and dispatcher. The payload is marshalled and validated against
// the registry before it is stored.
func (s *JobService) Enqueue(ctx context.Context, jobType string, payload any, opts dto.EnqueueOptions) (string, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return "", common.Errf(http.StatusBadRequest, "payload is not serializable: %v", err)
		}
		raw = b
	}

	if err := s.payloads.Validate(jobType, raw); err != nil {
		return "", err
	}

	id, err := s.repo.Enqueue(ctx, storage.EnqueueRequest{
		Type:        jobType,
		Payload:     raw,
		AvailableAt: opts.AvailableAt,
		MaxAttempts: opts.MaxAttempts,
	})
	if err != nil {
		return "", mapStoreError(err, "failed to add job to database")
	}

	s.log.Debug("job enqueued", zap.String("job_id", id), zap.String("type", jobType))
	return id, nil
}

// CreateJob enqueues a job submitted through the admin API.
func (s *JobService) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobCreatedDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	if !json.Valid(req.Payload) {
		return nil, common.Coded(http.StatusBadRequest, "invalid_payload", "payload must be valid JSON")
	}

	var opts dto.EnqueueOptions
	opts.MaxAttempts = req.MaxAttempts
	if req.AvailableAt != nil {
		opts.AvailableAt = req.AvailableAt.UTC()
	}

	id, err := s.Enqueue(ctx, req.Type, req.Payload, opts)
	if err != nil {
		return nil, err
	}
	return &dto.JobCreatedDTO{ID: id}, nil
}

// GetJob retrieves a job by its ID.
func (s *JobService) GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to get job")
	}

	resp := toJobResponse(job)
	return &resp, nil
}

// ListJobs returns jobs matching the query, newest first.
func (s *JobService) ListJobs(ctx context.Context, query *dto.JobListQuery) ([]dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobs, err := s.repo.List(ctx, storage.JobFilter{
		Status: query.Status,
		Type:   query.Type,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to list jobs")
	}

	dtos := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		dtos[i] = toJobResponse(&jobs[i])
	}
	return dtos, nil
}

func (s *JobService) ListDeadLetters(ctx context.Context, query *dto.DeadLetterListQuery) ([]dto.DeadLetterResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	entries, err := s.dlq.List(ctx, storage.DeadLetterFilter{
		JobType:  query.JobType,
		Reason:   query.Reason,
		Requeued: query.Requeued,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to list dead letters")
	}

	dtos := make([]dto.DeadLetterResponseDTO, len(entries))
	for i := range entries {
		dtos[i] = toDeadLetterResponse(&entries[i])
	}
	return dtos, nil
}

func (s *JobService) GetDeadLetter(ctx context.Context, id string) (*dto.DeadLetterResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	entry, err := s.dlq.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to get dead letter")
	}

	resp := toDeadLetterResponse(entry)
	return &resp, nil
}

// RequeueDeadLetter turns a dead-letter entry back into a queued job.
func (s *JobService) RequeueDeadLetter(ctx context.Context, id string, resetAttempts bool) (*dto.RequeueResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	jobID, err := s.dlq.Requeue(ctx, id, resetAttempts)
	if err != nil {
		return nil, mapStoreError(err, "failed to requeue dead letter")
	}

	s.log.Info("dead letter requeued",
		zap.String("dead_letter_id", id),
		zap.String("job_id", jobID),
		zap.Bool("reset_attempts", resetAttempts),
	)
	return &dto.RequeueResponseDTO{JobID: jobID}, nil
}

func (s *JobService) DeleteDeadLetter(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	if err := s.dlq.Delete(ctx, id); err != nil {
		return mapStoreError(err, "failed to delete dead letter")
	}
	return nil
}

// mapStoreError converts store and context errors into API errors.
func mapStoreError(err error, fallback string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, storage.ErrJobNotFound):
		return common.Coded(http.StatusNotFound, "job_not_found", "job not found")
	case errors.Is(err, storage.ErrDeadLetterNotFound):
		return common.Coded(http.StatusNotFound, "dead_letter_not_found", "dead letter not found")
	case errors.Is(err, storage.ErrAlreadyRequeued):
		return common.Coded(http.StatusConflict, "already_requeued", "dead letter already requeued")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", fallback)
	}
}

func toJobResponse(job *models.Job) dto.JobResponseDTO {
	resp := dto.JobResponseDTO{
		ID:               job.ID,
		Type:             job.Type,
		Payload:          json.RawMessage(job.Payload),
		Status:           job.Status,
		Attempts:         job.Attempts,
		MaxAttempts:      job.MaxAttempts,
		PreviousAttempts: job.PreviousAttempts,
		AvailableAt:      job.AvailableAt,
		ClaimedAt:        job.ClaimedAt,
		CompletedAt:      job.CompletedAt,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
	}
	if job.ClaimedBy != nil {
		resp.ClaimedBy = *job.ClaimedBy
	}
	if job.LastError != nil {
		resp.LastError = *job.LastError
	}
	return resp
}

func toDeadLetterResponse(entry *models.DeadLetter) dto.DeadLetterResponseDTO {
	resp := dto.DeadLetterResponseDTO{
		ID:            entry.ID,
		OriginalJobID: entry.OriginalJobID,
		JobType:       entry.JobType,
		Payload:       json.RawMessage(entry.Payload),
		Reason:        entry.Reason,
		LastError:     entry.LastError,
		TotalAttempts: entry.TotalAttempts,
		MaxAttempts:   entry.MaxAttempts,
		FailedAt:      entry.FailedAt,
		Requeued:      entry.Requeued,
		RequeuedAt:    entry.RequeuedAt,
	}
	if entry.RequeuedJobID != nil {
		resp.RequeuedJobID = *entry.RequeuedJobID
	}
	return resp
}
