package mocks

import (
	"context"

	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) Enqueue(ctx context.Context, jobType string, payload any, opts dto.EnqueueOptions) (string, error) {
	args := m.Called(ctx, jobType, payload, opts)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobCreatedDTO, error) {
	args := m.Called(ctx, req)

	created, _ := args.Get(0).(*dto.JobCreatedDTO)
	return created, args.Error(1)
}

func (m *JobServiceMock) GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*dto.JobResponseDTO)
	return job, args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, query *dto.JobListQuery) ([]dto.JobResponseDTO, error) {
	args := m.Called(ctx, query)

	jobs, _ := args.Get(0).([]dto.JobResponseDTO)
	return jobs, args.Error(1)
}

func (m *JobServiceMock) ListDeadLetters(ctx context.Context, query *dto.DeadLetterListQuery) ([]dto.DeadLetterResponseDTO, error) {
	args := m.Called(ctx, query)

	entries, _ := args.Get(0).([]dto.DeadLetterResponseDTO)
	return entries, args.Error(1)
}

func (m *JobServiceMock) GetDeadLetter(ctx context.Context, id string) (*dto.DeadLetterResponseDTO, error) {
	args := m.Called(ctx, id)

	entry, _ := args.Get(0).(*dto.DeadLetterResponseDTO)
	return entry, args.Error(1)
}

func (m *JobServiceMock) RequeueDeadLetter(ctx context.Context, id string, resetAttempts bool) (*dto.RequeueResponseDTO, error) {
	args := m.Called(ctx, id, resetAttempts)

	resp, _ := args.Get(0).(*dto.RequeueResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) DeleteDeadLetter(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
