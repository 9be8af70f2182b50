package mocks

import (
	"context"

	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"github.com/stretchr/testify/mock"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Enqueue(ctx context.Context, req storage.EnqueueRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *JobRepoMock) Get(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, filter storage.JobFilter) ([]models.Job, error) {
	args := m.Called(ctx, filter)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

type DeadLetterRepoMock struct {
	mock.Mock
}

func (m *DeadLetterRepoMock) List(ctx context.Context, filter storage.DeadLetterFilter) ([]models.DeadLetter, error) {
	args := m.Called(ctx, filter)

	entries, _ := args.Get(0).([]models.DeadLetter)
	return entries, args.Error(1)
}

func (m *DeadLetterRepoMock) Get(ctx context.Context, id string) (*models.DeadLetter, error) {
	args := m.Called(ctx, id)

	entry, _ := args.Get(0).(*models.DeadLetter)
	return entry, args.Error(1)
}

func (m *DeadLetterRepoMock) Requeue(ctx context.Context, id string, resetAttempts bool) (string, error) {
	args := m.Called(ctx, id, resetAttempts)
	return args.String(0), args.Error(1)
}

func (m *DeadLetterRepoMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
