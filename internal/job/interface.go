package job

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
)

// JobRepoInterface defines the job store operations the service needs.
type JobRepoInterface interface {
	Enqueue(ctx context.Context, req storage.EnqueueRequest) (string, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, filter storage.JobFilter) ([]models.Job, error)
}

// DeadLetterRepoInterface defines the dead-letter store operations.
type DeadLetterRepoInterface interface {
	List(ctx context.Context, filter storage.DeadLetterFilter) ([]models.DeadLetter, error)
	Get(ctx context.Context, id string) (*models.DeadLetter, error)
	Requeue(ctx context.Context, id string, resetAttempts bool) (string, error)
	Delete(ctx context.Context, id string) error
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts dto.EnqueueOptions) (string, error)
	CreateJob(ctx context.Context, dto *dto.JobCreateDTO) (*dto.JobCreatedDTO, error)
	GetJob(ctx context.Context, id string) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, query *dto.JobListQuery) ([]dto.JobResponseDTO, error)
	ListDeadLetters(ctx context.Context, query *dto.DeadLetterListQuery) ([]dto.DeadLetterResponseDTO, error)
	GetDeadLetter(ctx context.Context, id string) (*dto.DeadLetterResponseDTO, error)
	RequeueDeadLetter(ctx context.Context, id string, resetAttempts bool) (*dto.RequeueResponseDTO, error)
	DeleteDeadLetter(ctx context.Context, id string) error
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	ListDeadLetters(c *gin.Context)
	GetDeadLetter(c *gin.Context)
	RequeueDeadLetter(c *gin.Context)
	DeleteDeadLetter(c *gin.Context)
}
