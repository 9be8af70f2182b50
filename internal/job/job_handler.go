package job

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// RegisterRoutes mounts the queue and dead-letter admin routes on rg, each
// behind its permission check.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup, authz middleware.Authorizer) {
	read := middleware.RequirePermission(authz, config.PermissionQueueRead)
	write := middleware.RequirePermission(authz, config.PermissionQueueWrite)
	dlq := middleware.RequirePermission(authz, config.PermissionDeadLetters)

	rg.POST("/jobs", write, h.Create)
	rg.GET("/jobs", read, h.List)
	rg.GET("/jobs/:id", read, h.Get)

	rg.GET("/dead-letters", dlq, h.ListDeadLetters)
	rg.GET("/dead-letters/:id", dlq, h.GetDeadLetter)
	rg.POST("/dead-letters/:id/requeue", dlq, h.RequeueDeadLetter)
	rg.DELETE("/dead-letters/:id", dlq, h.DeleteDeadLetter)
}

// Create handles HTTP requests for creating a new job.
// It validates and binds the request body, delegates business logic
// to the JobService, and returns HTTP 201 with the new job ID.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	created, err := h.service.CreateJob(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles HTTP requests to list jobs, filtered by status and type.
func (h *JobHandler) List(c *gin.Context) {
	var query dto.JobListQuery
	if !middleware.BindQuery(c, &query) {
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), &query)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) ListDeadLetters(c *gin.Context) {
	var query dto.DeadLetterListQuery
	if !middleware.BindQuery(c, &query) {
		return
	}

	entries, err := h.service.ListDeadLetters(c.Request.Context(), &query)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dead_letters": entries})
}

func (h *JobHandler) GetDeadLetter(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	entry, err := h.service.GetDeadLetter(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// RequeueDeadLetter creates a fresh job from the entry. An empty body means
// reset_attempts=true.
func (h *JobHandler) RequeueDeadLetter(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req dto.RequeueDTO
	if c.Request.ContentLength != 0 {
		if !middleware.Bind(c, &req) {
			return
		}
	}
	resetAttempts := req.ResetAttempts == nil || *req.ResetAttempts

	resp, err := h.service.RequeueDeadLetter(c.Request.Context(), id, resetAttempts)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *JobHandler) DeleteDeadLetter(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteDeadLetter(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func idParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		c.Error(common.Coded(http.StatusBadRequest, "invalid_id", "invalid ID"))
		return "", false
	}
	return id, true
}
