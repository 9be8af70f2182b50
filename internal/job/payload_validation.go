package job

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/middleware"
)

var validate = validator.New()

func validatePayload[T any](raw json.RawMessage) error {
	var payload T

	if err := json.Unmarshal(raw, &payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_payload",
			Message: "invalid payload format",
		}
	}

	if err := validate.Struct(payload); err != nil {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_payload",
			Message: "payload validation failed",
			Fields:  middleware.FormatValidationErrors(err),
		}
	}

	return nil
}

// PayloadRegistry is the closed set of job types that may be enqueued, each
// with the schema its payload must satisfy.
type PayloadRegistry struct {
	validators map[string]func(json.RawMessage) error
}

func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{validators: map[string]func(json.RawMessage) error{}}
}

// Register adds jobType with payload schema T.
func Register[T any](r *PayloadRegistry, jobType string) {
	r.validators[jobType] = validatePayload[T]
}

// DefaultPayloadRegistry knows the built-in webhook job types.
func DefaultPayloadRegistry() *PayloadRegistry {
	r := NewPayloadRegistry()
	Register[dto.ProcessWebhookEventPayload](r, config.JobTypeProcessWebhookEvent)
	Register[dto.DeliverWebhookPayload](r, config.JobTypeDeliverWebhook)
	return r
}

func (r *PayloadRegistry) Types() []string {
	types := make([]string, 0, len(r.validators))
	for t := range r.validators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *PayloadRegistry) Known(jobType string) bool {
	_, ok := r.validators[jobType]
	return ok
}

// Validate checks raw against the schema registered for jobType.
func (r *PayloadRegistry) Validate(jobType string, raw json.RawMessage) error {
	fn, ok := r.validators[jobType]
	if !ok {
		return common.APIError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_job_type",
			Message: "invalid job type",
			Fields: map[string]any{
				"provided": jobType,
				"allowed":  r.Types(),
			},
		}
	}
	return fn(raw)
}
