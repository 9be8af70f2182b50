package dto

import (
	"encoding/json"
	"time"
)

// ProcessWebhookEventPayload is the payload of a process_webhook_event job.
type ProcessWebhookEventPayload struct {
	EventID    string          `json:"event_id" validate:"required,max=255"`
	Event      string          `json:"event" validate:"required,max=255"`
	Timestamp  int64           `json:"timestamp" validate:"gt=0"`
	Data       json.RawMessage `json:"data" validate:"required"`
	ReceivedAt time.Time       `json:"received_at" validate:"required"`
}

// DeliverWebhookPayload is the payload of a deliver_webhook job. Body holds the
// exact signed bytes as a string so storage cannot reformat them.
type DeliverWebhookPayload struct {
	SubscriberID string `json:"subscriber_id" validate:"required"`
	URL          string `json:"url" validate:"required,url"`
	EventID      string `json:"event_id" validate:"required"`
	Event        string `json:"event" validate:"required"`
	Timestamp    int64  `json:"timestamp" validate:"gt=0"`
	Body         string `json:"body" validate:"required"`
	Signature    string `json:"signature" validate:"required,startswith=sha256="`
}

type SubscriberCreateDTO struct {
	URL    string   `json:"url" validate:"required,url,max=2048"`
	Secret string   `json:"secret" validate:"required,min=16,max=512"`
	Events []string `json:"events" validate:"required,min=1,dive,required,max=255"`
}

// SubscriberResponseDTO never carries the secret.
type SubscriberResponseDTO struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeliveryAttemptDTO struct {
	ID            string    `json:"id"`
	JobID         string    `json:"job_id"`
	SubscriberID  string    `json:"subscriber_id"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	AttemptNumber int       `json:"attempt_number"`
	HTTPStatus    *int      `json:"http_status"`
	DurationMS    int64     `json:"duration_ms"`
	Outcome       string    `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	ResponseBody  string    `json:"response_body,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type DeliveryListQuery struct {
	JobID        string `form:"job_id"`
	SubscriberID string `form:"subscriber_id"`
	Outcome      string `form:"outcome" validate:"omitempty,oneof=success retryable_failure permanent_failure"`
	Limit        int    `form:"limit" validate:"gte=0,lte=500"`
	Offset       int    `form:"offset" validate:"gte=0"`
}

type DispatchDTO struct {
	Event string          `json:"event" validate:"required,max=255"`
	Data  json.RawMessage `json:"data" validate:"required"`
}

type DispatchResponseDTO struct {
	JobIDs []string `json:"job_ids"`
}

type VerifySignatureDTO struct {
	Body      string `json:"body" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

type SubscriberListQuery struct {
	ActiveOnly bool `form:"active_only"`
}

type VerifySignatureResponseDTO struct {
	Valid bool `json:"valid"`
}

type InboundReceiptDTO struct {
	Status     string    `json:"status"`
	EventID    string    `json:"event_id"`
	Event      string    `json:"event"`
	ReceivedAt time.Time `json:"received_at"`
	Duplicate  bool      `json:"duplicate,omitempty"`
}
