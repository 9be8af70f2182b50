package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/telemetry"
	"github.com/joshu-sajeev/hookqueue/internal/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	UserAgent = "hookqueue-webhooks/1.0"

	// maxLoggedBody caps the response body kept in the delivery log.
	maxLoggedBody = 2 << 10
	// maxDrainedBody caps how much of a response is read before closing.
	maxDrainedBody = 64 << 10
)

// DeliveryRecorder appends to the delivery log.
type DeliveryRecorder interface {
	Record(ctx context.Context, attempt *models.DeliveryAttempt) error
}

// Deliverer is the deliver_webhook job handler. It POSTs the signed body to
// the subscriber and records the attempt.
type Deliverer struct {
	client   *http.Client
	recorder DeliveryRecorder
	timeout  time.Duration
	log      *zap.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

var _ worker.Handler = (*Deliverer)(nil)

func NewDeliverer(client *http.Client, recorder DeliveryRecorder, timeout time.Duration, log *zap.Logger, metrics *telemetry.Metrics) *Deliverer {
	if client == nil {
		client = &http.Client{
			// A redirect is reported as-is and retried like any non-2xx.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Deliverer{
		client:   client,
		recorder: recorder,
		timeout:  timeout,
		log:      log,
		metrics:  metrics,
		tracer:   telemetry.Tracer(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle performs one delivery attempt. 2xx completes the job; 4xx other
// than 429 is a permanent failure; anything else is retried.
func (d *Deliverer) Handle(ctx context.Context, job *models.Job) error {
	var p dto.DeliverWebhookPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return worker.Permanent(fmt.Errorf("decode delivery payload: %w", err))
	}

	ctx, span := d.tracer.Start(ctx, "webhook.deliver", trace.WithAttributes(
		attribute.String("webhook.subscriber_id", p.SubscriberID),
		attribute.String("webhook.event", p.Event),
		attribute.Int("webhook.attempt", job.Attempts),
	))
	defer span.End()

	start := time.Now()
	status, respBody, callErr := d.post(ctx, job, &p)
	took := time.Since(start)

	outcome := classifyDelivery(status, callErr)

	attempt := &models.DeliveryAttempt{
		ID:            uuid.NewString(),
		JobID:         job.ID,
		SubscriberID:  p.SubscriberID,
		EventID:       p.EventID,
		EventType:     p.Event,
		AttemptNumber: job.Attempts,
		DurationMS:    took.Milliseconds(),
		Outcome:       string(outcome),
		CreatedAt:     d.now(),
	}
	if status != 0 {
		attempt.HTTPStatus = &status
	}
	if respBody != "" {
		attempt.ResponseBody = &respBody
	}

	var result error
	switch {
	case callErr != nil:
		result = fmt.Errorf("deliver to %s: %w", p.URL, callErr)
	case outcome == config.DeliveryPermanentFailure:
		result = worker.Permanent(fmt.Errorf("subscriber responded HTTP %d", status))
	case outcome == config.DeliveryRetryableFailure:
		result = fmt.Errorf("subscriber responded HTTP %d", status)
	}
	if result != nil {
		msg := result.Error()
		attempt.Error = &msg
		span.SetStatus(codes.Error, msg)
	}
	span.SetAttributes(attribute.Int("http.status_code", status), attribute.String("webhook.outcome", string(outcome)))

	if err := d.recorder.Record(context.WithoutCancel(ctx), attempt); err != nil {
		d.log.Error("record delivery attempt", zap.String("job_id", job.ID), zap.Error(err))
	}
	d.metrics.Delivery(ctx, p.Event, string(outcome), job.Attempts, took)

	d.log.Info("webhook delivery attempt",
		zap.String("job_id", job.ID),
		zap.String("subscriber_id", p.SubscriberID),
		zap.String("event_id", p.EventID),
		zap.Int("attempt", job.Attempts),
		zap.Int("http_status", status),
		zap.String("outcome", string(outcome)),
		zap.Duration("took", took),
	)
	return result
}

func (d *Deliverer) post(ctx context.Context, job *models.Job, p *dto.DeliverWebhookPayload) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader([]byte(p.Body)))
	if err != nil {
		return 0, "", worker.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Signature", p.Signature)
	req.Header.Set("X-Webhook-Event", p.Event)
	req.Header.Set("X-Webhook-Id", p.EventID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(p.Timestamp, 10))
	req.Header.Set("X-Webhook-Attempt", strconv.Itoa(job.Attempts))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainedBody))
	return resp.StatusCode, string(body), nil
}

func classifyDelivery(status int, err error) config.DeliveryOutcome {
	switch {
	case err != nil:
		if worker.IsPermanent(err) {
			return config.DeliveryPermanentFailure
		}
		return config.DeliveryRetryableFailure
	case status >= 200 && status < 300:
		return config.DeliverySuccess
	case status == http.StatusTooManyRequests:
		return config.DeliveryRetryableFailure
	case status >= 400 && status < 500:
		return config.DeliveryPermanentFailure
	default:
		return config.DeliveryRetryableFailure
	}
}
