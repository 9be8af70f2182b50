package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"go.uber.org/zap"
)

// SubscriberSource lists the active subscribers of an event type.
type SubscriberSource interface {
	ListActiveFor(ctx context.Context, eventType string) ([]models.WebhookSubscriber, error)
}

// TransformFunc rewrites event data before it is signed.
type TransformFunc func(eventType string, data json.RawMessage) (json.RawMessage, error)

// Event is one outbound notification.
type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	Data      json.RawMessage
}

// Envelope is the exact JSON body delivered to subscribers.
type Envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type transform struct {
	eventType string
	fn        TransformFunc
}

// Dispatcher fans an event out to matching subscribers, one signed
// deliver_webhook job each.
type Dispatcher struct {
	subs        SubscriberSource
	jobs        Enqueuer
	maxAttempts int
	log         *zap.Logger
	now         func() time.Time

	mu         sync.RWMutex
	transforms []transform
}

func NewDispatcher(subs SubscriberSource, jobs Enqueuer, maxAttempts int, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		subs:        subs,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterTransform adds fn for eventType, or for every event when eventType
// is "*". Transforms run in registration order.
func (d *Dispatcher) RegisterTransform(eventType string, fn TransformFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transforms = append(d.transforms, transform{eventType: eventType, fn: fn})
}

// Dispatch stamps a new event ID and fans the event out.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data json.RawMessage) ([]string, error) {
	return d.DispatchEvent(ctx, Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: d.now(),
		Data:      data,
	})
}

// DispatchEvent enqueues one delivery job per matching subscriber and returns
// the job IDs that were enqueued. A failure for one subscriber does not stop
// the others; all such failures are joined into the returned error.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev Event) ([]string, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}

	data, err := d.applyTransforms(ev.Type, ev.Data)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(Envelope{
		ID:        ev.ID,
		Event:     ev.Type,
		Timestamp: ev.Timestamp.Unix(),
		Data:      data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	subs, err := d.subs.ListActiveFor(ctx, ev.Type)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	jobIDs := make([]string, 0, len(subs))
	var errs []error
	for _, sub := range subs {
		jobID, err := d.jobs.Enqueue(ctx, config.JobTypeDeliverWebhook, dto.DeliverWebhookPayload{
			SubscriberID: sub.ID,
			URL:          sub.URL,
			EventID:      ev.ID,
			Event:        ev.Type,
			Timestamp:    ev.Timestamp.Unix(),
			Body:         string(body),
			Signature:    Sign(sub.Secret, body),
		}, dto.EnqueueOptions{MaxAttempts: d.maxAttempts})
		if err != nil {
			errs = append(errs, fmt.Errorf("subscriber %s: %w", sub.ID, err))
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}

	d.log.Info("event dispatched",
		zap.String("event_id", ev.ID),
		zap.String("event", ev.Type),
		zap.Int("subscribers", len(subs)),
		zap.Int("enqueued", len(jobIDs)),
	)
	return jobIDs, errors.Join(errs...)
}

func (d *Dispatcher) applyTransforms(eventType string, data json.RawMessage) (json.RawMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, t := range d.transforms {
		if t.eventType != config.WildcardEvent && t.eventType != eventType {
			continue
		}
		out, err := t.fn(eventType, data)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", t.eventType, err)
		}
		if !json.Valid(out) {
			return nil, fmt.Errorf("transform %s produced invalid JSON", t.eventType)
		}
		data = out
	}
	return data, nil
}
