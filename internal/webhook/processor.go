package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/worker"
	"go.uber.org/zap"
)

// EventHandler reacts to one accepted inbound event.
type EventHandler func(ctx context.Context, event dto.ProcessWebhookEventPayload) error

// Forwarder re-publishes an event to outbound subscribers.
type Forwarder interface {
	DispatchEvent(ctx context.Context, ev Event) ([]string, error)
}

// Processor is the process_webhook_event job handler. Events with hooks
// registered through On run those hooks; the rest are forwarded to
// subscribers when forwarding is on, or completed as no-ops.
type Processor struct {
	forwarder Forwarder
	forward   bool
	log       *zap.Logger

	mu    sync.RWMutex
	hooks map[string][]EventHandler
}

var _ worker.Handler = (*Processor)(nil)

func NewProcessor(forwarder Forwarder, forward bool, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		forwarder: forwarder,
		forward:   forward && forwarder != nil,
		log:       log,
		hooks:     map[string][]EventHandler{},
	}
}

// On registers fn for eventType; "*" matches every event. Hooks run in
// registration order, exact matches first.
func (p *Processor) On(eventType string, fn EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[eventType] = append(p.hooks[eventType], fn)
}

func (p *Processor) Handle(ctx context.Context, job *models.Job) error {
	var event dto.ProcessWebhookEventPayload
	if err := json.Unmarshal(job.Payload, &event); err != nil {
		return worker.Permanent(fmt.Errorf("decode inbound event: %w", err))
	}

	hooks := p.hooksFor(event.Event)
	if len(hooks) > 0 {
		for _, fn := range hooks {
			if err := fn(ctx, event); err != nil {
				return fmt.Errorf("handle %s: %w", event.Event, err)
			}
		}
		return nil
	}

	if !p.forward {
		p.log.Info("inbound event has no route",
			zap.String("event_id", event.EventID),
			zap.String("event", event.Event),
		)
		return nil
	}

	// The inbound event ID carries over so receivers can dedupe retries.
	jobIDs, err := p.forwarder.DispatchEvent(ctx, Event{
		ID:        event.EventID,
		Type:      event.Event,
		Timestamp: event.ReceivedAt,
		Data:      event.Data,
	})
	if err != nil {
		return fmt.Errorf("forward %s: %w", event.Event, err)
	}
	p.log.Info("inbound event forwarded",
		zap.String("event_id", event.EventID),
		zap.String("event", event.Event),
		zap.Int("deliveries", len(jobIDs)),
	)
	return nil
}

func (p *Processor) hooksFor(eventType string) []EventHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hooks := append([]EventHandler(nil), p.hooks[eventType]...)
	if eventType != config.WildcardEvent {
		hooks = append(hooks, p.hooks[config.WildcardEvent]...)
	}
	return hooks
}
