package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// WebhookService backs the webhook admin API: subscribers, the delivery log
// and the dispatch/verify sandbox.
type WebhookService struct {
	subs       SubscriberRepoInterface
	deliveries DeliveryLogInterface
	dispatcher EventDispatcher
	secret     string
	log        *zap.Logger
}

func NewWebhookService(subs SubscriberRepoInterface, deliveries DeliveryLogInterface, dispatcher EventDispatcher, inboundSecret string, log *zap.Logger) *WebhookService {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookService{
		subs:       subs,
		deliveries: deliveries,
		dispatcher: dispatcher,
		secret:     inboundSecret,
		log:        log,
	}
}

var _ WebhookServiceInterface = (*WebhookService)(nil)

func (s *WebhookService) CreateSubscriber(ctx context.Context, req *dto.SubscriberCreateDTO) (*dto.SubscriberResponseDTO, error) {
	sub := &models.WebhookSubscriber{
		URL:    req.URL,
		Secret: req.Secret,
		Events: datatypes.JSONSlice[string](req.Events),
		Active: true,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, mapStoreError(err, "failed to create subscriber")
	}

	s.log.Info("subscriber created", zap.String("subscriber_id", sub.ID), zap.Strings("events", req.Events))
	resp := toSubscriberResponse(sub)
	return &resp, nil
}

func (s *WebhookService) GetSubscriber(ctx context.Context, id string) (*dto.SubscriberResponseDTO, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "failed to get subscriber")
	}
	resp := toSubscriberResponse(sub)
	return &resp, nil
}

func (s *WebhookService) ListSubscribers(ctx context.Context, query *dto.SubscriberListQuery) ([]dto.SubscriberResponseDTO, error) {
	subs, err := s.subs.List(ctx, query.ActiveOnly)
	if err != nil {
		return nil, mapStoreError(err, "failed to list subscribers")
	}

	out := make([]dto.SubscriberResponseDTO, len(subs))
	for i := range subs {
		out[i] = toSubscriberResponse(&subs[i])
	}
	return out, nil
}

func (s *WebhookService) DeactivateSubscriber(ctx context.Context, id string) error {
	if err := s.subs.Deactivate(ctx, id); err != nil {
		return mapStoreError(err, "failed to deactivate subscriber")
	}
	s.log.Info("subscriber deactivated", zap.String("subscriber_id", id))
	return nil
}

func (s *WebhookService) ListDeliveries(ctx context.Context, query *dto.DeliveryListQuery) ([]dto.DeliveryAttemptDTO, error) {
	attempts, err := s.deliveries.List(ctx, storage.DeliveryFilter{
		JobID:        query.JobID,
		SubscriberID: query.SubscriberID,
		Outcome:      query.Outcome,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		return nil, mapStoreError(err, "failed to list deliveries")
	}

	out := make([]dto.DeliveryAttemptDTO, len(attempts))
	for i := range attempts {
		out[i] = toDeliveryAttemptDTO(&attempts[i])
	}
	return out, nil
}

// Dispatch fans an event out through the outbound dispatcher. Partial
// failures are logged; the enqueued job IDs are still returned.
func (s *WebhookService) Dispatch(ctx context.Context, req *dto.DispatchDTO) (*dto.DispatchResponseDTO, error) {
	jobIDs, err := s.dispatcher.Dispatch(ctx, req.Event, req.Data)
	if err != nil && len(jobIDs) == 0 {
		return nil, mapStoreError(err, "failed to dispatch event")
	}
	if err != nil {
		s.log.Warn("partial dispatch", zap.String("event", req.Event), zap.Error(err))
	}
	return &dto.DispatchResponseDTO{JobIDs: jobIDs}, nil
}

// VerifySignature checks a signature against the inbound shared secret.
func (s *WebhookService) VerifySignature(_ context.Context, req *dto.VerifySignatureDTO) (*dto.VerifySignatureResponseDTO, error) {
	if s.secret == "" {
		return nil, common.Coded(http.StatusConflict, "secret_not_configured", "no inbound webhook secret is configured")
	}
	return &dto.VerifySignatureResponseDTO{Valid: Verify(s.secret, []byte(req.Body), req.Signature)}, nil
}

func mapStoreError(err error, fallback string) error {
	var apiErr common.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, storage.ErrSubscriberNotFound):
		return common.Coded(http.StatusNotFound, "subscriber_not_found", "subscriber not found")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", fallback)
	}
}

func toSubscriberResponse(sub *models.WebhookSubscriber) dto.SubscriberResponseDTO {
	return dto.SubscriberResponseDTO{
		ID:        sub.ID,
		URL:       sub.URL,
		Events:    []string(sub.Events),
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

func toDeliveryAttemptDTO(a *models.DeliveryAttempt) dto.DeliveryAttemptDTO {
	out := dto.DeliveryAttemptDTO{
		ID:            a.ID,
		JobID:         a.JobID,
		SubscriberID:  a.SubscriberID,
		EventID:       a.EventID,
		EventType:     a.EventType,
		AttemptNumber: a.AttemptNumber,
		HTTPStatus:    a.HTTPStatus,
		DurationMS:    a.DurationMS,
		Outcome:       a.Outcome,
		Timestamp:     a.CreatedAt,
	}
	if a.Error != nil {
		out.Error = *a.Error
	}
	if a.ResponseBody != nil {
		out.ResponseBody = *a.ResponseBody
	}
	return out
}
