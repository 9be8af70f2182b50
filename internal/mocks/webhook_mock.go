package mocks

import (
	"context"

	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"github.com/stretchr/testify/mock"
)

type SubscriberRepoMock struct {
	mock.Mock
}

func (m *SubscriberRepoMock) Create(ctx context.Context, sub *models.WebhookSubscriber) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *SubscriberRepoMock) Get(ctx context.Context, id string) (*models.WebhookSubscriber, error) {
	args := m.Called(ctx, id)

	sub, _ := args.Get(0).(*models.WebhookSubscriber)
	return sub, args.Error(1)
}

func (m *SubscriberRepoMock) List(ctx context.Context, activeOnly bool) ([]models.WebhookSubscriber, error) {
	args := m.Called(ctx, activeOnly)

	subs, _ := args.Get(0).([]models.WebhookSubscriber)
	return subs, args.Error(1)
}

func (m *SubscriberRepoMock) ListActiveFor(ctx context.Context, eventType string) ([]models.WebhookSubscriber, error) {
	args := m.Called(ctx, eventType)

	subs, _ := args.Get(0).([]models.WebhookSubscriber)
	return subs, args.Error(1)
}

func (m *SubscriberRepoMock) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type DeliveryLogMock struct {
	mock.Mock
}

func (m *DeliveryLogMock) Record(ctx context.Context, attempt *models.DeliveryAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *DeliveryLogMock) List(ctx context.Context, filter storage.DeliveryFilter) ([]models.DeliveryAttempt, error) {
	args := m.Called(ctx, filter)

	attempts, _ := args.Get(0).([]models.DeliveryAttempt)
	return attempts, args.Error(1)
}

type WebhookServiceMock struct {
	mock.Mock
}

func (m *WebhookServiceMock) CreateSubscriber(ctx context.Context, req *dto.SubscriberCreateDTO) (*dto.SubscriberResponseDTO, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.SubscriberResponseDTO)
	return resp, args.Error(1)
}

func (m *WebhookServiceMock) GetSubscriber(ctx context.Context, id string) (*dto.SubscriberResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.SubscriberResponseDTO)
	return resp, args.Error(1)
}

func (m *WebhookServiceMock) ListSubscribers(ctx context.Context, query *dto.SubscriberListQuery) ([]dto.SubscriberResponseDTO, error) {
	args := m.Called(ctx, query)

	subs, _ := args.Get(0).([]dto.SubscriberResponseDTO)
	return subs, args.Error(1)
}

func (m *WebhookServiceMock) DeactivateSubscriber(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *WebhookServiceMock) ListDeliveries(ctx context.Context, query *dto.DeliveryListQuery) ([]dto.DeliveryAttemptDTO, error) {
	args := m.Called(ctx, query)

	attempts, _ := args.Get(0).([]dto.DeliveryAttemptDTO)
	return attempts, args.Error(1)
}

func (m *WebhookServiceMock) Dispatch(ctx context.Context, req *dto.DispatchDTO) (*dto.DispatchResponseDTO, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.DispatchResponseDTO)
	return resp, args.Error(1)
}

func (m *WebhookServiceMock) VerifySignature(ctx context.Context, req *dto.VerifySignatureDTO) (*dto.VerifySignatureResponseDTO, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.VerifySignatureResponseDTO)
	return resp, args.Error(1)
}
