package webhook

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
)

type SubscriberRepoInterface interface {
	Create(ctx context.Context, sub *models.WebhookSubscriber) error
	Get(ctx context.Context, id string) (*models.WebhookSubscriber, error)
	List(ctx context.Context, activeOnly bool) ([]models.WebhookSubscriber, error)
	Deactivate(ctx context.Context, id string) error
}

type DeliveryLogInterface interface {
	List(ctx context.Context, filter storage.DeliveryFilter) ([]models.DeliveryAttempt, error)
}

// EventDispatcher is the outbound side used by the admin sandbox.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, data json.RawMessage) ([]string, error)
}

type InboundGateway interface {
	Receive(ctx context.Context, req InboundRequest) (*Receipt, error)
}

type WebhookServiceInterface interface {
	CreateSubscriber(ctx context.Context, req *dto.SubscriberCreateDTO) (*dto.SubscriberResponseDTO, error)
	GetSubscriber(ctx context.Context, id string) (*dto.SubscriberResponseDTO, error)
	ListSubscribers(ctx context.Context, query *dto.SubscriberListQuery) ([]dto.SubscriberResponseDTO, error)
	DeactivateSubscriber(ctx context.Context, id string) error
	ListDeliveries(ctx context.Context, query *dto.DeliveryListQuery) ([]dto.DeliveryAttemptDTO, error)
	Dispatch(ctx context.Context, req *dto.DispatchDTO) (*dto.DispatchResponseDTO, error)
	VerifySignature(ctx context.Context, req *dto.VerifySignatureDTO) (*dto.VerifySignatureResponseDTO, error)
}

type WebhookHandlerInterface interface {
	Inbound(c *gin.Context)
	CreateSubscriber(c *gin.Context)
	GetSubscriber(c *gin.Context)
	ListSubscribers(c *gin.Context)
	DeactivateSubscriber(c *gin.Context)
	ListDeliveries(c *gin.Context)
	Dispatch(c *gin.Context)
	VerifySignature(c *gin.Context)
}
