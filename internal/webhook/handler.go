package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/middleware"
)

type WebhookHandler struct {
	service      WebhookServiceInterface
	gateway      InboundGateway
	maxBodyBytes int64
}

func NewWebhookHandler(service WebhookServiceInterface, gateway InboundGateway, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{service: service, gateway: gateway, maxBodyBytes: maxBodyBytes}
}

var _ WebhookHandlerInterface = (*WebhookHandler)(nil)

// RegisterInbound mounts the public inbound endpoint with its own hard
// timeout.
func (h *WebhookHandler) RegisterInbound(r gin.IRoutes, path string, timeout time.Duration) {
	r.POST(path, middleware.TimeoutMiddleware(timeout), h.Inbound)
}

// RegisterRoutes mounts the webhook admin routes on rg behind the
// webhooks:manage permission.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup, authz middleware.Authorizer) {
	g := rg.Group("/webhooks", middleware.RequirePermission(authz, config.PermissionWebhooksManage))

	g.POST("/subscribers", h.CreateSubscriber)
	g.GET("/subscribers", h.ListSubscribers)
	g.GET("/subscribers/:id", h.GetSubscriber)
	g.DELETE("/subscribers/:id", h.DeactivateSubscriber)
	g.GET("/deliveries", h.ListDeliveries)
	g.POST("/dispatch", h.Dispatch)
	g.POST("/verify", h.VerifySignature)
}

// Inbound accepts an event from an external sender. The body is read raw so
// the signature is checked over the exact bytes received.
func (h *WebhookHandler) Inbound(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Error(common.Coded(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large"))
			return
		}
		c.Error(common.Coded(http.StatusBadRequest, CodeInvalidJSON, "could not read request body"))
		return
	}

	receipt, err := h.gateway.Receive(c.Request.Context(), InboundRequest{
		Body:        body,
		ContentType: c.GetHeader("Content-Type"),
		Signature:   c.GetHeader("X-Signature"),
		RemoteIP:    c.ClientIP(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.InboundReceiptDTO{
		Status:     "received",
		EventID:    receipt.EventID,
		Event:      receipt.Event,
		ReceivedAt: receipt.ReceivedAt,
		Duplicate:  receipt.Duplicate,
	})
}

func (h *WebhookHandler) CreateSubscriber(c *gin.Context) {
	var req dto.SubscriberCreateDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.CreateSubscriber(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *WebhookHandler) GetSubscriber(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	resp, err := h.service.GetSubscriber(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *WebhookHandler) ListSubscribers(c *gin.Context) {
	var query dto.SubscriberListQuery
	if !middleware.BindQuery(c, &query) {
		return
	}

	subs, err := h.service.ListSubscribers(c.Request.Context(), &query)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscribers": subs})
}

func (h *WebhookHandler) DeactivateSubscriber(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.service.DeactivateSubscriber(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	var query dto.DeliveryListQuery
	if !middleware.BindQuery(c, &query) {
		return
	}

	attempts, err := h.service.ListDeliveries(c.Request.Context(), &query)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": attempts})
}

// Dispatch triggers an outbound fan-out; useful for testing subscribers.
func (h *WebhookHandler) Dispatch(c *gin.Context) {
	var req dto.DispatchDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.Dispatch(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

func (h *WebhookHandler) VerifySignature(c *gin.Context) {
	var req dto.VerifySignatureDTO
	if !middleware.Bind(c, &req) {
		return
	}

	resp, err := h.service.VerifySignature(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func idParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		c.Error(common.Coded(http.StatusBadRequest, "invalid_id", "invalid ID"))
		return "", false
	}
	return id, true
}
