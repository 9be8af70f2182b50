package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/config"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/mocks"
	"github.com/joshu-sajeev/hookqueue/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminToken = "test-admin-token"

func newTestRouter(t *testing.T, service WebhookServiceInterface, authz middleware.Authorizer) (*gin.Engine, *recordingEnqueuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw, _, jobs := newTestGateway(t, GatewayConfig{ValidateSignature: true, Secret: testSecret})

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h := NewWebhookHandler(service, gw, 512)
	h.RegisterInbound(r, "/webhooks/inbound", 5*time.Second)
	h.RegisterRoutes(r.Group("/admin"), authz)
	return r, jobs
}

func do(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Inbound(t *testing.T) {
	body := eventBody(gatewayNow.Unix())
	sig := Sign(testSecret, []byte(body))

	t.Run("accepted then duplicate", func(t *testing.T) {
		r, jobs := newTestRouter(t, new(mocks.WebhookServiceMock), middleware.NewTokenAuthorizer(adminToken))

		w := do(r, http.MethodPost, "/webhooks/inbound", body, map[string]string{"X-Signature": sig})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var receipt dto.InboundReceiptDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
		assert.Equal(t, "received", receipt.Status)
		assert.Equal(t, "evt_1", receipt.EventID)
		assert.Equal(t, "order.created", receipt.Event)
		assert.False(t, receipt.Duplicate)
		assert.NotContains(t, w.Body.String(), "job-1", "job IDs stay internal")

		w = do(r, http.MethodPost, "/webhooks/inbound", body, map[string]string{"X-Signature": sig})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"duplicate":true`)
		assert.Len(t, jobs.Calls(), 1)
	})

	t.Run("invalid signature", func(t *testing.T) {
		r, jobs := newTestRouter(t, new(mocks.WebhookServiceMock), middleware.NewTokenAuthorizer(adminToken))

		w := do(r, http.MethodPost, "/webhooks/inbound", body, map[string]string{"X-Signature": Sign("wrong-secret", []byte(body))})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"signature does not match","code":"invalid_signature"}`, w.Body.String())
		assert.Empty(t, jobs.Calls())
	})

	t.Run("wrong content type", func(t *testing.T) {
		r, _ := newTestRouter(t, new(mocks.WebhookServiceMock), middleware.NewTokenAuthorizer(adminToken))

		w := do(r, http.MethodPost, "/webhooks/inbound", body, map[string]string{"Content-Type": "text/plain", "X-Signature": sig})
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		assert.Contains(t, w.Body.String(), CodeUnsupportedMedia)
	})

	t.Run("body too large", func(t *testing.T) {
		r, jobs := newTestRouter(t, new(mocks.WebhookServiceMock), middleware.NewTokenAuthorizer(adminToken))

		big := `{"event":"a","timestamp":1,"data":"` + strings.Repeat("x", 1024) + `"}`
		w := do(r, http.MethodPost, "/webhooks/inbound", big, nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), CodePayloadTooLarge)
		assert.Empty(t, jobs.Calls())
	})
}

func TestWebhookHandler_Subscribers(t *testing.T) {
	created := &dto.SubscriberResponseDTO{ID: testSubscriberID, URL: "https://example.com/hook", Events: []string{"*"}, Active: true}

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		setupMock      func(*mocks.WebhookServiceMock)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:   "create",
			method: http.MethodPost,
			path:   "/admin/webhooks/subscribers",
			body:   `{"url":"https://example.com/hook","secret":"0123456789abcdef","events":["*"]}`,
			setupMock: func(m *mocks.WebhookServiceMock) {
				m.On("CreateSubscriber", mock.Anything, mock.MatchedBy(func(req *dto.SubscriberCreateDTO) bool {
					return req.URL == "https://example.com/hook" && len(req.Events) == 1
				})).Return(created, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "create with short secret",
			method:         http.MethodPost,
			path:           "/admin/webhooks/subscribers",
			body:           `{"url":"https://example.com/hook","secret":"short","events":["*"]}`,
			setupMock:      func(*mocks.WebhookServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_failed",
		},
		{
			name:           "create without events",
			method:         http.MethodPost,
			path:           "/admin/webhooks/subscribers",
			body:           `{"url":"https://example.com/hook","secret":"0123456789abcdef","events":[]}`,
			setupMock:      func(*mocks.WebhookServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_failed",
		},
		{
			name:   "get",
			method: http.MethodGet,
			path:   "/admin/webhooks/subscribers/" + testSubscriberID,
			setupMock: func(m *mocks.WebhookServiceMock) {
				m.On("GetSubscriber", mock.Anything, testSubscriberID).Return(created, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "get with invalid id",
			method:         http.MethodGet,
			path:           "/admin/webhooks/subscribers/not-a-uuid",
			setupMock:      func(*mocks.WebhookServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_id",
		},
		{
			name:   "get missing",
			method: http.MethodGet,
			path:   "/admin/webhooks/subscribers/" + testSubscriberID,
			setupMock: func(m *mocks.WebhookServiceMock) {
				m.On("GetSubscriber", mock.Anything, testSubscriberID).
					Return(nil, common.Coded(http.StatusNotFound, "subscriber_not_found", "subscriber not found"))
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "subscriber_not_found",
		},
		{
			name:   "list active only",
			method: http.MethodGet,
			path:   "/admin/webhooks/subscribers?active_only=true",
			setupMock: func(m *mocks.WebhookServiceMock) {
				m.On("ListSubscribers", mock.Anything, &dto.SubscriberListQuery{ActiveOnly: true}).
					Return([]dto.SubscriberResponseDTO{*created}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "deactivate",
			method: http.MethodDelete,
			path:   "/admin/webhooks/subscribers/" + testSubscriberID,
			setupMock: func(m *mocks.WebhookServiceMock) {
				m.On("DeactivateSubscriber", mock.Anything, testSubscriberID).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.WebhookServiceMock)
			tt.setupMock(svc)
			r, _ := newTestRouter(t, svc, middleware.NewTokenAuthorizer(adminToken))

			w := do(r, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.expectedCode, resp["code"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestWebhookHandler_DeliveriesDispatchVerify(t *testing.T) {
	svc := new(mocks.WebhookServiceMock)
	svc.On("ListDeliveries", mock.Anything, &dto.DeliveryListQuery{Outcome: "success", Limit: 5}).
		Return([]dto.DeliveryAttemptDTO{{ID: "d1", Outcome: "success"}}, nil)
	svc.On("Dispatch", mock.Anything, mock.MatchedBy(func(req *dto.DispatchDTO) bool {
		return req.Event == "order.created" && bytes.Equal(req.Data, []byte(`{"id":1}`))
	})).Return(&dto.DispatchResponseDTO{JobIDs: []string{"j1"}}, nil)
	svc.On("VerifySignature", mock.Anything, &dto.VerifySignatureDTO{Body: "{}", Signature: "sha256=ab"}).
		Return(&dto.VerifySignatureResponseDTO{Valid: false}, nil)

	r, _ := newTestRouter(t, svc, middleware.NewTokenAuthorizer(adminToken))

	w := do(r, http.MethodGet, "/admin/webhooks/deliveries?outcome=success&limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"deliveries":[`)

	w = do(r, http.MethodGet, "/admin/webhooks/deliveries?outcome=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/admin/webhooks/dispatch", `{"event":"order.created","data":{"id":1}}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.JSONEq(t, `{"job_ids":["j1"]}`, w.Body.String())

	w = do(r, http.MethodPost, "/admin/webhooks/verify", `{"body":"{}","signature":"sha256=ab"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())

	svc.AssertExpectations(t)
}

func TestWebhookHandler_Permissions(t *testing.T) {
	svc := new(mocks.WebhookServiceMock)

	r, _ := newTestRouter(t, svc, middleware.NewTokenAuthorizer("other-token"))
	w := do(r, http.MethodGet, "/admin/webhooks/subscribers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r, _ = newTestRouter(t, svc, middleware.NewTokenAuthorizer(adminToken, config.PermissionQueueRead))
	w = do(r, http.MethodGet, "/admin/webhooks/subscribers", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	svc.AssertNotCalled(t, "ListSubscribers", mock.Anything, mock.Anything)
}
