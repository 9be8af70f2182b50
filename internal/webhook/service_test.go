package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/joshu-sajeev/hookqueue/common"
	"github.com/joshu-sajeev/hookqueue/internal/dto"
	"github.com/joshu-sajeev/hookqueue/internal/mocks"
	"github.com/joshu-sajeev/hookqueue/internal/models"
	"github.com/joshu-sajeev/hookqueue/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSubscriberID = "6f1c2f4e-7a4b-4f0e-9d2a-1f3b5c7d9e01"

type stubDispatcher struct {
	ids []string
	err error
}

func (s stubDispatcher) Dispatch(context.Context, string, json.RawMessage) ([]string, error) {
	return s.ids, s.err
}

func TestWebhookService_CreateSubscriber(t *testing.T) {
	subs := new(mocks.SubscriberRepoMock)
	subs.On("Create", mock.Anything, mock.MatchedBy(func(sub *models.WebhookSubscriber) bool {
		return sub.URL == "https://example.com/hook" && sub.Secret == "0123456789abcdef" && sub.Active
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.WebhookSubscriber).ID = testSubscriberID
	}).Return(nil)

	svc := NewWebhookService(subs, nil, nil, "", nil)
	resp, err := svc.CreateSubscriber(context.Background(), &dto.SubscriberCreateDTO{
		URL:    "https://example.com/hook",
		Secret: "0123456789abcdef",
		Events: []string{"order.created", "order.paid"},
	})
	require.NoError(t, err)
	assert.Equal(t, testSubscriberID, resp.ID)
	assert.Equal(t, []string{"order.created", "order.paid"}, resp.Events)
	assert.True(t, resp.Active)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "0123456789abcdef")
	subs.AssertExpectations(t)
}

func TestWebhookService_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not found", err: fmt.Errorf("get: %w", storage.ErrSubscriberNotFound), status: http.StatusNotFound, code: "subscriber_not_found"},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusRequestTimeout},
		{name: "db error", err: errors.New("connection refused"), status: http.StatusInternalServerError},
		{name: "api error passes through", err: common.Coded(http.StatusConflict, "busy", "busy"), status: http.StatusConflict, code: "busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := new(mocks.SubscriberRepoMock)
			subs.On("Get", mock.Anything, testSubscriberID).Return(nil, tt.err)
			subs.On("Deactivate", mock.Anything, testSubscriberID).Return(tt.err)

			svc := NewWebhookService(subs, nil, nil, "", nil)

			_, err := svc.GetSubscriber(context.Background(), testSubscriberID)
			assertRejected(t, err, tt.status, tt.code)

			err = svc.DeactivateSubscriber(context.Background(), testSubscriberID)
			assertRejected(t, err, tt.status, tt.code)
		})
	}
}

func TestWebhookService_ListSubscribers(t *testing.T) {
	subs := new(mocks.SubscriberRepoMock)
	subs.On("List", mock.Anything, true).Return([]models.WebhookSubscriber{
		{ID: "a", URL: "https://a.example.com", Secret: "s", Events: []string{"*"}, Active: true},
	}, nil)

	svc := NewWebhookService(subs, nil, nil, "", nil)
	out, err := svc.ListSubscribers(context.Background(), &dto.SubscriberListQuery{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"*"}, out[0].Events)
}

func TestWebhookService_ListDeliveries(t *testing.T) {
	status := 503
	msg := "subscriber responded HTTP 503"
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	deliveries := new(mocks.DeliveryLogMock)
	deliveries.On("List", mock.Anything, storage.DeliveryFilter{SubscriberID: "a", Outcome: "retryable_failure", Limit: 10}).
		Return([]models.DeliveryAttempt{{
			ID: "d1", JobID: "j1", SubscriberID: "a", EventID: "e1", EventType: "order.created",
			AttemptNumber: 2, HTTPStatus: &status, DurationMS: 120, Outcome: "retryable_failure",
			Error: &msg, CreatedAt: at,
		}}, nil)

	svc := NewWebhookService(nil, deliveries, nil, "", nil)
	out, err := svc.ListDeliveries(context.Background(), &dto.DeliveryListQuery{SubscriberID: "a", Outcome: "retryable_failure", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].AttemptNumber)
	assert.Equal(t, 503, *out[0].HTTPStatus)
	assert.Equal(t, msg, out[0].Error)
	assert.Empty(t, out[0].ResponseBody)
	assert.Equal(t, at, out[0].Timestamp)
}

func TestWebhookService_Dispatch(t *testing.T) {
	req := &dto.DispatchDTO{Event: "order.created", Data: json.RawMessage(`{}`)}

	resp, err := NewWebhookService(nil, nil, stubDispatcher{ids: []string{"j1", "j2"}}, "", nil).Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2"}, resp.JobIDs)

	resp, err = NewWebhookService(nil, nil, stubDispatcher{ids: []string{"j1"}, err: errors.New("sub-b: db")}, "", nil).Dispatch(context.Background(), req)
	require.NoError(t, err, "partial failure still reports the enqueued jobs")
	assert.Equal(t, []string{"j1"}, resp.JobIDs)

	_, err = NewWebhookService(nil, nil, stubDispatcher{err: errors.New("db down")}, "", nil).Dispatch(context.Background(), req)
	assertRejected(t, err, http.StatusInternalServerError, "")
}

func TestWebhookService_VerifySignature(t *testing.T) {
	body := `{"event":"a"}`

	svc := NewWebhookService(nil, nil, nil, testSecret, nil)
	resp, err := svc.VerifySignature(context.Background(), &dto.VerifySignatureDTO{Body: body, Signature: Sign(testSecret, []byte(body))})
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	resp, err = svc.VerifySignature(context.Background(), &dto.VerifySignatureDTO{Body: body + " ", Signature: Sign(testSecret, []byte(body))})
	require.NoError(t, err)
	assert.False(t, resp.Valid)

	_, err = NewWebhookService(nil, nil, nil, "", nil).VerifySignature(context.Background(), &dto.VerifySignatureDTO{Body: body, Signature: "sha256=00"})
	assertRejected(t, err, http.StatusConflict, "secret_not_configured")
}
