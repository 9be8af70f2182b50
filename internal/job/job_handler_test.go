package job

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

const testToken = "test-admin-token"

func newTestRouter(service JobServiceInterface, authz middleware.Authorizer) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.TimeoutMiddleware(5*time.Second), middleware.ErrorHandler())
	NewJobHandler(service).RegisterRoutes(r.Group("/admin"), authz)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}

	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJobHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "successful job creation",
			body: `{"type":"process_webhook_event","payload":{"event_id":"e1"},"max_attempts":3}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.MatchedBy(func(req *dto.JobCreateDTO) bool {
					return req.Type == config.JobTypeProcessWebhookEvent && req.MaxAttempts == 3
				})).Return(&dto.JobCreatedDTO{ID: testJobID}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid request body JSON",
			body:           "{invalid json}",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_json",
		},
		{
			name:           "missing type",
			body:           `{"payload":{}}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_failed",
		},
		{
			name:           "max attempts out of range",
			body:           `{"type":"deliver_webhook","payload":{},"max_attempts":51}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "validation_failed",
		},
		{
			name: "unknown job type",
			body: `{"type":"send_email","payload":{"test":true}}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.Anything).
					Return(nil, common.APIError{
						Status:  http.StatusBadRequest,
						Code:    "invalid_job_type",
						Message: "invalid job type",
						Fields:  map[string]any{"provided": "send_email"},
					})
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_job_type",
		},
		{
			name: "database connection error",
			body: `{"type":"deliver_webhook","payload":{"test":true}}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("CreateJob", mock.Anything, mock.Anything).
					Return(nil, common.Errf(http.StatusInternalServerError, "failed to add job to database"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			w := serve(newTestRouter(mockService, middleware.NewTokenAuthorizer(testToken)), http.MethodPost, "/admin/jobs", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch for test: %s", tt.name)
			if tt.expectedCode != "" {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.expectedCode, body["code"])
			}
			if tt.expectedStatus == http.StatusCreated {
				assert.JSONEq(t, `{"id":"`+testJobID+`"}`, w.Body.String())
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Get(t *testing.T) {
	validJobResponse := &dto.JobResponseDTO{
		ID:          testJobID,
		Type:        config.JobTypeDeliverWebhook,
		Payload:     json.RawMessage(`{"url":"https://example.com"}`),
		Status:      string(config.JobStatusQueued),
		MaxAttempts: 6,
	}

	tests := []struct {
		name           string
		jobID          string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "successful fetch",
			jobID: testJobID,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("GetJob", mock.Anything, testJobID).Return(validJobResponse, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"id":"` + testJobID + `","type":"deliver_webhook","payload":{"url":"https://example.com"},"status":"queued","attempts":0,"max_attempts":6,"available_at":"0001-01-01T00:00:00Z","created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}`,
		},
		{
			name:           "invalid ID param",
			jobID:          "abc",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid ID","code":"invalid_id"}`,
		},
		{
			name:  "job not found",
			jobID: testJobID,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("GetJob", mock.Anything, testJobID).Return(nil, common.Coded(http.StatusNotFound, "job_not_found", "job not found"))
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"error":"job not found","code":"job_not_found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			w := serve(newTestRouter(mockService, middleware.NewTokenAuthorizer(testToken)), http.MethodGet, "/admin/jobs/"+tt.jobID, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_List(t *testing.T) {
	expectedDTOs := []dto.JobResponseDTO{
		{ID: "a", Type: config.JobTypeDeliverWebhook, Status: string(config.JobStatusQueued), Payload: json.RawMessage(`{}`)},
		{ID: "b", Type: config.JobTypeDeliverWebhook, Status: string(config.JobStatusQueued), Payload: json.RawMessage(`{}`)},
	}

	tests := []struct {
		name           string
		query          string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
		expectedIDs    []string
	}{
		{
			name:  "success",
			query: "?status=queued&type=deliver_webhook&limit=2",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("ListJobs", mock.Anything, &dto.JobListQuery{Status: "queued", Type: "deliver_webhook", Limit: 2}).
					Return(expectedDTOs, nil)
			},
			expectedStatus: http.StatusOK,
			expectedIDs:    []string{"a", "b"},
		},
		{
			name:           "unknown status",
			query:          "?status=running",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "limit not a number",
			query:          "?limit=lots",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "service error",
			query: "",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("ListJobs", mock.Anything, &dto.JobListQuery{}).
					Return(nil, common.Errf(http.StatusInternalServerError, "failed to list jobs"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			w := serve(newTestRouter(mockService, middleware.NewTokenAuthorizer(testToken)), http.MethodGet, "/admin/jobs"+tt.query, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedIDs != nil {
				var body struct {
					Jobs []dto.JobResponseDTO `json:"jobs"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				ids := make([]string, len(body.Jobs))
				for i, j := range body.Jobs {
					ids[i] = j.ID
				}
				assert.Equal(t, tt.expectedIDs, ids)
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_RequeueDeadLetter(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "empty body resets attempts",
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("RequeueDeadLetter", mock.Anything, testDeadLetterID, true).
					Return(&dto.RequeueResponseDTO{JobID: "new-job"}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "keep attempt count",
			body: `{"reset_attempts":false}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("RequeueDeadLetter", mock.Anything, testDeadLetterID, false).
					Return(&dto.RequeueResponseDTO{JobID: "new-job"}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "already requeued",
			body: `{"reset_attempts":true}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("RequeueDeadLetter", mock.Anything, testDeadLetterID, true).
					Return(nil, common.Coded(http.StatusConflict, "already_requeued", "dead letter already requeued"))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "malformed body",
			body:           `{"reset_attempts":`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			tt.setupMock(mockService)

			w := serve(newTestRouter(mockService, middleware.NewTokenAuthorizer(testToken)), http.MethodPost, "/admin/dead-letters/"+testDeadLetterID+"/requeue", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if w.Code == http.StatusCreated {
				assert.JSONEq(t, `{"job_id":"new-job"}`, w.Body.String())
			}
			mockService.AssertExpectations(t)
		})
	}
}

func TestJobHandler_DeadLetterRoutes(t *testing.T) {
	mockService := new(mocks.JobServiceMock)
	mockService.On("ListDeadLetters", mock.Anything, mock.MatchedBy(func(q *dto.DeadLetterListQuery) bool {
		return q.Requeued != nil && !*q.Requeued && q.Reason == "stale_claim"
	})).Return([]dto.DeadLetterResponseDTO{{ID: testDeadLetterID}}, nil)
	mockService.On("GetDeadLetter", mock.Anything, testDeadLetterID).Return(&dto.DeadLetterResponseDTO{ID: testDeadLetterID}, nil)
	mockService.On("DeleteDeadLetter", mock.Anything, testDeadLetterID).Return(nil)

	r := newTestRouter(mockService, middleware.NewTokenAuthorizer(testToken))

	w := serve(r, http.MethodGet, "/admin/dead-letters?requeued=false&reason=stale_claim", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dead_letters":[`)

	w = serve(r, http.MethodGet, "/admin/dead-letters/"+testDeadLetterID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodDelete, "/admin/dead-letters/"+testDeadLetterID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodGet, "/admin/dead-letters?reason=bored", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockService.AssertExpectations(t)
}

func TestJobHandler_Permissions(t *testing.T) {
	readOnly := middleware.NewTokenAuthorizer(testToken, config.PermissionQueueRead)

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
		expectedCode   string
	}{
		{name: "missing token", method: http.MethodGet, path: "/admin/jobs", expectedStatus: http.StatusUnauthorized, expectedCode: "unauthenticated"},
		{name: "wrong token", method: http.MethodGet, path: "/admin/jobs", token: "nope", expectedStatus: http.StatusUnauthorized, expectedCode: "unauthenticated"},
		{name: "write without permission", method: http.MethodPost, path: "/admin/jobs", token: testToken, expectedStatus: http.StatusForbidden, expectedCode: "forbidden"},
		{name: "dead letters without permission", method: http.MethodGet, path: "/admin/dead-letters", token: testToken, expectedStatus: http.StatusForbidden, expectedCode: "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(mocks.JobServiceMock)
			r := newTestRouter(mockService, readOnly)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedCode, body["code"])
			mockService.AssertNotCalled(t, "ListJobs", mock.Anything, mock.Anything)
			mockService.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
		})
	}
}
