package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/service"
	appwf "github.com/garyjia/claim-workflow/internal/application/workflow"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	trail := audit.NewTrail(store)
	engine := appwf.NewEngine(store, store, trail)
	wf := service.NewWorkflowService(engine, store, trail, nopLogger{})
	claims := service.NewClaimService(store, wf, nopLogger{})

	return NewServer(DefaultServerConfig(), wf, claims, nopLogger{}, opts...)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func createSubmitted(t *testing.T, s *Server, lecturerID int64) int64 {
	t.Helper()
	code, resp := doRequest(t, s, http.MethodPost, "/api/claims", map[string]interface{}{
		"lecturer_id": lecturerID,
		"claim_month": "2025-03",
		"total_hours": 10,
		"hourly_rate": 200,
		"submit":      true,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var claim struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &claim))
	require.Equal(t, "Submitted", claim.Status)
	return claim.ID
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, WithHealth(func(ctx context.Context) map[string]error {
			return map[string]error{"database": nil}
		}))

		code, resp := doRequest(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Success)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(resp.Data, &health))
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, "ok", health.Components["database"])
	})

	t.Run("degraded", func(t *testing.T) {
		s := newTestServer(t, WithHealth(func(ctx context.Context) map[string]error {
			return map[string]error{"redis": errors.New("connection refused")}
		}))

		code, resp := doRequest(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.False(t, resp.Success)

		var health HealthResponse
		require.NoError(t, json.Unmarshal(resp.Data, &health))
		assert.Equal(t, "degraded", health.Status)
		assert.Equal(t, "connection refused", health.Components["redis"])
	})
}

func TestClaimLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := createSubmitted(t, s, 7)
	path := fmt.Sprintf("/api/claims/%d/transition", id)

	steps := []struct {
		action string
		role   string
		actor  int64
		from   string
		want   string
	}{
		{"approve", "coordinator", 20, "submitted", "With Manager"},
		{"approve", "manager", 30, "with_manager", "Approved"},
		{"process_payment", "hr", 40, "approved", "Paid"},
	}
	for _, step := range steps {
		code, resp := doRequest(t, s, http.MethodPost, path, map[string]interface{}{
			"action":          step.action,
			"actor_id":        step.actor,
			"actor_role":      step.role,
			"expected_status": step.from,
		})
		require.Equal(t, http.StatusOK, code, resp.Error)

		var result service.TransitionResult
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Equal(t, workflow.Status(step.want), result.NewStatus)
	}

	code, resp := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/claims/%d/history", id), nil)
	require.Equal(t, http.StatusOK, code)
	var history service.ClaimHistory
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.True(t, history.Consistent)
	assert.Len(t, history.Records, 4)

	code, resp = doRequest(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats struct {
		TotalClaims int `json:"total_claims"`
		Paid        int `json:"paid"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 1, stats.TotalClaims)
	assert.Equal(t, 1, stats.Paid)
}

func TestTransitionErrors(t *testing.T) {
	s := newTestServer(t)
	id := createSubmitted(t, s, 7)

	tests := []struct {
		name     string
		path     string
		body     map[string]interface{}
		wantCode int
		wantKind string
	}{
		{
			name:     "wrong role",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "approve", "actor_id": 30, "actor_role": "manager", "expected_status": "submitted"},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "InvalidTransition",
		},
		{
			name: "stale expected status",
			path: fmt.Sprintf("/api/claims/%d/transition", id),
			body: map[string]interface{}{
				"action": "approve", "actor_id": 20, "actor_role": "coordinator",
				"expected_status": "with_manager",
			},
			wantCode: http.StatusConflict,
			wantKind: "Conflict",
		},
		{
			name:     "unknown action",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "escalate", "actor_id": 20, "actor_role": "coordinator", "expected_status": "submitted"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
		{
			name:     "unknown role",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "approve", "actor_id": 20, "actor_role": "dean", "expected_status": "submitted"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
		{
			name:     "missing claim",
			path:     "/api/claims/999/transition",
			body:     map[string]interface{}{"action": "approve", "actor_id": 20, "actor_role": "coordinator", "expected_status": "submitted"},
			wantCode: http.StatusNotFound,
			wantKind: "NotFound",
		},
		{
			name:     "missing expected status",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "approve", "actor_id": 20, "actor_role": "coordinator"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
		{
			name:     "unknown expected status",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "approve", "actor_id": 20, "actor_role": "coordinator", "expected_status": "limbo"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
		{
			name:     "bad id",
			path:     "/api/claims/abc/transition",
			body:     map[string]interface{}{"action": "approve", "actor_id": 20, "actor_role": "coordinator", "expected_status": "submitted"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
		{
			name:     "missing actor",
			path:     fmt.Sprintf("/api/claims/%d/transition", id),
			body:     map[string]interface{}{"action": "approve", "actor_role": "coordinator", "expected_status": "submitted"},
			wantCode: http.StatusBadRequest,
			wantKind: "InvalidArgument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := doRequest(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestCreateClaimValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad month", map[string]interface{}{"lecturer_id": 1, "claim_month": "March", "total_hours": 10, "hourly_rate": 200}},
		{"hours too high", map[string]interface{}{"lecturer_id": 1, "claim_month": "2025-03", "total_hours": 500, "hourly_rate": 200}},
		{"rate too low", map[string]interface{}{"lecturer_id": 1, "claim_month": "2025-03", "total_hours": 10, "hourly_rate": 5}},
		{"no lecturer", map[string]interface{}{"claim_month": "2025-03", "total_hours": 10, "hourly_rate": 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := doRequest(t, s, http.MethodPost, "/api/claims", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "InvalidArgument", resp.Kind)
		})
	}
}

func TestUpdateDraft(t *testing.T) {
	s := newTestServer(t)

	code, resp := doRequest(t, s, http.MethodPost, "/api/claims", map[string]interface{}{
		"lecturer_id": 3,
		"claim_month": "2025-04-01",
		"total_hours": 10,
		"hourly_rate": 200,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var draft struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &draft))
	assert.Equal(t, "Draft", draft.Status)

	code, resp = doRequest(t, s, http.MethodPut, fmt.Sprintf("/api/claims/%d", draft.ID), map[string]interface{}{
		"lecturer_id": 3,
		"claim_month": "2025-04",
		"total_hours": 12,
		"hourly_rate": 250,
	})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var updated struct {
		Amount  float64 `json:"amount"`
		Version int64   `json:"version"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, 3000.0, updated.Amount)
	assert.Equal(t, int64(2), updated.Version)

	code, resp = doRequest(t, s, http.MethodPut, fmt.Sprintf("/api/claims/%d", draft.ID), map[string]interface{}{
		"lecturer_id": 4,
		"claim_month": "2025-04",
		"total_hours": 12,
		"hourly_rate": 250,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "InvalidTransition", resp.Kind)
}

func TestQueueAndListing(t *testing.T) {
	s := newTestServer(t)
	first := createSubmitted(t, s, 1)
	createSubmitted(t, s, 2)

	code, resp := doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/claims/%d/transition", first), map[string]interface{}{
		"action": "approve", "actor_id": 20, "actor_role": "coordinator", "expected_status": "submitted",
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	var queue []struct {
		ID int64 `json:"id"`
	}
	code, resp = doRequest(t, s, http.MethodGet, "/api/queue/manager", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, first, queue[0].ID)

	code, resp = doRequest(t, s, http.MethodGet, "/api/queue/dean", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var listed []struct {
		LecturerID int64 `json:"lecturer_id"`
	}
	code, resp = doRequest(t, s, http.MethodGet, "/api/claims?lecturer_id=2", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Data, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, int64(2), listed[0].LecturerID)

	code, resp = doRequest(t, s, http.MethodGet, "/api/claims?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidArgument", resp.Kind)
}

func TestAvailableActions(t *testing.T) {
	s := newTestServer(t)

	code, resp := doRequest(t, s, http.MethodGet, "/api/workflow/with_manager/actions", nil)
	require.Equal(t, http.StatusOK, code)

	var actions ActionsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &actions))
	assert.Equal(t, workflow.StatusWithManager, actions.Status)
	assert.Equal(t, []string{"Approve", "Reject", "Escalate"}, actions.Actions)

	code, _ = doRequest(t, s, http.MethodGet, "/api/workflow/limbo/actions", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProcessPayments(t *testing.T) {
	s := newTestServer(t)
	id := createSubmitted(t, s, 5)
	for _, step := range []struct {
		role  string
		actor int64
		from  string
	}{{"coordinator", 20, "submitted"}, {"manager", 30, "with_manager"}} {
		code, resp := doRequest(t, s, http.MethodPost, fmt.Sprintf("/api/claims/%d/transition", id), map[string]interface{}{
			"action": "approve", "actor_id": step.actor, "actor_role": step.role, "expected_status": step.from,
		})
		require.Equal(t, http.StatusOK, code, resp.Error)
	}

	code, resp := doRequest(t, s, http.MethodPost, "/api/payments", map[string]interface{}{
		"actor_id":  40,
		"claim_ids": []int64{id, 404},
	})
	require.Equal(t, http.StatusOK, code, resp.Error)

	var batch service.PaymentBatchResult
	require.NoError(t, json.Unmarshal(resp.Data, &batch))
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 2000.0, batch.TotalAmount)
	require.Len(t, batch.Outcomes, 2)
	assert.Equal(t, workflow.KindNotFound, batch.Outcomes[1].Error)

	code, _ = doRequest(t, s, http.MethodPost, "/api/payments", map[string]interface{}{"actor_id": 40})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workflow.ErrInvalidArgument, http.StatusBadRequest},
		{workflow.ErrInvalidState, http.StatusBadRequest},
		{workflow.ErrNotFound, http.StatusNotFound},
		{workflow.ErrConflict, http.StatusConflict},
		{workflow.ErrInvalidTransition, http.StatusUnprocessableEntity},
		{fmt.Errorf("update: %w", workflow.ErrStorage), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestAuditStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	s = newTestServer(t, WithAuditStatus(func() interface{} {
		return map[string]int{"checked": 3}
	}))
	code, resp := doRequest(t, s, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"checked":3}`, string(resp.Data))
}
