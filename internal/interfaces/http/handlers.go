package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/claim-workflow/internal/application/service"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService service.WorkflowService
	claimService    service.ClaimService
	health          HealthFunc
	audit           func() interface{}
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	workflowService service.WorkflowService,
	claimService service.ClaimService,
	logger Logger,
) *Handlers {
	return &Handlers{
		workflowService: workflowService,
		claimService:    claimService,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
}

// ListClaimsRequest represents query parameters for listing claims
type ListClaimsRequest struct {
	Status     string `form:"status"`
	LecturerID int64  `form:"lecturer_id" binding:"gte=0"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset" binding:"gte=0"`
}

// CreateClaimRequest is the body of POST /api/claims
type CreateClaimRequest struct {
	LecturerID int64   `json:"lecturer_id" binding:"required,gt=0"`
	ClaimMonth string  `json:"claim_month" binding:"required"`
	TotalHours float64 `json:"total_hours"`
	HourlyRate float64 `json:"hourly_rate"`
	Notes      string  `json:"notes"`
	Submit     bool    `json:"submit"`
}

// UpdateDraftRequest is the body of PUT /api/claims/:id
type UpdateDraftRequest struct {
	LecturerID int64   `json:"lecturer_id" binding:"required,gt=0"`
	ClaimMonth string  `json:"claim_month" binding:"required"`
	TotalHours float64 `json:"total_hours"`
	HourlyRate float64 `json:"hourly_rate"`
	Notes      string  `json:"notes"`
}

// TransitionRequest is the body of POST /api/claims/:id/transition
type TransitionRequest struct {
	Action         string `json:"action" binding:"required"`
	ActorID        int64  `json:"actor_id" binding:"required,gt=0"`
	ActorRole      string `json:"actor_role" binding:"required"`
	ExpectedStatus string `json:"expected_status" binding:"required"`
	Notes          string `json:"notes"`
}

// PaymentRequest is the body of POST /api/payments
type PaymentRequest struct {
	ActorID  int64   `json:"actor_id" binding:"required,gt=0"`
	ClaimIDs []int64 `json:"claim_ids" binding:"required,min=1"`
}

// ActionsResponse lists the UI actions for a status
type ActionsResponse struct {
	Status  workflow.Status `json:"status"`
	Actions []string        `json:"actions"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	}

	code := http.StatusOK
	if h.health != nil {
		response.Components = make(map[string]string)
		for name, err := range h.health(c.Request.Context()) {
			if err != nil {
				response.Components[name] = err.Error()
				response.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Components[name] = "ok"
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    response,
	})
}

// ListClaims handles GET /api/claims
func (h *Handlers) ListClaims(c *gin.Context) {
	var req ListClaimsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}

	filter := entity.ClaimFilter{
		LecturerID: req.LecturerID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	}
	if req.Status != "" {
		status, err := workflow.ParseStatus(req.Status)
		if err != nil {
			h.writeError(c, err)
			return
		}
		filter.Status = status
	}

	claims, err := h.workflowService.ListClaims(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claims,
	})
}

// CreateClaim handles POST /api/claims
func (h *Handlers) CreateClaim(c *gin.Context) {
	var req CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid claim", err)
		return
	}

	month, err := parseClaimMonth(req.ClaimMonth)
	if err != nil {
		h.writeError(c, err)
		return
	}

	claim, err := h.claimService.Create(c.Request.Context(), service.CreateClaimInput{
		LecturerID: req.LecturerID,
		ClaimMonth: month,
		TotalHours: req.TotalHours,
		HourlyRate: req.HourlyRate,
		Notes:      req.Notes,
		Submit:     req.Submit,
	})
	if err != nil && claim != nil {
		// Stored as a draft, but its submission failed
		h.writeErrorData(c, err, claim)
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    claim,
	})
}

// GetClaim handles GET /api/claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	id, ok := h.claimID(c)
	if !ok {
		return
	}

	claim, err := h.workflowService.GetClaim(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// UpdateDraft handles PUT /api/claims/:id
func (h *Handlers) UpdateDraft(c *gin.Context) {
	id, ok := h.claimID(c)
	if !ok {
		return
	}

	var req UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid claim", err)
		return
	}

	month, err := parseClaimMonth(req.ClaimMonth)
	if err != nil {
		h.writeError(c, err)
		return
	}

	claim, err := h.claimService.UpdateDraft(c.Request.Context(), service.UpdateDraftInput{
		ClaimID:    id,
		LecturerID: req.LecturerID,
		ClaimMonth: month,
		TotalHours: req.TotalHours,
		HourlyRate: req.HourlyRate,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claim,
	})
}

// Transition handles POST /api/claims/:id/transition
func (h *Handlers) Transition(c *gin.Context) {
	id, ok := h.claimID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid transition request", err)
		return
	}

	in, err := req.toInput(id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.workflowService.Transition(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

func (r TransitionRequest) toInput(claimID int64) (service.TransitionInput, error) {
	action, err := workflow.ParseAction(r.Action)
	if err != nil {
		return service.TransitionInput{}, err
	}
	role, err := workflow.ParseRole(r.ActorRole)
	if err != nil {
		return service.TransitionInput{}, err
	}

	expected, err := workflow.ParseStatus(r.ExpectedStatus)
	if err != nil {
		return service.TransitionInput{}, err
	}

	return service.TransitionInput{
		ClaimID:        claimID,
		Action:         action,
		ActorID:        r.ActorID,
		ActorRole:      role,
		ExpectedStatus: expected,
		Notes:          r.Notes,
	}, nil
}

// History handles GET /api/claims/:id/history
func (h *Handlers) History(c *gin.Context) {
	id, ok := h.claimID(c)
	if !ok {
		return
	}

	history, err := h.workflowService.History(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    history,
	})
}

// Queue handles GET /api/queue/:role
func (h *Handlers) Queue(c *gin.Context) {
	role, err := workflow.ParseRole(c.Param("role"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	claims, err := h.workflowService.PendingFor(c.Request.Context(), role)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    claims,
	})
}

// AvailableActions handles GET /api/workflow/:status/actions
func (h *Handlers) AvailableActions(c *gin.Context) {
	status, err := workflow.ParseStatus(c.Param("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ActionsResponse{
			Status:  status,
			Actions: h.workflowService.GetAvailableActions(status),
		},
	})
}

// Stats handles GET /api/stats
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.workflowService.GetStats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    stats,
	})
}

// ProcessPayments handles POST /api/payments
func (h *Handlers) ProcessPayments(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid payment request", err)
		return
	}

	result, err := h.workflowService.ProcessPayments(c.Request.Context(), req.ActorID, req.ClaimIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// AuditStatus handles GET /api/audit
func (h *Handlers) AuditStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.audit(),
	})
}

func (h *Handlers) claimID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid claim ID", "id", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid claim ID",
			Kind:    string(workflow.KindInvalidArgument),
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   fmt.Sprintf("%s: %v", msg, err),
		Kind:    string(workflow.KindInvalidArgument),
	})
}

// writeError maps workflow error kinds to HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	h.writeErrorData(c, err, nil)
}

func (h *Handlers) writeErrorData(c *gin.Context, err error, data interface{}) {
	kind := workflow.KindOf(err)
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "kind", kind, "error", err)
	}

	resp := Response{
		Success: false,
		Error:   err.Error(),
		Kind:    string(kind),
	}
	if data != nil {
		resp.Data = data
	}
	c.JSON(code, resp)
}

// StatusFor returns the HTTP status code for an error
func StatusFor(err error) int {
	switch workflow.KindOf(err) {
	case workflow.KindInvalidArgument:
		return http.StatusBadRequest
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case workflow.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var monthLayouts = []string{"2006-01", "2006-01-02", time.RFC3339}

// parseClaimMonth accepts "2025-03", "2025-03-01" or RFC 3339 and returns the first of the month
func parseClaimMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: claim_month %q is not YYYY-MM", workflow.ErrInvalidArgument, s)
}
