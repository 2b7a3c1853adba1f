package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/notification"
	"github.com/garyjia/claim-workflow/internal/application/port"
	appwf "github.com/garyjia/claim-workflow/internal/application/workflow"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

const tracerName = "github.com/garyjia/claim-workflow/internal/application/service"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TransitionInput is a caller's request to move a claim
type TransitionInput struct {
	ClaimID        int64           `json:"claim_id"`
	Action         workflow.Action `json:"action"`
	ActorID        int64           `json:"actor_id"`
	ActorRole      workflow.Role   `json:"actor_role"`
	ExpectedStatus workflow.Status `json:"expected_status"`
	Notes          string          `json:"notes"`
}

// TransitionResult is returned for a committed transition
type TransitionResult struct {
	ClaimID        int64                  `json:"claim_id"`
	PreviousStatus workflow.Status        `json:"previous_status"`
	NewStatus      workflow.Status        `json:"new_status"`
	Message        string                 `json:"message"`
	Claim          *entity.Claim          `json:"claim"`
	Record         *entity.ApprovalRecord `json:"record"`
}

// ClaimHistory is a claim's audit trail with its replay verdict
type ClaimHistory struct {
	Claim      *entity.Claim            `json:"claim"`
	Records    []*entity.ApprovalRecord `json:"records"`
	Consistent bool                     `json:"consistent"`
	Problem    string                   `json:"problem,omitempty"`
}

// PaymentOutcome is the result of paying one claim in a batch
type PaymentOutcome struct {
	ClaimID int64           `json:"claim_id"`
	Paid    bool            `json:"paid"`
	Status  workflow.Status `json:"status,omitempty"`
	Amount  float64         `json:"amount"`
	Error   workflow.Kind   `json:"error,omitempty"`
	Detail  string          `json:"detail,omitempty"`
}

// PaymentBatchResult summarises an HR payment run
type PaymentBatchResult struct {
	Processed   int              `json:"processed"`
	TotalAmount float64          `json:"total_amount"`
	Message     string           `json:"message"`
	Outcomes    []PaymentOutcome `json:"outcomes"`
}

// WorkflowService is the entry point for moving claims through approval
type WorkflowService interface {
	Transition(ctx context.Context, in TransitionInput) (*TransitionResult, error)
	GetAvailableActions(status workflow.Status) []string
	GetStats(ctx context.Context) (*entity.Stats, error)
	GetClaim(ctx context.Context, id int64) (*entity.Claim, error)
	ListClaims(ctx context.Context, filter entity.ClaimFilter) ([]*entity.Claim, error)
	PendingFor(ctx context.Context, role workflow.Role) ([]*entity.Claim, error)
	History(ctx context.Context, claimID int64) (*ClaimHistory, error)
	ProcessPayments(ctx context.Context, actorID int64, claimIDs []int64) (*PaymentBatchResult, error)
}

type workflowServiceImpl struct {
	engine      appwf.WorkflowEngine
	store       port.ClaimStore
	trail       audit.Trail
	dispatcher  notification.Dispatcher
	locks       *claimLocks
	lockTimeout time.Duration
	logger      Logger
	tracer      trace.Tracer
}

// Option configures the workflow service
type Option func(*workflowServiceImpl)

// WithDispatcher sets the dispatcher used to announce committed transitions
func WithDispatcher(d notification.Dispatcher) Option {
	return func(s *workflowServiceImpl) {
		s.dispatcher = d
	}
}

// WithLockTimeout bounds how long a transition waits for the claim lock
func WithLockTimeout(timeout time.Duration) Option {
	return func(s *workflowServiceImpl) {
		if timeout > 0 {
			s.lockTimeout = timeout
		}
	}
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	engine appwf.WorkflowEngine,
	store port.ClaimStore,
	trail audit.Trail,
	logger Logger,
	opts ...Option,
) WorkflowService {
	s := &workflowServiceImpl{
		engine:      engine,
		store:       store,
		trail:       trail,
		locks:       newClaimLocks(),
		lockTimeout: appwf.DefaultStoreTimeout,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transition validates and commits one workflow step, then hands the
// announcement to the dispatcher. Notification problems never fail the call.
func (s *workflowServiceImpl) Transition(ctx context.Context, in TransitionInput) (result *TransitionResult, err error) {
	ctx, span := s.tracer.Start(ctx, "WorkflowService.Transition", trace.WithAttributes(
		attribute.Int64("claim.id", in.ClaimID),
		attribute.String("workflow.action", in.Action.String()),
		attribute.String("workflow.role", in.ActorRole.String()),
		attribute.Int64("actor.id", in.ActorID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(workflow.KindOf(err)))
		}
		span.End()
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	release, err := s.locks.Acquire(lockCtx, in.ClaimID)
	cancel()
	if err != nil {
		s.logger.Error("Timed out waiting for claim lock", "claim_id", in.ClaimID, "error", err)
		return nil, err
	}
	defer release()

	committed, err := s.engine.Commit(ctx, appwf.TransitionRequest{
		ClaimID:        in.ClaimID,
		Action:         in.Action,
		ActorID:        in.ActorID,
		ActorRole:      in.ActorRole,
		ExpectedStatus: in.ExpectedStatus,
		Notes:          utils.SanitizeString(in.Notes),
	})
	if err != nil {
		s.logger.Error("Transition rejected",
			"claim_id", in.ClaimID,
			"action", in.Action,
			"role", in.ActorRole,
			"kind", workflow.KindOf(err),
			"error", err,
		)
		return nil, err
	}

	claim := committed.Claim
	message := outcomeMessage(claim.ID, in.Action, claim.Status)

	s.logger.Info("Transition committed",
		"claim_id", claim.ID,
		"from", committed.Previous,
		"to", claim.Status,
		"actor_id", in.ActorID,
		"role", in.ActorRole,
		"version", claim.Version,
	)

	// Enqueue while the claim lock is held so announcements keep commit order
	s.announce(notification.Change{
		Claim:         claim,
		Previous:      committed.Previous,
		Action:        in.Action,
		ActorID:       in.ActorID,
		ActorRole:     in.ActorRole,
		Message:       message,
		CorrelationID: fmt.Sprintf("approval-%d", committed.Record.ID),
	})

	return &TransitionResult{
		ClaimID:        claim.ID,
		PreviousStatus: committed.Previous,
		NewStatus:      claim.Status,
		Message:        message,
		Claim:          claim,
		Record:         committed.Record,
	}, nil
}

func (s *workflowServiceImpl) announce(change notification.Change) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Enqueue(change.Claim.ID, notification.Fanout(change)); err != nil {
		s.logger.Error("Failed to enqueue notifications", "claim_id", change.Claim.ID, "error", err)
	}
}

func validateInput(in TransitionInput) error {
	switch {
	case in.ClaimID <= 0:
		return fmt.Errorf("%w: claim id must be positive", workflow.ErrInvalidArgument)
	case in.ActorID <= 0:
		return fmt.Errorf("%w: actor id must be positive", workflow.ErrInvalidArgument)
	case !in.Action.IsValid():
		return fmt.Errorf("%w: unknown action %q", workflow.ErrInvalidArgument, in.Action)
	case !in.ActorRole.IsValid():
		return fmt.Errorf("%w: unknown role %q", workflow.ErrInvalidArgument, in.ActorRole)
	case in.ExpectedStatus != "" && !in.ExpectedStatus.IsValid():
		return fmt.Errorf("%w: unknown expected status %q", workflow.ErrInvalidArgument, in.ExpectedStatus)
	case len(in.Notes) > entity.MaxNotesLength:
		return fmt.Errorf("%w: notes cannot exceed %d characters", workflow.ErrInvalidArgument, entity.MaxNotesLength)
	}
	return nil
}

// GetAvailableActions returns the UI action labels for a status
func (s *workflowServiceImpl) GetAvailableActions(status workflow.Status) []string {
	return workflow.AvailableActions(status)
}

// GetStats summarises all claims by status
func (s *workflowServiceImpl) GetStats(ctx context.Context) (*entity.Stats, error) {
	totals, err := s.store.StatusTotals(ctx)
	if err != nil {
		s.logger.Error("Failed to load claim totals", "error", err)
		return nil, readError("load claim totals", err)
	}
	return entity.NewStats(totals), nil
}

// GetClaim retrieves a claim by ID
func (s *workflowServiceImpl) GetClaim(ctx context.Context, id int64) (*entity.Claim, error) {
	claim, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, readError("get claim", err)
	}
	return claim, nil
}

// ListClaims returns claims matching filter
func (s *workflowServiceImpl) ListClaims(ctx context.Context, filter entity.ClaimFilter) ([]*entity.Claim, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", workflow.ErrInvalidArgument, filter.Status)
	}
	claims, err := s.store.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list claims", "error", err)
		return nil, readError("list claims", err)
	}
	return claims, nil
}

// PendingFor returns the claims waiting on role, oldest submission first.
// The statuses come from the transition table.
func (s *workflowServiceImpl) PendingFor(ctx context.Context, role workflow.Role) ([]*entity.Claim, error) {
	if !role.IsValid() || role == workflow.RoleLecturer {
		return nil, fmt.Errorf("%w: %q has no approval queue", workflow.ErrInvalidArgument, role)
	}

	table := s.engine.Table()
	statuses := make([]workflow.Status, 0, 2)
	for _, status := range workflow.AllStatuses() {
		if len(table.ActionsFor(status, role)) > 0 {
			statuses = append(statuses, status)
		}
	}

	claims, err := s.store.ListByStatuses(ctx, statuses)
	if err != nil {
		s.logger.Error("Failed to load queue", "role", role, "error", err)
		return nil, readError("load queue", err)
	}
	return claims, nil
}

// History returns the audit trail of a claim and whether it replays to the current status
func (s *workflowServiceImpl) History(ctx context.Context, claimID int64) (*ClaimHistory, error) {
	claim, records, err := s.trail.Snapshot(ctx, claimID)
	if err != nil {
		return nil, readError("load history", err)
	}

	h := &ClaimHistory{Claim: claim, Records: records, Consistent: true}
	if err := audit.Verify(s.engine.Table(), claim, records); err != nil {
		h.Consistent = false
		h.Problem = err.Error()
		s.logger.Error("Audit trail does not replay", "claim_id", claimID, "error", err)
	}
	return h, nil
}

// ProcessPayments pays each approved claim in claimIDs as one HR transition
// per claim. Claims that cannot be paid are reported, not fatal.
func (s *workflowServiceImpl) ProcessPayments(ctx context.Context, actorID int64, claimIDs []int64) (*PaymentBatchResult, error) {
	if actorID <= 0 {
		return nil, fmt.Errorf("%w: actor id must be positive", workflow.ErrInvalidArgument)
	}
	if len(claimIDs) == 0 {
		return nil, fmt.Errorf("%w: no claims selected", workflow.ErrInvalidArgument)
	}

	result := &PaymentBatchResult{Outcomes: make([]PaymentOutcome, 0, len(claimIDs))}
	seen := make(map[int64]bool, len(claimIDs))

	for _, id := range claimIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		res, err := s.Transition(ctx, TransitionInput{
			ClaimID:        id,
			Action:         workflow.ActionProcessPayment,
			ActorID:        actorID,
			ActorRole:      workflow.RoleHR,
			ExpectedStatus: workflow.StatusApproved,
		})
		if err != nil {
			result.Outcomes = append(result.Outcomes, PaymentOutcome{
				ClaimID: id,
				Error:   workflow.KindOf(err),
				Detail:  err.Error(),
			})
			continue
		}

		result.Processed++
		result.TotalAmount += res.Claim.Amount
		result.Outcomes = append(result.Outcomes, PaymentOutcome{
			ClaimID: id,
			Paid:    true,
			Status:  res.NewStatus,
			Amount:  res.Claim.Amount,
		})
	}

	result.TotalAmount = utils.RoundCents(result.TotalAmount)
	result.Message = fmt.Sprintf("Successfully processed %d payments", result.Processed)

	s.logger.Info("Payment batch processed",
		"actor_id", actorID,
		"requested", len(claimIDs),
		"processed", result.Processed,
		"total_amount", result.TotalAmount,
	)
	return result, nil
}

// readError keeps workflow error kinds and classifies anything else as a storage failure
func readError(op string, err error) error {
	switch {
	case errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, workflow.ErrConflict),
		errors.Is(err, workflow.ErrStorage):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, workflow.ErrStorage, err)
	}
}
