package workflow

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
	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/claim-workflow/internal/domain/workflow"
)

const tracerName = "github.com/garyjia/claim-workflow/internal/application/workflow"

// DefaultStoreTimeout bounds a whole commit when no timeout is configured
const DefaultStoreTimeout = 5 * time.Second

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	store        port.ClaimStore
	txManager    port.TransactionManager
	trail        audit.Trail
	table        domainwf.TransitionTable
	storeTimeout time.Duration
	now          func() time.Time
	tracer       trace.Tracer
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithTable replaces the default claim transition table
func WithTable(table domainwf.TransitionTable) EngineOption {
	return func(e *engineImpl) {
		e.table = table
	}
}

// WithStoreTimeout bounds each commit; zero or negative keeps the default
func WithStoreTimeout(timeout time.Duration) EngineOption {
	return func(e *engineImpl) {
		if timeout > 0 {
			e.storeTimeout = timeout
		}
	}
}

// WithClock overrides the time source used for side effects
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTracer sets the tracer for commit spans
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = tracer
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	store port.ClaimStore,
	txManager port.TransactionManager,
	trail audit.Trail,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		store:        store,
		txManager:    txManager,
		trail:        trail,
		table:        ClaimTable(),
		storeTimeout: DefaultStoreTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		tracer:       otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Table returns the transition table the engine enforces
func (e *engineImpl) Table() domainwf.TransitionTable {
	return e.table
}

// Commit validates req and atomically swaps the status and appends the audit record
func (e *engineImpl) Commit(ctx context.Context, req TransitionRequest) (result *CommitResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Commit", trace.WithAttributes(
		attribute.Int64("claim.id", req.ClaimID),
		attribute.String("workflow.action", req.Action.String()),
		attribute.String("workflow.role", req.ActorRole.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domainwf.KindOf(err)))
		}
		span.End()
	}()

	if req.ClaimID <= 0 {
		return nil, fmt.Errorf("%w: claim id must be positive", domainwf.ErrInvalidArgument)
	}

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	claim, err := e.store.Get(ctx, req.ClaimID)
	if err != nil {
		return nil, storeError("load claim", err)
	}

	if req.ExpectedStatus != "" && req.ExpectedStatus != claim.Status {
		return nil, fmt.Errorf("%w: claim %d is %q, caller expected %q",
			domainwf.ErrConflict, claim.ID, claim.Status, req.ExpectedStatus)
	}

	tr, err := e.table.Lookup(claim.Status, req.ActorRole, req.Action)
	if err != nil {
		return nil, err
	}
	if tr.Effects.Has(domainwf.EffectOwnerOnly) && !claim.OwnedBy(req.ActorID) {
		return nil, fmt.Errorf("%w: only the owner may %s claim %d",
			domainwf.ErrInvalidTransition, req.Action, claim.ID)
	}

	update := e.buildUpdate(claim, tr, req)

	var committed *entity.Claim
	var record *entity.ApprovalRecord
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		committed, err = e.store.CompareAndSwapStatus(txCtx, update)
		if err != nil {
			return storeError("swap status", err)
		}

		record, err = e.trail.Append(txCtx, audit.Entry{
			ClaimID:        claim.ID,
			ApproverID:     req.ActorID,
			ApproverRole:   req.ActorRole,
			Action:         req.Action,
			PreviousStatus: claim.Status,
			NewStatus:      tr.To,
			Notes:          req.Notes,
		})
		if err != nil {
			return storeError("append audit record", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeError("commit transition", err)
	}

	span.SetAttributes(
		attribute.String("workflow.status", committed.Status.String()),
		attribute.Int64("claim.version", committed.Version),
	)

	return &CommitResult{
		Claim:      committed,
		Previous:   claim.Status,
		Transition: tr,
		Record:     record,
	}, nil
}

// buildUpdate derives the compare-and-swap request for a transition.
// Monetary fields are never part of it.
func (e *engineImpl) buildUpdate(claim *entity.Claim, tr domainwf.Transition, req TransitionRequest) port.StatusUpdate {
	now := e.now()
	update := port.StatusUpdate{
		ClaimID:         claim.ID,
		ExpectedStatus:  claim.Status,
		ExpectedVersion: claim.Version,
		NewStatus:       tr.To,
		UpdatedAt:       now,
	}

	if tr.Effects.Has(domainwf.EffectStampSubmission) {
		update.SubmittedDate = &now
	}
	if tr.Effects.Has(domainwf.EffectStampApproval) {
		approver := req.ActorID
		update.ApprovedDate = &now
		update.ApprovedBy = &approver
	}
	if tr.Effects.Has(domainwf.EffectRejectionNote) {
		notes := entity.RejectedNotes(req.Notes)
		update.Notes = &notes
	}

	return update
}

// storeError keeps workflow error kinds intact and classifies anything else as a storage failure
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domainwf.ErrNotFound),
		errors.Is(err, domainwf.ErrConflict),
		errors.Is(err, domainwf.ErrStorage),
		errors.Is(err, domainwf.ErrInvalidTransition):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domainwf.ErrStorage, err)
	}
}
