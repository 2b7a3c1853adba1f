package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// ErrReplayMismatch is returned when an audit trail does not replay through the transition table
var ErrReplayMismatch = errors.New("audit trail does not replay")

// Entry describes one committed transition to be recorded
type Entry struct {
	ClaimID        int64
	ApproverID     int64
	ApproverRole   workflow.Role
	Action         workflow.Action
	PreviousStatus workflow.Status
	NewStatus      workflow.Status
	Notes          string
}

// Trail records and reads back the approval history of claims
type Trail interface {
	// Append records a transition. Must be called inside the committing transaction.
	Append(ctx context.Context, entry Entry) (*entity.ApprovalRecord, error)

	// History returns a claim's records in commit order
	History(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error)

	// Snapshot returns a claim and its records as of the same committed version
	Snapshot(ctx context.Context, claimID int64) (*entity.Claim, []*entity.ApprovalRecord, error)
}

// maxSnapshotAttempts bounds the re-reads of a claim that keeps moving
const maxSnapshotAttempts = 5

type trailImpl struct {
	store port.ClaimStore
	now   func() time.Time
}

// Option configures the trail
type Option func(*trailImpl)

// WithClock overrides the record timestamp source
func WithClock(now func() time.Time) Option {
	return func(t *trailImpl) {
		t.now = now
	}
}

// NewTrail creates an audit trail backed by the claim store
func NewTrail(store port.ClaimStore, opts ...Option) Trail {
	t := &trailImpl{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append records a transition
func (t *trailImpl) Append(ctx context.Context, entry Entry) (*entity.ApprovalRecord, error) {
	record := &entity.ApprovalRecord{
		ClaimID:        entry.ClaimID,
		ApproverID:     entry.ApproverID,
		ApproverRole:   entry.ApproverRole,
		Action:         entry.Action,
		Outcome:        entity.OutcomeFor(entry.Action),
		PreviousStatus: entry.PreviousStatus,
		NewStatus:      entry.NewStatus,
		Notes:          entry.Notes,
		Timestamp:      t.now(),
	}

	if err := t.store.AppendApproval(ctx, record); err != nil {
		return nil, fmt.Errorf("append approval record: %w", err)
	}
	return record, nil
}

// History returns a claim's records in commit order
func (t *trailImpl) History(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error) {
	records, err := t.store.ApprovalsByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load approval records: %w", err)
	}
	return records, nil
}

// Snapshot reads the claim, its records, then the claim again. A version
// change between the two claim reads means a transition committed in
// between, so the pair is read again.
func (t *trailImpl) Snapshot(ctx context.Context, claimID int64) (*entity.Claim, []*entity.ApprovalRecord, error) {
	claim, err := t.store.Get(ctx, claimID)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < maxSnapshotAttempts; attempt++ {
		records, err := t.History(ctx, claimID)
		if err != nil {
			return nil, nil, err
		}

		after, err := t.store.Get(ctx, claimID)
		if err != nil {
			return nil, nil, err
		}
		if after.Version == claim.Version {
			return after, records, nil
		}
		claim = after
	}

	return nil, nil, fmt.Errorf("%w: claim %d kept changing while its trail was read", workflow.ErrConflict, claimID)
}
