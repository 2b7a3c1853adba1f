package port

import (
	"context"
	"time"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// StatusUpdate is a compare-and-swap request against a claim's status.
// The swap applies only when the stored status and version still match.
type StatusUpdate struct {
	ClaimID         int64
	ExpectedStatus  workflow.Status
	ExpectedVersion int64
	NewStatus       workflow.Status
	UpdatedAt       time.Time

	// Optional side effects; nil leaves the stored value untouched
	Notes         *string
	SubmittedDate *time.Time
	ApprovedDate  *time.Time
	ApprovedBy    *int64
}

// ClaimStore defines persistence operations for claims and their approval trail.
// Implementations return workflow.ErrNotFound, workflow.ErrConflict or
// workflow.ErrStorage in the error chain.
type ClaimStore interface {
	// Create inserts a claim and sets its ID
	Create(ctx context.Context, claim *entity.Claim) error

	// Get retrieves a claim by ID
	Get(ctx context.Context, id int64) (*entity.Claim, error)

	// CompareAndSwapStatus applies update and returns the stored claim after the swap
	CompareAndSwapStatus(ctx context.Context, update StatusUpdate) (*entity.Claim, error)

	// UpdateDraft rewrites the editable fields of a claim still in Draft
	UpdateDraft(ctx context.Context, claim *entity.Claim) error

	// List returns claims matching filter, newest first
	List(ctx context.Context, filter entity.ClaimFilter) ([]*entity.Claim, error)

	// ListByStatuses returns claims in any of the statuses, oldest submission first
	ListByStatuses(ctx context.Context, statuses []workflow.Status) ([]*entity.Claim, error)

	// StatusTotals returns claim count and amount grouped by status
	StatusTotals(ctx context.Context) ([]entity.StatusTotal, error)

	// AppendApproval inserts an audit record and sets its ID
	AppendApproval(ctx context.Context, record *entity.ApprovalRecord) error

	// ApprovalsByClaim returns a claim's audit records in commit order
	ApprovalsByClaim(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
