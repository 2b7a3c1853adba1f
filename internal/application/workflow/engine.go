package workflow

import (
	"context"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// TransitionRequest asks the engine to move a claim along one edge
type TransitionRequest struct {
	ClaimID        int64
	Action         domainwf.Action
	ActorID        int64
	ActorRole      domainwf.Role
	ExpectedStatus domainwf.Status // empty skips the precondition
	Notes          string
}

// CommitResult describes a committed transition
type CommitResult struct {
	Claim      *entity.Claim
	Previous   domainwf.Status
	Transition domainwf.Transition
	Record     *entity.ApprovalRecord
}

// WorkflowEngine validates transitions against the table and commits them
type WorkflowEngine interface {
	// Commit validates req and atomically swaps the status and appends the audit record
	Commit(ctx context.Context, req TransitionRequest) (*CommitResult, error)

	// Table returns the transition table the engine enforces
	Table() domainwf.TransitionTable
}
