package audit

import (
	"fmt"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// initialStatuses are the statuses a claim may be created in
var initialStatuses = map[workflow.Status]bool{
	workflow.StatusDraft:     true,
	workflow.StatusSubmitted: true,
}

// Replay walks records from initial and returns the status they lead to.
// Every record must start where the previous one ended, follow a table edge
// for its role and action, and carry the outcome that action produces.
func Replay(table workflow.TransitionTable, initial workflow.Status, records []*entity.ApprovalRecord) (workflow.Status, error) {
	if !initialStatuses[initial] {
		return "", fmt.Errorf("%w: claim cannot start in %q", ErrReplayMismatch, initial)
	}

	current := initial
	for i, rec := range records {
		if rec.PreviousStatus != current {
			return current, fmt.Errorf("%w: record %d starts at %q, trail is at %q",
				ErrReplayMismatch, i, rec.PreviousStatus, current)
		}

		tr, err := table.Lookup(current, rec.ApproverRole, rec.Action)
		if err != nil {
			return current, fmt.Errorf("%w: record %d: %v", ErrReplayMismatch, i, err)
		}
		if tr.To != rec.NewStatus {
			return current, fmt.Errorf("%w: record %d ends at %q, table says %q",
				ErrReplayMismatch, i, rec.NewStatus, tr.To)
		}
		if want := entity.OutcomeFor(rec.Action); rec.Outcome != want {
			return current, fmt.Errorf("%w: record %d has outcome %q, want %q",
				ErrReplayMismatch, i, rec.Outcome, want)
		}

		current = tr.To
	}

	return current, nil
}

// Verify replays a claim's trail and checks it ends at the claim's current status
func Verify(table workflow.TransitionTable, claim *entity.Claim, records []*entity.ApprovalRecord) error {
	initial := claim.Status
	if len(records) > 0 {
		initial = records[0].PreviousStatus
	}

	final, err := Replay(table, initial, records)
	if err != nil {
		return err
	}
	if final != claim.Status {
		return fmt.Errorf("%w: trail ends at %q, claim is %q", ErrReplayMismatch, final, claim.Status)
	}
	return nil
}
