package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository persists the append-only approval trail
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) *ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// AppendApproval inserts an audit record and sets its ID
func (r *ApprovalRepository) AppendApproval(ctx context.Context, record *entity.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (
			claim_id, approver_id, approver_role, action, outcome,
			previous_status, new_status, notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		record.ClaimID,
		record.ApproverID,
		record.ApproverRole,
		record.Action,
		record.Outcome,
		record.PreviousStatus,
		record.NewStatus,
		record.Notes,
		record.Timestamp.UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("%w: claim %d", workflow.ErrNotFound, record.ClaimID)
		}
		r.logger.Error("Failed to append approval record", zap.Int64("claim_id", record.ClaimID), zap.Error(err))
		return storageError("failed to append approval record", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageError("failed to get last insert id", err)
	}

	record.ID = id
	return nil
}

// ApprovalsByClaim returns a claim's audit records in commit order
func (r *ApprovalRepository) ApprovalsByClaim(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error) {
	query := `
		SELECT id, claim_id, approver_id, approver_role, action, outcome,
			previous_status, new_status, notes, timestamp
		FROM approval_records
		WHERE claim_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, claimID)
	if err != nil {
		r.logger.Error("Failed to load approval records", zap.Int64("claim_id", claimID), zap.Error(err))
		return nil, storageError("failed to load approval records", err)
	}
	defer rows.Close()

	records := make([]*entity.ApprovalRecord, 0)
	for rows.Next() {
		var record entity.ApprovalRecord
		err := rows.Scan(
			&record.ID,
			&record.ClaimID,
			&record.ApproverID,
			&record.ApproverRole,
			&record.Action,
			&record.Outcome,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Notes,
			&record.Timestamp,
		)
		if err != nil {
			return nil, storageError("failed to scan approval record", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("failed to load approval records", err)
	}
	return records, nil
}
