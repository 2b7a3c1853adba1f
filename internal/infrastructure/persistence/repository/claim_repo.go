package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

const claimColumns = `
	id, lecturer_id, claim_month, total_hours, hourly_rate, amount, notes,
	status, submitted_date, approved_date, approved_by, version,
	created_at, updated_at`

// ClaimRepository persists claims in sqlite
type ClaimRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqlite.DB, logger *zap.Logger) *ClaimRepository {
	return &ClaimRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a claim and sets its ID
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	query := `
		INSERT INTO claims (
			lecturer_id, claim_month, total_hours, hourly_rate, amount, notes,
			status, submitted_date, approved_date, approved_by, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	now := r.now()
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		claim.LecturerID,
		claim.ClaimMonth.UTC(),
		claim.TotalHours,
		claim.HourlyRate,
		claim.Amount,
		claim.Notes,
		claim.Status,
		nullTime(claim.SubmittedDate),
		nullTimePtr(claim.ApprovedDate),
		nullInt64Ptr(claim.ApprovedBy),
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create claim", zap.Int64("lecturer_id", claim.LecturerID), zap.Error(err))
		return storageError("failed to create claim", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return storageError("failed to get last insert id", err)
	}

	claim.ID = id
	claim.Version = 1
	claim.CreatedAt = now
	claim.UpdatedAt = now
	return nil
}

// Get retrieves a claim by ID
func (r *ClaimRepository) Get(ctx context.Context, id int64) (*entity.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`

	claim, err := scanClaim(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: claim %d", workflow.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.Int64("id", id), zap.Error(err))
		return nil, storageError("failed to get claim", err)
	}
	return claim, nil
}

// CompareAndSwapStatus applies update only while status and version still match
func (r *ClaimRepository) CompareAndSwapStatus(ctx context.Context, update port.StatusUpdate) (*entity.Claim, error) {
	query := `
		UPDATE claims SET
			status = ?,
			version = version + 1,
			updated_at = ?,
			notes = COALESCE(?, notes),
			submitted_date = COALESCE(?, submitted_date),
			approved_date = COALESCE(?, approved_date),
			approved_by = COALESCE(?, approved_by)
		WHERE id = ? AND status = ? AND version = ?
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		update.NewStatus,
		update.UpdatedAt.UTC(),
		nullStringPtr(update.Notes),
		nullTimePtr(update.SubmittedDate),
		nullTimePtr(update.ApprovedDate),
		nullInt64Ptr(update.ApprovedBy),
		update.ClaimID,
		update.ExpectedStatus,
		update.ExpectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update claim status",
			zap.Int64("id", update.ClaimID),
			zap.String("status", update.NewStatus.String()),
			zap.Error(err))
		return nil, storageError("failed to update claim status", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, storageError("failed to read affected rows", err)
	}
	if affected == 0 {
		return nil, r.missedSwap(ctx, exec, update.ClaimID, update.ExpectedStatus, update.ExpectedVersion)
	}

	return r.Get(ctx, update.ClaimID)
}

// missedSwap tells a missing claim apart from one that moved on
func (r *ClaimRepository) missedSwap(ctx context.Context, exec sqlite.Executor, id int64, expected workflow.Status, version int64) error {
	var status workflow.Status
	var current int64
	err := exec.QueryRowContext(ctx, `SELECT status, version FROM claims WHERE id = ?`, id).Scan(&status, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: claim %d", workflow.ErrNotFound, id)
	}
	if err != nil {
		return storageError("failed to check claim", err)
	}
	return fmt.Errorf("%w: claim %d is %q v%d, expected %q v%d",
		workflow.ErrConflict, id, status, current, expected, version)
}

// UpdateDraft rewrites the editable fields of a claim still in Draft
func (r *ClaimRepository) UpdateDraft(ctx context.Context, claim *entity.Claim) error {
	query := `
		UPDATE claims SET
			claim_month = ?, total_hours = ?, hourly_rate = ?, amount = ?, notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND status = ? AND version = ?
	`

	now := r.now()
	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		claim.ClaimMonth.UTC(),
		claim.TotalHours,
		claim.HourlyRate,
		claim.Amount,
		claim.Notes,
		now,
		claim.ID,
		workflow.StatusDraft,
		claim.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update draft", zap.Int64("id", claim.ID), zap.Error(err))
		return storageError("failed to update draft", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return storageError("failed to read affected rows", err)
	}
	if affected == 0 {
		return r.missedSwap(ctx, exec, claim.ID, workflow.StatusDraft, claim.Version)
	}

	claim.Version++
	claim.UpdatedAt = now
	return nil
}

// List returns claims matching filter, newest first
func (r *ClaimRepository) List(ctx context.Context, filter entity.ClaimFilter) ([]*entity.Claim, error) {
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.LecturerID != 0 {
		conds = append(conds, "lecturer_id = ?")
		args = append(args, filter.LecturerID)
	}

	query := `SELECT ` + claimColumns + ` FROM claims`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id DESC`

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	return r.query(ctx, "list claims", query, args...)
}

// ListByStatuses returns claims in any of the statuses, oldest submission first
func (r *ClaimRepository) ListByStatuses(ctx context.Context, statuses []workflow.Status) ([]*entity.Claim, error) {
	if len(statuses) == 0 {
		return []*entity.Claim{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = st
	}

	query := `SELECT ` + claimColumns + ` FROM claims
		WHERE status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY submitted_date ASC, id ASC`

	return r.query(ctx, "list claims by status", query, args...)
}

// StatusTotals returns claim count and amount grouped by status
func (r *ClaimRepository) StatusTotals(ctx context.Context) ([]entity.StatusTotal, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(amount), 0) FROM claims GROUP BY status`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to load status totals", zap.Error(err))
		return nil, storageError("failed to load status totals", err)
	}
	defer rows.Close()

	byStatus := make(map[workflow.Status]entity.StatusTotal)
	for rows.Next() {
		var t entity.StatusTotal
		if err := rows.Scan(&t.Status, &t.Count, &t.Amount); err != nil {
			return nil, storageError("failed to scan status total", err)
		}
		t.Amount = utils.RoundCents(t.Amount)
		byStatus[t.Status] = t
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to read status totals", err)
	}

	out := make([]entity.StatusTotal, 0, len(byStatus))
	for _, st := range workflow.AllStatuses() {
		if t, ok := byStatus[st]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *ClaimRepository) query(ctx context.Context, op, query string, args ...interface{}) ([]*entity.Claim, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, storageError("failed to "+op, err)
	}
	defer rows.Close()

	claims := make([]*entity.Claim, 0)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, storageError("failed to scan claim", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to "+op, err)
	}
	return claims, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(row rowScanner) (*entity.Claim, error) {
	var claim entity.Claim
	var submitted, approved sql.NullTime
	var approvedBy sql.NullInt64

	err := row.Scan(
		&claim.ID,
		&claim.LecturerID,
		&claim.ClaimMonth,
		&claim.TotalHours,
		&claim.HourlyRate,
		&claim.Amount,
		&claim.Notes,
		&claim.Status,
		&submitted,
		&approved,
		&approvedBy,
		&claim.Version,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if submitted.Valid {
		claim.SubmittedDate = submitted.Time
	}
	if approved.Valid {
		t := approved.Time
		claim.ApprovedDate = &t
	}
	if approvedBy.Valid {
		id := approvedBy.Int64
		claim.ApprovedBy = &id
	}
	return &claim, nil
}
