package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/sqlite"
)

// Store combines the claim and approval repositories into one ClaimStore
type Store struct {
	*ClaimRepository
	*ApprovalRepository
}

// NewStore creates a sqlite-backed ClaimStore
func NewStore(db *sqlite.DB, logger *zap.Logger) *Store {
	return &Store{
		ClaimRepository:    NewClaimRepository(db, logger),
		ApprovalRepository: NewApprovalRepository(db, logger),
	}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, workflow.ErrStorage, err)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt64Ptr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullStringPtr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

// Verify interface compliance
var _ port.ClaimStore = (*Store)(nil)
