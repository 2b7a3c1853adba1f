package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

type contextKey string

const txKey contextKey = "memory-tx"

// Store is an in-process ClaimStore and TransactionManager.
// Claims are stored as private copies and replaced on write, never mutated in place.
type Store struct {
	mu           sync.Mutex
	claims       map[int64]*entity.Claim
	approvals    []*entity.ApprovalRecord
	nextClaimID  int64
	nextRecordID int64
	now          func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		claims: make(map[int64]*entity.Claim),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type snapshot struct {
	claims       map[int64]*entity.Claim
	approvals    int
	nextClaimID  int64
	nextRecordID int64
}

// WithTransaction runs fn with the store locked; any error restores the prior state
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		claims:       make(map[int64]*entity.Claim, len(s.claims)),
		approvals:    len(s.approvals),
		nextClaimID:  s.nextClaimID,
		nextRecordID: s.nextRecordID,
	}
	for id, c := range s.claims {
		snap.claims[id] = c
	}

	restore := func() {
		s.claims = snap.claims
		s.approvals = s.approvals[:snap.approvals]
		s.nextClaimID = snap.nextClaimID
		s.nextRecordID = snap.nextRecordID
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, true)); err != nil {
		restore()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey).(bool)
	return v
}

// lock acquires the store lock unless ctx already holds it through WithTransaction
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrStorage, err)
	}
	if inTx(ctx) {
		return func() {}, nil
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

// Create inserts a claim and sets its ID
func (s *Store) Create(ctx context.Context, claim *entity.Claim) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.now()
	s.nextClaimID++
	claim.ID = s.nextClaimID
	claim.Version = 1
	claim.CreatedAt = now
	claim.UpdatedAt = now
	s.claims[claim.ID] = claim.Clone()
	return nil
}

// Get retrieves a claim by ID
func (s *Store) Get(ctx context.Context, id int64) (*entity.Claim, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: claim %d", workflow.ErrNotFound, id)
	}
	return c.Clone(), nil
}

// CompareAndSwapStatus applies update when status and version still match
func (s *Store) CompareAndSwapStatus(ctx context.Context, update port.StatusUpdate) (*entity.Claim, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, ok := s.claims[update.ClaimID]
	if !ok {
		return nil, fmt.Errorf("%w: claim %d", workflow.ErrNotFound, update.ClaimID)
	}
	if current.Status != update.ExpectedStatus || current.Version != update.ExpectedVersion {
		return nil, fmt.Errorf("%w: claim %d is %q v%d, expected %q v%d", workflow.ErrConflict,
			update.ClaimID, current.Status, current.Version, update.ExpectedStatus, update.ExpectedVersion)
	}

	next := current.Clone()
	next.Status = update.NewStatus
	next.Version++
	next.UpdatedAt = update.UpdatedAt
	if update.Notes != nil {
		next.Notes = *update.Notes
	}
	if update.SubmittedDate != nil {
		next.SubmittedDate = *update.SubmittedDate
	}
	if update.ApprovedDate != nil {
		t := *update.ApprovedDate
		next.ApprovedDate = &t
	}
	if update.ApprovedBy != nil {
		id := *update.ApprovedBy
		next.ApprovedBy = &id
	}

	s.claims[next.ID] = next
	return next.Clone(), nil
}

// UpdateDraft rewrites the editable fields of a claim still in Draft
func (s *Store) UpdateDraft(ctx context.Context, claim *entity.Claim) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	current, ok := s.claims[claim.ID]
	if !ok {
		return fmt.Errorf("%w: claim %d", workflow.ErrNotFound, claim.ID)
	}
	if current.Status != workflow.StatusDraft || current.Version != claim.Version {
		return fmt.Errorf("%w: claim %d is %q v%d", workflow.ErrConflict, claim.ID, current.Status, current.Version)
	}

	next := current.Clone()
	next.ClaimMonth = claim.ClaimMonth
	next.TotalHours = claim.TotalHours
	next.HourlyRate = claim.HourlyRate
	next.Amount = claim.Amount
	next.Notes = claim.Notes
	next.Version++
	next.UpdatedAt = s.now()
	s.claims[next.ID] = next

	claim.Version = next.Version
	claim.UpdatedAt = next.UpdatedAt
	return nil
}

// List returns claims matching filter, newest first
func (s *Store) List(ctx context.Context, filter entity.ClaimFilter) ([]*entity.Claim, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]*entity.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.LecturerID != 0 && c.LecturerID != filter.LecturerID {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*entity.Claim{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListByStatuses returns claims in any of the statuses, oldest submission first
func (s *Store) ListByStatuses(ctx context.Context, statuses []workflow.Status) ([]*entity.Claim, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	want := make(map[workflow.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	out := make([]*entity.Claim, 0)
	for _, c := range s.claims {
		if want[c.Status] {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedDate.Equal(out[j].SubmittedDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedDate.Before(out[j].SubmittedDate)
	})
	return out, nil
}

// StatusTotals returns claim count and amount grouped by status
func (s *Store) StatusTotals(ctx context.Context) ([]entity.StatusTotal, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	byStatus := make(map[workflow.Status]*entity.StatusTotal)
	for _, c := range s.claims {
		t, ok := byStatus[c.Status]
		if !ok {
			t = &entity.StatusTotal{Status: c.Status}
			byStatus[c.Status] = t
		}
		t.Count++
		t.Amount += c.Amount
	}

	out := make([]entity.StatusTotal, 0, len(byStatus))
	for _, st := range workflow.AllStatuses() {
		if t, ok := byStatus[st]; ok {
			t.Amount = utils.RoundCents(t.Amount)
			out = append(out, *t)
		}
	}
	return out, nil
}

// AppendApproval inserts an audit record and sets its ID
func (s *Store) AppendApproval(ctx context.Context, record *entity.ApprovalRecord) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := s.claims[record.ClaimID]; !ok {
		return fmt.Errorf("%w: claim %d", workflow.ErrNotFound, record.ClaimID)
	}

	s.nextRecordID++
	record.ID = s.nextRecordID
	cp := *record
	s.approvals = append(s.approvals, &cp)
	return nil
}

// ApprovalsByClaim returns a claim's audit records in commit order
func (s *Store) ApprovalsByClaim(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]*entity.ApprovalRecord, 0)
	for _, r := range s.approvals {
		if r.ClaimID == claimID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Verify interface compliance
var (
	_ port.ClaimStore         = (*Store)(nil)
	_ port.TransactionManager = (*Store)(nil)
)
