package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	appwf "github.com/garyjia/claim-workflow/internal/application/workflow"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/memory"
)

func createClaim(t *testing.T, store *memory.Store, status workflow.Status) *entity.Claim {
	t.Helper()
	claim := &entity.Claim{
		LecturerID: 7,
		ClaimMonth: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalHours: 10,
		HourlyRate: 200,
		Status:     status,
	}
	claim.CalculateAmount()
	require.NoError(t, store.Create(context.Background(), claim))
	return claim
}

func TestAuditWorker_FlagsClaimsThatDoNotReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	trail := audit.NewTrail(store)
	engine := appwf.NewEngine(store, store, trail)

	good := createClaim(t, store, workflow.StatusSubmitted)
	_, err := engine.Commit(ctx, appwf.TransitionRequest{
		ClaimID: good.ID, Action: workflow.ActionApprove, ActorID: 2, ActorRole: workflow.RoleCoordinator,
	})
	require.NoError(t, err)

	// Approved without any recorded approvals
	forged := createClaim(t, store, workflow.StatusApproved)
	createClaim(t, store, workflow.StatusDraft)

	w := NewAuditWorker(AuditWorkerConfig{BatchSize: 2}, store, trail, engine.Table(), zap.NewNop())

	require.NoError(t, w.RunOnce(ctx))
	require.NoError(t, w.RunOnce(ctx))

	status := w.Status()
	assert.Equal(t, 3, status.Checked)
	assert.Equal(t, []int64{forged.ID}, status.Inconsistent)
	assert.Empty(t, status.LastError)
	assert.False(t, status.LastProcessed.IsZero())
}

// interleavingStore runs beforeApprovals ahead of every approval read
type interleavingStore struct {
	*memory.Store
	beforeApprovals func()
}

func (s *interleavingStore) ApprovalsByClaim(ctx context.Context, claimID int64) ([]*entity.ApprovalRecord, error) {
	if s.beforeApprovals != nil {
		s.beforeApprovals()
	}
	return s.Store.ApprovalsByClaim(ctx, claimID)
}

func TestAuditWorker_DoesNotFlagClaimMovedDuringCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := appwf.NewEngine(store, store, audit.NewTrail(store))
	claim := createClaim(t, store, workflow.StatusSubmitted)

	reads := &interleavingStore{Store: store}
	var once sync.Once
	reads.beforeApprovals = func() {
		once.Do(func() {
			_, err := engine.Commit(ctx, appwf.TransitionRequest{
				ClaimID: claim.ID, Action: workflow.ActionApprove, ActorID: 2, ActorRole: workflow.RoleCoordinator,
			})
			require.NoError(t, err)
		})
	}

	w := NewAuditWorker(AuditWorkerConfig{}, store, audit.NewTrail(reads), engine.Table(), zap.NewNop())
	require.NoError(t, w.RunOnce(ctx))

	status := w.Status()
	assert.Equal(t, 1, status.Checked)
	assert.Empty(t, status.Inconsistent)
	assert.Empty(t, status.LastError)
}

func TestAuditWorker_SkipsClaimThatKeepsMoving(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	claim := createClaim(t, store, workflow.StatusDraft)

	reads := &interleavingStore{Store: store}
	reads.beforeApprovals = func() {
		require.NoError(t, store.UpdateDraft(ctx, claim))
	}

	w := NewAuditWorker(AuditWorkerConfig{}, store, audit.NewTrail(reads), appwf.ClaimTable(), zap.NewNop())
	require.NoError(t, w.RunOnce(ctx))

	status := w.Status()
	assert.Zero(t, status.Checked)
	assert.Empty(t, status.Inconsistent)
}

func TestAuditWorker_StartStop(t *testing.T) {
	store := memory.NewStore()
	trail := audit.NewTrail(store)
	w := NewAuditWorker(AuditWorkerConfig{PollInterval: 5 * time.Millisecond}, store, trail, appwf.ClaimTable(), zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.True(t, w.Status().IsRunning)

	require.Eventually(t, func() bool {
		return !w.Status().LastProcessed.IsZero()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.False(t, w.Status().IsRunning)
	assert.Equal(t, "AuditWorker", w.Name())
}
