package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/notification"
	appwf "github.com/garyjia/claim-workflow/internal/application/workflow"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/memory"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) hasError(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e == msg {
			return true
		}
	}
	return false
}

// mockDispatcher is a func-field notification.Dispatcher
type mockDispatcher struct {
	mu          sync.Mutex
	enqueued    []event.Envelope
	enqueueFunc func(claimID int64, envelopes []event.Envelope) error
}

func (m *mockDispatcher) Enqueue(claimID int64, envelopes []event.Envelope) error {
	m.mu.Lock()
	m.enqueued = append(m.enqueued, envelopes...)
	m.mu.Unlock()
	if m.enqueueFunc != nil {
		return m.enqueueFunc(claimID, envelopes)
	}
	return nil
}

func (m *mockDispatcher) Start(ctx context.Context) error   { return nil }
func (m *mockDispatcher) Stop() error                       { return nil }
func (m *mockDispatcher) Name() string                      { return "mock-dispatcher" }
func (m *mockDispatcher) Stats() notification.DispatchStats { return notification.DispatchStats{} }

func (m *mockDispatcher) Envelopes() []event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Envelope(nil), m.enqueued...)
}

// recordingSubscriber keeps every event it receives
type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSubscriber) Events() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event(nil), r.events...)
}

type harness struct {
	store    *memory.Store
	logger   *mockLogger
	workflow WorkflowService
	claims   ClaimService
}

func newHarness(t *testing.T, dispatcher notification.Dispatcher) *harness {
	t.Helper()
	store := memory.NewStore()
	trail := audit.NewTrail(store)
	engine := appwf.NewEngine(store, store, trail)
	logger := &mockLogger{}

	opts := []Option{}
	if dispatcher != nil {
		opts = append(opts, WithDispatcher(dispatcher))
	}
	wf := NewWorkflowService(engine, store, trail, logger, opts...)

	return &harness{
		store:    store,
		logger:   logger,
		workflow: wf,
		claims:   NewClaimService(store, wf, logger),
	}
}

func (h *harness) submitClaim(t *testing.T, lecturerID int64, hours, rate float64) *entity.Claim {
	t.Helper()
	claim, err := h.claims.Create(context.Background(), CreateClaimInput{
		LecturerID: lecturerID,
		ClaimMonth: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		TotalHours: hours,
		HourlyRate: rate,
		Submit:     true,
	})
	require.NoError(t, err)
	return claim
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
