package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// AuditWorkerConfig holds configuration for the audit worker
type AuditWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	CheckTimeout time.Duration
}

// DefaultAuditWorkerConfig returns default configuration
func DefaultAuditWorkerConfig() AuditWorkerConfig {
	return AuditWorkerConfig{
		PollInterval: time.Minute,
		BatchSize:    50,
		CheckTimeout: 10 * time.Second,
	}
}

// AuditStatus reports what the audit worker has found so far
type AuditStatus struct {
	IsRunning     bool      `json:"is_running"`
	Checked       int       `json:"checked"`
	Inconsistent  []int64   `json:"inconsistent"`
	LastProcessed time.Time `json:"last_processed"`
	LastError     string    `json:"last_error,omitempty"`
}

// AuditWorker walks all claims in batches and replays each audit trail
// against the transition table, flagging claims whose history does not
// lead to their stored status.
type AuditWorker struct {
	config AuditWorkerConfig
	store  port.ClaimStore
	trail  audit.Trail
	table  workflow.TransitionTable
	logger *zap.Logger

	mu            sync.RWMutex
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	offset        int
	checked       int
	inconsistent  map[int64]string
	lastProcessed time.Time
	lastError     error
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(
	config AuditWorkerConfig,
	store port.ClaimStore,
	trail audit.Trail,
	table workflow.TransitionTable,
	logger *zap.Logger,
) *AuditWorker {
	defaults := DefaultAuditWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = defaults.CheckTimeout
	}

	return &AuditWorker{
		config:       config,
		store:        store,
		trail:        trail,
		table:        table,
		logger:       logger,
		inconsistent: make(map[int64]string),
	}
}

// Start begins the worker polling loop
func (w *AuditWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("audit worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("AuditWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop terminates the worker and waits for the current batch
func (w *AuditWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	status := w.Status()
	w.logger.Info("AuditWorker stopped",
		zap.Int("checked", status.Checked),
		zap.Int("inconsistent", len(status.Inconsistent)))
	return nil
}

// Name returns the worker name for identification
func (w *AuditWorker) Name() string {
	return "AuditWorker"
}

func (w *AuditWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Audit sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce checks the next batch of claims, wrapping to the start after the last one
func (w *AuditWorker) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	offset := w.offset
	w.mu.Unlock()

	claims, err := w.store.List(ctx, entity.ClaimFilter{Limit: w.config.BatchSize, Offset: offset})
	if err != nil {
		w.recordError(err)
		return fmt.Errorf("failed to list claims: %w", err)
	}

	for _, claim := range claims {
		if err := w.check(ctx, claim.ID); err != nil {
			w.recordError(err)
			return err
		}
	}

	w.mu.Lock()
	if len(claims) < w.config.BatchSize {
		w.offset = 0
	} else {
		w.offset += len(claims)
	}
	w.lastProcessed = time.Now()
	w.mu.Unlock()
	return nil
}

func (w *AuditWorker) check(ctx context.Context, claimID int64) error {
	checkCtx, cancel := context.WithTimeout(ctx, w.config.CheckTimeout)
	defer cancel()

	claim, records, err := w.trail.Snapshot(checkCtx, claimID)
	if errors.Is(err, workflow.ErrConflict) {
		// Still moving; the next sweep picks it up
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load history of claim %d: %w", claimID, err)
	}

	verifyErr := audit.Verify(w.table, claim, records)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.checked++

	if verifyErr == nil {
		delete(w.inconsistent, claim.ID)
		return nil
	}
	if _, known := w.inconsistent[claim.ID]; !known {
		w.logger.Error("Audit trail does not replay",
			zap.Int64("claim_id", claim.ID),
			zap.String("status", claim.Status.String()),
			zap.Error(verifyErr))
	}
	w.inconsistent[claim.ID] = verifyErr.Error()
	return nil
}

func (w *AuditWorker) recordError(err error) {
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}

// Status returns the worker's findings
func (w *AuditWorker) Status() AuditStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]int64, 0, len(w.inconsistent))
	for id := range w.inconsistent {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	status := AuditStatus{
		IsRunning:     w.isRunning,
		Checked:       w.checked,
		Inconsistent:  ids,
		LastProcessed: w.lastProcessed,
	}
	if w.lastError != nil {
		status.LastError = w.lastError.Error()
	}
	return status
}
