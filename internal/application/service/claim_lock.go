package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// claimLocks hands out one exclusive lock per claim ID. Entries are removed
// when the last holder or waiter releases, so the map only holds active claims.
type claimLocks struct {
	mu    sync.Mutex
	locks map[int64]*claimLock
}

type claimLock struct {
	sem  chan struct{}
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[int64]*claimLock)}
}

// Acquire blocks until the claim's lock is held or ctx ends
func (l *claimLocks) Acquire(ctx context.Context, claimID int64) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[claimID]
	if !ok {
		lock = &claimLock{sem: make(chan struct{}, 1)}
		l.locks[claimID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.sem
				l.unref(claimID, lock)
			})
		}, nil
	case <-ctx.Done():
		l.unref(claimID, lock)
		return nil, fmt.Errorf("%w: waiting for claim %d: %v", workflow.ErrStorage, claimID, ctx.Err())
	}
}

func (l *claimLocks) unref(claimID int64, lock *claimLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, claimID)
	}
}

// size returns the number of claims currently locked or awaited
func (l *claimLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
