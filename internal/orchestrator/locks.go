package orchestrator

import (
	"sync"
	"time"
)

// userLocks serializes all work for one user. The lock is held for the whole
// request, including mutation commits; it is the correctness guarantee for
// the pending-action invariants.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// Acquire blocks until the user's lock is held and returns the release func.
func (l *userLocks) Acquire(userID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &userLock{}
		l.locks[userID] = lock
	}
	lock.lastUsed = time.Now()
	l.mu.Unlock()

	lock.mu.Lock()
	return lock.mu.Unlock
}

// Sweep drops locks idle longer than maxIdle. A held lock is never dropped:
// TryLock guards against freeing a lock mid-request.
func (l *userLocks) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for userID, lock := range l.locks {
		if lock.lastUsed.After(cutoff) {
			continue
		}
		if !lock.mu.TryLock() {
			continue
		}
		lock.mu.Unlock()
		delete(l.locks, userID)
		removed++
	}
	return removed
}

// Len reports the number of tracked user locks.
func (l *userLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
