package indexer

import (
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// repoLocks hands out one IndexLock per repository path
type repoLocks struct {
	locks sync.Map // string -> *IndexLock
}

func (r *repoLocks) get(repo string) *IndexLock {
	l, _ := r.locks.LoadOrStore(repo, &IndexLock{})
	return l.(*IndexLock)
}

// tryAcquire locks repo and returns its release function, or false if a run
// already holds it
func (r *repoLocks) tryAcquire(repo string) (func(), bool) {
	l := r.get(repo)
	if !l.TryAcquire() {
		return nil, false
	}
	return l.Release, true
}
