// internal/services/lock_manager.go
package services

import (
	"context"
	"sync"
	"time"
)

// LockManager hands out one RWMutex per lesson.
type LockManager struct {
	lessonLocks map[string]*LockInfo
	globalLock  sync.Mutex
	lockTTL     time.Duration
	maxLocks    int
}

// LockInfo wraps a lesson lock with usage bookkeeping.
type LockInfo struct {
	Mutex          *sync.RWMutex
	LastUsed       time.Time
	ReferenceCount int32 // callers currently holding or waiting on Mutex
}

// NewLockManager creates a lock manager. Call StartCleanup to evict idle locks.
func NewLockManager() *LockManager {
	return &LockManager{
		lessonLocks: make(map[string]*LockInfo),
		lockTTL:     30 * time.Minute,
		maxLocks:    200,
	}
}

// acquire returns the lesson's lock info with its reference count bumped.
func (lm *LockManager) acquire(lessonID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, ok := lm.lessonLocks[lessonID]
	if !ok {
		info = &LockInfo{Mutex: &sync.RWMutex{}}
		lm.lessonLocks[lessonID] = info
	}
	info.LastUsed = time.Now()
	info.ReferenceCount++
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	info.ReferenceCount--
	info.LastUsed = time.Now()
	lm.globalLock.Unlock()
}

// WithLessonLock runs fn while holding the lesson's write lock.
func (lm *LockManager) WithLessonLock(lessonID string, fn func() error) error {
	info := lm.acquire(lessonID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// WithLessonReadLock runs fn while holding the lesson's read lock.
func (lm *LockManager) WithLessonReadLock(lessonID string, fn func() error) error {
	info := lm.acquire(lessonID)
	defer lm.release(info)

	info.Mutex.RLock()
	defer info.Mutex.RUnlock()
	return fn()
}

// StartCleanup evicts idle locks every interval until ctx is done.
func (lm *LockManager) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

// cleanupUnusedLocks drops unreferenced locks idle for longer than the TTL,
// but only once the table has grown past maxLocks.
func (lm *LockManager) cleanupUnusedLocks(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if len(lm.lessonLocks) <= lm.maxLocks {
		return 0
	}
	removed := 0
	for id, info := range lm.lessonLocks {
		if info.ReferenceCount == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.lessonLocks, id)
			removed++
		}
	}
	return removed
}

// Len reports how many lesson locks are tracked.
func (lm *LockManager) Len() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.lessonLocks)
}
