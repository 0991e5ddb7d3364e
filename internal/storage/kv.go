// internal/storage/kv.go
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrKeyNotFound is returned for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// KVStore is a byte-value store with per-key expiry.
type KVStore interface {
	// Set stores value under key; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryKV is an in-process KVStore. Expired keys are invisible to reads
// and removed by the sweeper.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryKV starts a store that sweeps expired keys every interval.
// A non-positive interval disables the sweeper.
func NewMemoryKV(interval time.Duration) *MemoryKV {
	m := &MemoryKV{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go m.sweepLoop(interval)
	}
	return m
}

func (m *MemoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || m.expired(item) {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k, item := range m.items {
		if strings.HasPrefix(k, prefix) && !m.expired(item) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Sweep removes expired keys and returns how many were dropped.
func (m *MemoryKV) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, item := range m.items {
		if m.expired(item) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored keys, expired or not.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryKV) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryKV) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt)
}

func (m *MemoryKV) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
