// Package pricecache keeps the always-available view of the latest market snapshots.
package pricecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"market_pulse_backend/models"
)

// ErrMiss is returned by a Store when the key is absent or expired
var ErrMiss = errors.New("cache miss")

// Store is a key/value store with per-entry TTL
type Store interface {
	Set(ctx context.Context, key string, snapshot models.Snapshot, ttl time.Duration) error
	Get(ctx context.Context, key string) (models.Snapshot, error)
}

type memoryEntry struct {
	snapshot  models.Snapshot
	expiresAt time.Time
}

// MemoryStore is an in-process Store. Entries are replaced whole, never
// mutated, so readers holding an old snapshot are unaffected by a write.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Set(ctx context.Context, key string, snapshot models.Snapshot, ttl time.Duration) error {
	assets := make([]models.CachedAsset, len(snapshot.Assets))
	copy(assets, snapshot.Assets)
	snapshot.Assets = assets

	entry := &memoryEntry{snapshot: snapshot}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (models.Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return models.Snapshot{}, ErrMiss
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return models.Snapshot{}, ErrMiss
	}
	return entry.snapshot, nil
}
