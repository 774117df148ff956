package store

import (
	"errors"
	"sync"
	"time"

	"github.com/apalacios/aemet-opendata/internal/weather"
)

var (
	// ErrNotFound is returned when no snapshot is available for a key.
	ErrNotFound = errors.New("no snapshots for location")
)

// snapshotHistory holds a time-ordered list of snapshots for one key.
type snapshotHistory struct {
	snapshots []weather.Snapshot
}

// MemoryStore is a concurrency-safe in-memory snapshot history keyed by
// resolved location.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]*snapshotHistory

	maxHistory int           // max snapshots per key, <= 0 means unlimited
	maxAge     time.Duration // max snapshot age, 0 means unlimited
}

// NewMemoryStore creates a MemoryStore with optional retention limits.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*snapshotHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveSnapshot appends a snapshot under a key and enforces retention.
func (s *MemoryStore) SaveSnapshot(key string, snapshot weather.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[key]
	if !ok {
		history = &snapshotHistory{}
		s.data[key] = history
	}

	history.snapshots = append(history.snapshots, snapshot)

	if s.maxHistory > 0 && len(history.snapshots) > s.maxHistory {
		over := len(history.snapshots) - s.maxHistory
		history.snapshots = history.snapshots[over:]
	}

	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.snapshots); i++ {
			if !history.snapshots[i].RetrievedAt.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.snapshots) {
			history.snapshots = history.snapshots[i:]
		}
	}
}

// GetLatest returns the most recent snapshot for a key.
func (s *MemoryStore) GetLatest(key string) (weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.snapshots) == 0 {
		return weather.Snapshot{}, ErrNotFound
	}
	return history.snapshots[len(history.snapshots)-1], nil
}

// GetRange returns all snapshots for a key retrieved between from and to,
// inclusive.
func (s *MemoryStore) GetRange(key string, from, to time.Time) ([]weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.snapshots) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.Snapshot
	for _, snap := range history.snapshots {
		if !snap.RetrievedAt.Before(from) && !snap.RetrievedAt.After(to) {
			result = append(result, snap)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}
