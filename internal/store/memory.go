package store

import (
	"context"
	"sync"
	"time"

	"heartstage/internal/model"
)

// MemoryStore is an in-process SnapshotStore used by tests and by local
// development without a database. Latency and failure injection mimic a
// remote blob store.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots []model.Envelope

	// Latency is applied to every call before anything else happens.
	Latency time.Duration

	// FailSaves / FailLoads make the next N calls return an error.
	FailSaves int
	FailLoads int

	saveCount int
	loadCount int
}

type memoryErr string

func (e memoryErr) Error() string { return string(e) }

// ErrInjected is returned by MemoryStore when failure injection is armed
const ErrInjected = memoryErr("injected store error")

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemoryStore) Save(ctx context.Context, env model.Envelope) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCount++
	if s.FailSaves > 0 {
		s.FailSaves--
		return ErrInjected
	}
	s.snapshots = append(s.snapshots, env.Clone())
	return nil
}

func (s *MemoryStore) LoadLatest(ctx context.Context) (model.Envelope, error) {
	if err := s.wait(ctx); err != nil {
		return model.Envelope{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadCount++
	if s.FailLoads > 0 {
		s.FailLoads--
		return model.Envelope{}, ErrInjected
	}
	if len(s.snapshots) == 0 {
		return model.Envelope{}, ErrNotFound
	}
	return s.snapshots[len(s.snapshots)-1].Clone(), nil
}

// SaveCount reports how many saves were attempted, failures included
func (s *MemoryStore) SaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCount
}

// LoadCount reports how many loads were attempted, failures included
func (s *MemoryStore) LoadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCount
}

// Versions returns the saved versions in write order
func (s *MemoryStore) Versions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.snapshots))
	for i, env := range s.snapshots {
		out[i] = env.SavedVersion
	}
	return out
}
