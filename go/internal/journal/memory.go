package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the journal in process.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[uuid.UUID]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: make(map[uuid.UUID]*Entry)}
}

func (s *MemoryStore) Begin(_ context.Context, sessionID uuid.UUID, identity string, score int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[sessionID]; exists {
		return false, nil
	}
	now := s.now()
	s.entries[sessionID] = &Entry{
		SessionID: sessionID,
		Identity:  identity,
		Score:     score,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (s *MemoryStore) Complete(_ context.Context, sessionID uuid.UUID, status Status, signature string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	e.Status = status
	e.Signature = signature
	e.Result = result
	e.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) Pending(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Status == StatusPending {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID uuid.UUID) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	out := *e
	return &out, nil
}
