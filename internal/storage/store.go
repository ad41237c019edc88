package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StoredStrategy is one persisted strategy artifact.
type StoredStrategy struct {
	ID       string         `json:"id"`
	Code     string         `json:"code"`
	Metadata map[string]any `json:"metadata,omitempty"`
	StoredAt time.Time      `json:"stored_at"`
}

// StrategyStore is the persistence collaborator invoked by callers after the
// pipeline returns a best result. The pipeline itself performs no
// persistence.
type StrategyStore interface {
	Store(ctx context.Context, strategyID, code string, metadata map[string]any) error
	Get(ctx context.Context, strategyID string) (*StoredStrategy, error)
}

// MemoryStore is an in-process StrategyStore.
type MemoryStore struct {
	mu         sync.RWMutex
	strategies map[string]StoredStrategy
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{strategies: make(map[string]StoredStrategy)}
}

// Store saves a strategy, replacing any previous version under the same ID.
func (s *MemoryStore) Store(ctx context.Context, strategyID, code string, metadata map[string]any) error {
	if strategyID == "" {
		return fmt.Errorf("strategy id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[strategyID] = StoredStrategy{
		ID:       strategyID,
		Code:     code,
		Metadata: metadata,
		StoredAt: time.Now().UTC(),
	}
	return nil
}

// Get returns the strategy stored under strategyID.
func (s *MemoryStore) Get(ctx context.Context, strategyID string) (*StoredStrategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("strategy %s not found", strategyID)
	}
	return &stored, nil
}
