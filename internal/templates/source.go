package templates

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no template exists under the requested ID.
// Callers treat it as a soft miss: generation proceeds without augmentation.
var ErrNotFound = errors.New("template not found")

// Source provides prompt templates used to seed strategy generation.
type Source interface {
	GetTemplate(ctx context.Context, id string) (string, error)
}

// MemorySource is an in-process template source.
type MemorySource struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewMemorySource creates an empty in-memory template source.
func NewMemorySource() *MemorySource {
	return &MemorySource{templates: make(map[string]string)}
}

// Put stores a template under id, replacing any previous value.
func (s *MemorySource) Put(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[id] = text
}

// GetTemplate returns the template stored under id or ErrNotFound.
func (s *MemorySource) GetTemplate(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.templates[id]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}
