package store

import (
	"context"
	"sync"
	"time"

	"github.com/amica-legal/amica/internal/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
// Safe for concurrent use.
type MemoryStore struct {
	mu           sync.RWMutex
	mappings     map[string]domain.CustomerMapping
	entitlements map[string]domain.EntitlementRecord
	events       map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings:     make(map[string]domain.CustomerMapping),
		entitlements: make(map[string]domain.EntitlementRecord),
		events:       make(map[string]string),
	}
}

func (s *MemoryStore) GetCustomerMapping(_ context.Context, userID string) (*domain.CustomerMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) PutCustomerMapping(_ context.Context, m domain.CustomerMapping) (*domain.CustomerMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.mappings[m.UserID]; ok {
		return &existing, nil
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mappings[m.UserID] = m
	return &m, nil
}

func (s *MemoryStore) GetEntitlement(_ context.Context, userID string) (*domain.EntitlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entitlements[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ApplyEntitlement(_ context.Context, rec domain.EntitlementRecord, eventTime time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTime = eventTime.UTC()
	if existing, ok := s.entitlements[rec.UserID]; ok {
		if existing.LastReconciledAt != nil && existing.LastReconciledAt.After(eventTime) {
			return false, nil
		}
	}

	rec.LastReconciledAt = &eventTime
	rec.UpdatedAt = time.Now().UTC()
	s.entitlements[rec.UserID] = rec
	return true, nil
}

func (s *MemoryStore) SeenEvent(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.events[eventID]
	return ok, nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, eventID, eventType string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		s.events[eventID] = eventType
	}
	return nil
}
