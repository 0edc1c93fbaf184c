package memory

import (
	"context"
	"sync"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// SecurityEventStore is an append-only in-process event log
type SecurityEventStore struct {
	mu     sync.RWMutex
	events []models.SecurityEvent
}

// NewSecurityEventStore creates a new SecurityEventStore
func NewSecurityEventStore() *SecurityEventStore {
	return &SecurityEventStore{}
}

func (s *SecurityEventStore) Append(_ context.Context, ev *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *ev)
	return nil
}

// List returns matching events newest first
func (s *SecurityEventStore) List(_ context.Context, q models.EventQuery) ([]*models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SecurityEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		ev := s.events[i]
		if ev.Timestamp.Before(q.From) || !ev.Timestamp.Before(q.To) {
			continue
		}
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}
