package memory

import (
	"context"
	"sync"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// AttemptStore is an append-only in-process attempt log
type AttemptStore struct {
	mu      sync.RWMutex
	records []models.AttemptRecord
}

// NewAttemptStore creates a new AttemptStore
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

// Append stores a copy of rec
func (s *AttemptStore) Append(_ context.Context, rec *models.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, *rec)
	return nil
}

// List returns matching records newest first, capped at q.Limit
func (s *AttemptStore) List(_ context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AttemptRecord, 0)
	// Records are appended in time order; walk backwards for newest first
	for i := len(s.records) - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		rec := s.records[i]
		if matchesAttempt(&rec, q) {
			out = append(out, &rec)
		}
	}
	return out, nil
}

// Totals counts matching records by outcome
func (s *AttemptStore) Totals(_ context.Context, q models.AttemptQuery) (models.AttemptTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t models.AttemptTotals
	for i := range s.records {
		rec := &s.records[i]
		if !matchesAttempt(rec, q) {
			continue
		}
		t.Total++
		switch rec.Outcome {
		case models.OutcomeAllowed:
			t.Allowed++
		case models.OutcomeFlagged:
			t.Flagged++
		case models.OutcomeDenied:
			t.Denied++
		}
	}
	return t, nil
}

func matchesAttempt(rec *models.AttemptRecord, q models.AttemptQuery) bool {
	if rec.Timestamp.Before(q.From) || !rec.Timestamp.Before(q.To) {
		return false
	}
	return q.SourceIP == "" || rec.SourceIP == q.SourceIP
}
