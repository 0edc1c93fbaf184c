package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

type RegistrationKeyStore struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.RegistrationKey
	byHash map[string]uuid.UUID
}

// NewRegistrationKeyStore creates a new RegistrationKeyStore
func NewRegistrationKeyStore() *RegistrationKeyStore {
	return &RegistrationKeyStore{
		byID:   make(map[uuid.UUID]*models.RegistrationKey),
		byHash: make(map[string]uuid.UUID),
	}
}

func (s *RegistrationKeyStore) Create(_ context.Context, key *models.RegistrationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[key.ID]; exists {
		return models.ErrConflict
	}
	if _, exists := s.byHash[key.KeyHash]; exists {
		return models.ErrConflict
	}

	stored := *key
	s.byID[key.ID] = &stored
	s.byHash[key.KeyHash] = key.ID
	return nil
}

// GetByHash returns a copy of the key with the given hash
func (s *RegistrationKeyStore) GetByHash(_ context.Context, keyHash string) (*models.RegistrationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[keyHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	key := *s.byID[id]
	return &key, nil
}

// Claim flips Used under the store mutex; only the first caller succeeds.
func (s *RegistrationKeyStore) Claim(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	if key.Used {
		return models.ErrKeyAlreadyUsed
	}

	key.Used = true
	at := usedAt
	key.UsedAt = &at
	return nil
}
