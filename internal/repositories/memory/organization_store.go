package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/BradenHooton/enrollguard/internal/models"
)

type OrganizationStore struct {
	mu     sync.RWMutex
	byCode map[string]models.Organization
}

// NewOrganizationStore creates a new OrganizationStore
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{byCode: make(map[string]models.Organization)}
}

func (s *OrganizationStore) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.TrimSpace(org.Code)
	if code == "" {
		return models.ErrBadRequest
	}
	if _, exists := s.byCode[code]; exists {
		return models.ErrConflict
	}
	s.byCode[code] = *org
	return nil
}

// GetByCode returns models.ErrNotFound for unknown codes
func (s *OrganizationStore) GetByCode(_ context.Context, code string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.byCode[strings.TrimSpace(code)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &org, nil
}
