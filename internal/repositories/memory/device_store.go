package memory

import (
	"context"
	"sync"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

type DeviceStore struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]models.Device
	byKey   map[uuid.UUID]uuid.UUID
}

// NewDeviceStore creates a new DeviceStore
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		devices: make(map[uuid.UUID]models.Device),
		byKey:   make(map[uuid.UUID]uuid.UUID),
	}
}

// Create rejects a second device for the same registration key with
// models.ErrConflict, mirroring the unique constraint in Postgres.
func (s *DeviceStore) Create(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.devices[d.ID]; exists {
		return models.ErrConflict
	}
	if _, exists := s.byKey[d.RegistrationKeyID]; exists {
		return models.ErrConflict
	}

	stored := *d
	stored.HardwareIDs = append([]string(nil), d.HardwareIDs...)
	s.devices[d.ID] = stored
	s.byKey[d.RegistrationKeyID] = d.ID
	return nil
}

// GetByID returns models.ErrNotFound for unknown ids
func (s *DeviceStore) GetByID(_ context.Context, id uuid.UUID) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &d, nil
}

func (s *DeviceStore) CountByStatus(_ context.Context) (map[models.DeviceStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.DeviceStatus]int64)
	for _, d := range s.devices {
		counts[d.Status]++
	}
	return counts, nil
}
