package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// IPProfileStore keeps per-IP admission state in process. Update holds a
// per-IP lock for the whole read-modify-write, and fn works on a copy that
// is only published when fn succeeds.
type IPProfileStore struct {
	locks *KeyedMutex

	mu       sync.RWMutex
	profiles map[string]*models.IPProfile
}

// NewIPProfileStore creates a new IPProfileStore
func NewIPProfileStore() *IPProfileStore {
	return &IPProfileStore{
		locks:    NewKeyedMutex(),
		profiles: make(map[string]*models.IPProfile),
	}
}

// Update runs fn under the per-IP lock, creating the profile if needed.
func (s *IPProfileStore) Update(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	return s.update(ctx, ip, true, fn)
}

// UpdateExisting returns models.ErrNotFound when ip has no profile.
func (s *IPProfileStore) UpdateExisting(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	return s.update(ctx, ip, false, fn)
}

func (s *IPProfileStore) update(ctx context.Context, ip string, create bool, fn func(ctx context.Context, p *models.IPProfile) error) error {
	unlock, err := s.locks.Lock(ctx, ip)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	current, ok := s.profiles[ip]
	s.mu.RUnlock()

	var working *models.IPProfile
	switch {
	case ok:
		working = current.Clone()
	case create:
		working = models.NewIPProfile(ip)
	default:
		return models.ErrNotFound
	}

	if err := fn(ctx, working); err != nil {
		return err
	}

	s.mu.Lock()
	s.profiles[ip] = working
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored profile
func (s *IPProfileStore) Get(_ context.Context, ip string) (*models.IPProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[ip]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p.Clone(), nil
}

// ListBlocked returns profiles still blocked at now, soonest expiry first
func (s *IPProfileStore) ListBlocked(_ context.Context, now time.Time) ([]*models.IPProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.IPProfile, 0)
	for _, p := range s.profiles {
		if p.IsBlocked(now) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BlockedUntil.Before(*out[j].BlockedUntil)
	})
	return out, nil
}

func (s *IPProfileStore) CountBlocked(_ context.Context, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, p := range s.profiles {
		if p.IsBlocked(now) {
			n++
		}
	}
	return n, nil
}

// SweepIdle removes profiles idle since before cutoff and not blocked at
// now. Profiles held by an in-flight Update are skipped.
func (s *IPProfileStore) SweepIdle(_ context.Context, cutoff, now time.Time) (int64, error) {
	s.mu.RLock()
	candidates := make([]string, 0)
	for ip, p := range s.profiles {
		if sweepable(p, cutoff, now) {
			candidates = append(candidates, ip)
		}
	}
	s.mu.RUnlock()

	var removed int64
	for _, ip := range candidates {
		unlock, ok := s.locks.TryLock(ip)
		if !ok {
			continue
		}

		s.mu.Lock()
		// Re-check under the lock, an update may have landed since the scan
		if p, exists := s.profiles[ip]; exists && sweepable(p, cutoff, now) {
			delete(s.profiles, ip)
			removed++
		}
		s.mu.Unlock()
		unlock()
	}
	return removed, nil
}

// Len returns the number of stored profiles
func (s *IPProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

func sweepable(p *models.IPProfile, cutoff, now time.Time) bool {
	return p.LastAttemptAt.Before(cutoff) && !p.IsBlocked(now)
}
