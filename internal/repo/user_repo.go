// Package repo defines the persistence ports the core consumes (user
// profiles, devices, time-series delivery records) and ships in-memory
// adapters suitable for tests and for small deployments. Production
// deployments plug in their own adapter; the core only ever talks to the
// interfaces below.
package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/atsv3/resilience-core/internal/domain"
)

// UserRepo is the snapshot-semantics persistence port: load_all, save,
// delete. Every returned UserProfile is a value copy.
type UserRepo interface {
	LoadAll(ctx context.Context) ([]domain.UserProfile, error)
	Load(ctx context.Context, userID string) (domain.UserProfile, bool, error)
	Save(ctx context.Context, profile domain.UserProfile) error
	Delete(ctx context.Context, userID string) error
}

// InMemoryUserRepo is a many-readers/one-writer store: reads produce
// snapshot copies, writes are serialized under a single mutex.
type InMemoryUserRepo struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
}

// NewInMemoryUserRepo returns an empty repo.
func NewInMemoryUserRepo() *InMemoryUserRepo {
	return &InMemoryUserRepo{profiles: make(map[string]domain.UserProfile)}
}

func (r *InMemoryUserRepo) LoadAll(ctx context.Context) ([]domain.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (r *InMemoryUserRepo) Load(ctx context.Context, userID string) (domain.UserProfile, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, false, nil
	}
	return p.Clone(), true, nil
}

func (r *InMemoryUserRepo) Save(ctx context.Context, profile domain.UserProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrRepoPermanent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = profile.Clone()
	return nil
}

func (r *InMemoryUserRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, userID)
	return nil
}
