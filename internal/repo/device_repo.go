package repo

import (
	"context"
	"sync"
	"time"

	"github.com/atsv3/resilience-core/internal/domain"
)

// DeviceRepo manages push-device registrations. DeviceID is unique per user;
// Register on an existing DeviceID replaces the token rather than appending
// a duplicate.
type DeviceRepo interface {
	Register(ctx context.Context, d domain.Device) error
	Deactivate(ctx context.Context, userID, deviceID string) error
	ListActive(ctx context.Context, userID string) ([]domain.Device, error)
}

// InMemoryDeviceRepo is a sharded-by-user in-memory DeviceRepo.
type InMemoryDeviceRepo struct {
	mu      sync.RWMutex
	devices map[string]map[string]domain.Device // userID -> deviceID -> device
}

func NewInMemoryDeviceRepo() *InMemoryDeviceRepo {
	return &InMemoryDeviceRepo{devices: make(map[string]map[string]domain.Device)}
}

func (r *InMemoryDeviceRepo) Register(ctx context.Context, d domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.devices[d.UserID]
	if !ok {
		byUser = make(map[string]domain.Device)
		r.devices[d.UserID] = byUser
	}
	if existing, ok := byUser[d.DeviceID]; ok {
		existing.Token = d.Token
		existing.Kind = d.Kind
		existing.Active = true
		byUser[d.DeviceID] = existing
		return nil
	}
	if d.RegisteredAt.IsZero() {
		d.RegisteredAt = time.Now()
	}
	d.Active = true
	byUser[d.DeviceID] = d
	return nil
}

func (r *InMemoryDeviceRepo) Deactivate(ctx context.Context, userID, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.devices[userID]
	if !ok {
		return nil
	}
	if d, ok := byUser[deviceID]; ok {
		d.Active = false
		byUser[deviceID] = d
	}
	return nil
}

func (r *InMemoryDeviceRepo) ListActive(ctx context.Context, userID string) ([]domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byUser := r.devices[userID]
	out := make([]domain.Device, 0, len(byUser))
	for _, d := range byUser {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}
