package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Registry caches the recent list in front of a Repository. Writes go to
// the repository first and update the cache only on success.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	logger Logger

	mu    sync.RWMutex
	cache map[string]PairedDevice
}

// NewRegistry creates an empty registry. Call RefreshCache on startup.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		cache:  make(map[string]PairedDevice),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(l Logger) {
	if l != nil {
		r.logger = l
	}
}

// RefreshCache reloads every entry from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListRecent(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading paired devices: %w", err)
	}

	cache := make(map[string]PairedDevice, len(devices))
	for _, d := range devices {
		cache[d.DevID] = d
	}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()

	r.logger.Info("paired device cache refreshed", "count", len(devices))
	return nil
}

// Record stores a newly paired device.
func (r *Registry) Record(ctx context.Context, d PairedDevice) error {
	if err := r.repo.Upsert(ctx, d); err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.PairedAt
	}

	r.mu.Lock()
	r.cache[d.DevID] = d
	r.mu.Unlock()

	r.logger.Debug("paired device recorded", "dev_id", d.DevID, "mode", d.Mode)
	return nil
}

// Get returns a cached entry.
func (r *Registry) Get(devID string) (PairedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.cache[devID]
	if !ok {
		return PairedDevice{}, ErrDeviceNotFound
	}
	return d, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns
// all.
func (r *Registry) Recent(limit int) []PairedDevice {
	r.mu.RLock()
	out := make([]PairedDevice, 0, len(r.cache))
	for _, d := range r.cache {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PairedAt.Equal(out[j].PairedAt) {
			return out[i].PairedAt.After(out[j].PairedAt)
		}
		return out[i].DevID < out[j].DevID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Remove deletes an entry. Removing an unknown device returns
// ErrDeviceNotFound.
func (r *Registry) Remove(ctx context.Context, devID string) error {
	if err := r.repo.Delete(ctx, devID); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, devID)
	r.mu.Unlock()
	return nil
}

// Forget drops an entry the provider has already removed. Unknown ids
// are ignored.
func (r *Registry) Forget(ctx context.Context, devID string) {
	if err := r.Remove(ctx, devID); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		r.logger.Warn("failed to forget paired device", "dev_id", devID, "error", err)
	}
}

// Len returns the number of cached entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
