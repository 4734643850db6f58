// Package subscription shares one external subscription among many
// internal consumers.
//
// The provider delivers home-change events only while a listener is
// registered with it. Several consumers (WebSocket clients, mostly) want
// those events; the Manager registers on the first Acquire and
// unregisters on the last Release.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotAcquired is returned by Release when the count is already zero.
var ErrNotAcquired = errors.New("subscription: release without acquire")

// Hook registers or unregisters the external subscription.
type Hook func(ctx context.Context) error

// Manager is a reference-counted subscription.
//
// Thread Safety: safe for concurrent use. Register and unregister calls
// are serialised, so the external side never sees overlapping calls.
type Manager struct {
	register   Hook
	unregister Hook

	mu    sync.Mutex
	count int
}

// NewManager creates a manager with a zero count.
func NewManager(register, unregister Hook) *Manager {
	return &Manager{register: register, unregister: unregister}
}

// Acquire takes a reference, registering if it is the first. If the
// register hook fails the count is left unchanged.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 && m.register != nil {
		if err := m.register(ctx); err != nil {
			return fmt.Errorf("registering subscription: %w", err)
		}
	}
	m.count++
	return nil
}

// Release drops a reference, unregistering on the last one. The count is
// decremented even if unregister fails; the error is returned for logging.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return ErrNotAcquired
	}
	m.count--
	if m.count == 0 && m.unregister != nil {
		if err := m.unregister(ctx); err != nil {
			return fmt.Errorf("unregistering subscription: %w", err)
		}
	}
	return nil
}

// Count returns the number of outstanding references.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
