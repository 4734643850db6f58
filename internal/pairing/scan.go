package pairing

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

// StopReason says why a scan window ended.
type StopReason string

const (
	StopExplicit   StopReason = "explicit"
	StopTimeout    StopReason = "timeout"
	StopSuperseded StopReason = "superseded"
)

// ScanOption configures a ScanSession.
type ScanOption func(*ScanSession)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(fn AfterFunc) ScanOption {
	return func(s *ScanSession) { s.afterFunc = fn }
}

// WithScanLogger sets the session logger.
func WithScanLogger(l Logger) ScanOption {
	return func(s *ScanSession) {
		if l != nil {
			s.logger = l
		}
	}
}

// ScanSession owns the process's single discovery window.
//
// Every Start begins a new generation; a timer belonging to an older
// generation is ignored when it fires.
//
// Thread Safety: all methods are safe for concurrent use. Listeners are
// called without internal locks held.
type ScanSession struct {
	scanner   Scanner
	afterFunc AfterFunc
	logger    Logger

	// opMu serialises Start and Stop so two provider scans never overlap.
	opMu sync.Mutex

	mu      sync.Mutex
	running bool
	gen     uint64
	devices map[string]ScannedDevice
	timer   Timer

	listenerMu   sync.RWMutex
	onStopped    []func([]ScannedDevice, StopReason)
	onDiscovered []func(ScannedDevice)
}

// NewScanSession creates an idle session over scanner.
func NewScanSession(scanner Scanner, opts ...ScanOption) *ScanSession {
	s := &ScanSession{
		scanner:   scanner,
		afterFunc: realAfterFunc,
		logger:    noopLogger{},
		devices:   make(map[string]ScannedDevice),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnStopped registers fn to receive the final device set whenever a
// window ends.
func (s *ScanSession) OnStopped(fn func(devices []ScannedDevice, reason StopReason)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onStopped = append(s.onStopped, fn)
}

// OnDiscovered registers fn for every accepted sighting.
func (s *ScanSession) OnDiscovered(fn func(ScannedDevice)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onDiscovered = append(s.onDiscovered, fn)
}

// Start opens a new discovery window of the given length. A running
// window is stopped first; the provider's "no active scan" answer to that
// stop is ignored. The device set is cleared.
//
// Parameters:
//   - ctx: Bounds the provider calls, not the window itself
//   - timeout: Window length; the session stops itself when it elapses
//
// Returns:
//   - error: *fault.ValidationError for a non-positive timeout, or
//     *fault.ProviderError when the provider refuses to scan
func (s *ScanSession) Start(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		return &fault.ValidationError{Field: "timeout", Value: timeout, Reason: "must be positive"}
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if prev, was := s.halt(); was {
		s.notifyStopped(prev, StopSuperseded)
		if err := s.stopProvider(ctx); err != nil {
			return err
		}
	}

	// A new generation invalidates timers armed by earlier windows
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.running = true
	s.devices = make(map[string]ScannedDevice)
	s.mu.Unlock()

	if err := s.scanner.StartScan(ctx, timeout); err != nil {
		// Only roll back if no newer Start got in meanwhile
		s.mu.Lock()
		if s.gen == gen {
			s.running = false
		}
		s.mu.Unlock()
		return fault.AsProvider("start_scan", err)
	}

	s.mu.Lock()
	if s.gen == gen && s.running {
		s.timer = s.afterFunc(timeout, func() { s.expire(gen) })
	}
	s.mu.Unlock()

	s.logger.Info("scan started", "timeout", timeout)
	return nil
}

// Stop ends the current window. Stopping an idle session is a no-op.
func (s *ScanSession) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	prev, was := s.halt()
	if !was {
		return nil
	}
	s.notifyStopped(prev, StopExplicit)
	s.logger.Info("scan stopped", "devices", len(prev))
	return s.stopProvider(ctx)
}

// HandleDiscovered records a sighting. Sightings outside a window or
// without a UUID are dropped. Reports whether the device was accepted.
func (s *ScanSession) HandleDiscovered(dev ScannedDevice) bool {
	if dev.UUID == "" {
		return false
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.devices[dev.UUID] = dev
	s.mu.Unlock()

	s.listenerMu.RLock()
	fns := slices.Clone(s.onDiscovered)
	s.listenerMu.RUnlock()
	for _, fn := range fns {
		fn(dev)
	}
	return true
}

// Devices returns the current set ordered by RSSI, strongest first. The
// set survives the end of a window until the next Start.
func (s *ScanSession) Devices() []ScannedDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Device returns the device with uuid from the current set.
func (s *ScanSession) Device(uuid string) (ScannedDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[uuid]
	return d, ok
}

// Running reports whether a window is open.
func (s *ScanSession) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// halt closes the window locally. It returns the final set and whether a
// window was open.
func (s *ScanSession) halt() ([]ScannedDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, false
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.sortedLocked(), true
}

func (s *ScanSession) expire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.timer = nil
	final := s.sortedLocked()
	s.mu.Unlock()

	s.logger.Info("scan window elapsed", "devices", len(final))
	s.notifyStopped(final, StopTimeout)
}

func (s *ScanSession) stopProvider(ctx context.Context) error {
	err := s.scanner.StopScan(ctx)
	if err == nil || errors.Is(err, fault.ErrNoActiveScan) {
		return nil
	}
	return fault.AsProvider("stop_scan", err)
}

func (s *ScanSession) notifyStopped(devices []ScannedDevice, reason StopReason) {
	s.listenerMu.RLock()
	fns := slices.Clone(s.onStopped)
	s.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(append([]ScannedDevice(nil), devices...), reason)
	}
}

func (s *ScanSession) sortedLocked() []ScannedDevice {
	out := make([]ScannedDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].UUID < out[j].UUID
	})
	return out
}
