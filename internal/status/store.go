package status

import (
	"sort"
	"sync"
	"time"
)

// Decoder turns a provider state blob into DP values.
type Decoder interface {
	Decode(blob string) map[string]any
	NameOf(key string) string
}

// Sink receives every value the store accepts from the provider.
// Optimistic writes are not forwarded.
type Sink interface {
	WriteDataPoint(deviceID, dpID, name string, value any, at time.Time)
	WriteOnline(deviceID string, online bool, at time.Time)
}

// Logger is the logging surface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Option configures a Store.
type Option func(*Store)

// WithSink forwards accepted updates to sink.
func WithSink(sink Sink) Option {
	return func(s *Store) { s.sink = sink }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the in-memory device status map.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	codec  Decoder
	sink   Sink
	now    func() time.Time
	logger Logger

	mu      sync.RWMutex
	devices map[string]*DeviceState

	listenerMu sync.RWMutex
	listeners  map[int]func(Change)
	nextID     int
}

// NewStore creates an empty store decoding blobs with codec.
func NewStore(codec Decoder, opts ...Option) *Store {
	s := &Store{
		codec:     codec,
		now:       time.Now,
		logger:    noopLogger{},
		devices:   make(map[string]*DeviceState),
		listeners: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn for every mutation and returns a function that
// removes it.
func (s *Store) OnChange(fn func(Change)) (remove func()) {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			delete(s.listeners, id)
			s.listenerMu.Unlock()
		})
	}
}

// ApplyDPUpdate decodes blob and merges it over the device's DPs. The
// device is marked online and created if unknown.
//
// The merge is shallow: a key in blob replaces the stored value whole, and
// keys absent from blob keep their previous value. An undecodable blob
// still marks the device online.
//
// Parameters:
//   - deviceID: Provider device id
//   - blob: Raw DP state as sent by the provider (JSON or legacy text)
//
// Returns:
//   - DeviceState: Deep copy of the entry after the merge
func (s *Store) ApplyDPUpdate(deviceID, blob string) DeviceState {
	// Decode outside the lock; Decode never fails
	decoded := s.codec.Decode(blob)
	now := s.now()

	s.mu.Lock()
	st := s.entryLocked(deviceID)
	for k, v := range decoded {
		st.DataPoints[k] = v
	}
	st.Online = true
	st.LastUpdate = now
	snapshot := st.DeepCopy()
	s.mu.Unlock()

	// Telemetry in key order so points for one update are stable
	if s.sink != nil {
		keys := make([]string, 0, len(decoded))
		for k := range decoded {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.sink.WriteDataPoint(deviceID, k, s.codec.NameOf(k), decoded[k], now)
		}
	}

	s.logger.Debug("dp update applied", "device_id", deviceID, "dps", len(decoded))
	s.notify(Change{Kind: ChangeDataPoints, State: snapshot, Updated: copyMap(decoded)})
	return snapshot
}

// ApplyStatusChanged sets only the online flag and timestamp.
func (s *Store) ApplyStatusChanged(deviceID string, online bool) DeviceState {
	now := s.now()

	s.mu.Lock()
	st := s.entryLocked(deviceID)
	st.Online = online
	st.LastUpdate = now
	snapshot := st.DeepCopy()
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.WriteOnline(deviceID, online, now)
	}

	s.notify(Change{Kind: ChangeOnline, State: snapshot})
	return snapshot
}

// ApplyOptimistic records a value the core has just commanded, before the
// device confirms it. The online flag is left alone.
func (s *Store) ApplyOptimistic(deviceID, dpID string, value any) DeviceState {
	now := s.now()

	s.mu.Lock()
	st := s.entryLocked(deviceID)
	st.DataPoints[dpID] = copyValue(value)
	st.LastUpdate = now
	snapshot := st.DeepCopy()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeOptimistic, State: snapshot, Updated: map[string]any{dpID: copyValue(value)}})
	return snapshot
}

// Seed creates an offline entry for a device that has no status yet.
// Existing entries are untouched. Reports whether an entry was created.
func (s *Store) Seed(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; ok {
		return false
	}
	s.devices[deviceID] = &DeviceState{
		DeviceID:   deviceID,
		DataPoints: make(map[string]any),
	}
	return true
}

// Remove deletes a device's status. Reports whether it existed.
func (s *Store) Remove(deviceID string) bool {
	s.mu.Lock()
	st, ok := s.devices[deviceID]
	if ok {
		delete(s.devices, deviceID)
	}
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeRemoved, State: st.DeepCopy()})
	}
	return ok
}

// Get returns a copy of the device's status.
func (s *Store) Get(deviceID string) (DeviceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.devices[deviceID]
	if !ok {
		return DeviceState{}, false
	}
	return st.DeepCopy(), true
}

// List returns copies of every status ordered by device id.
func (s *Store) List() []DeviceState {
	s.mu.RLock()
	out := make([]DeviceState, 0, len(s.devices))
	for _, st := range s.devices {
		out = append(out, st.DeepCopy())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of tracked devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// entryLocked returns the device entry, creating it. Caller holds s.mu.
func (s *Store) entryLocked(deviceID string) *DeviceState {
	st, ok := s.devices[deviceID]
	if !ok {
		st = &DeviceState{DeviceID: deviceID, DataPoints: make(map[string]any)}
		s.devices[deviceID] = st
	}
	return st
}

func (s *Store) notify(c Change) {
	s.listenerMu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
