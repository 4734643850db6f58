package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/thinglink-core/internal/pairing"
	"github.com/nerrad567/thinglink-core/internal/status"
)

// ScanSink receives discovered devices.
type ScanSink interface {
	HandleDiscovered(dev pairing.ScannedDevice) bool
}

// ProgressSink receives activation progress.
type ProgressSink interface {
	HandleProgress(p pairing.Progress) bool
}

// StatusSink receives device state events.
type StatusSink interface {
	ApplyDPUpdate(deviceID, blob string) status.DeviceState
	ApplyStatusChanged(deviceID string, online bool) status.DeviceState
	Remove(deviceID string) bool
}

// HomeWatcher toggles home-change forwarding on the bridge.
type HomeWatcher interface {
	WatchHomes(ctx context.Context) error
	UnwatchHomes(ctx context.Context) error
}

// HomeEventKind is the last segment of a home event topic.
type HomeEventKind string

const (
	HomeAdded   HomeEventKind = "added"
	HomeRemoved HomeEventKind = "removed"
	HomeInfo    HomeEventKind = "info"
)

// HomeEvent is a change to one of the account's homes.
type HomeEvent struct {
	HomeID  string          `json:"home_id"`
	Kind    HomeEventKind   `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DispatcherDeps holds the dispatcher's collaborators. Transport and
// Topics are required; nil sinks drop their events.
type DispatcherDeps struct {
	Transport       Transport
	Topics          Topics
	Scan            ScanSink
	Progress        ProgressSink
	Status          StatusSink
	Homes           HomeWatcher
	OnDeviceRemoved func(deviceID string)
	Logger          Logger
}

// Dispatcher subscribes to bridge event topics and routes each event.
// The MQTT client delivers messages in order, so events from one source
// reach their sink in emission order.
type Dispatcher struct {
	deps   DispatcherDeps
	logger Logger

	mu       sync.Mutex
	started  bool
	watching bool

	homeMu        sync.RWMutex
	homeListeners map[int]func(HomeEvent)
	nextHome      int
}

// NewDispatcher creates a dispatcher. It does not subscribe until Start.
func NewDispatcher(deps DispatcherDeps) (*Dispatcher, error) {
	if deps.Transport == nil {
		return nil, errors.New("provider: dispatcher needs a transport")
	}
	if deps.Topics.prefix == "" {
		deps.Topics = NewTopics("")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		deps:          deps,
		logger:        logger,
		homeListeners: make(map[int]func(HomeEvent)),
	}, nil
}

// Start subscribes to scan, progress and device topics.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	t := d.deps.Topics
	qos := d.deps.Transport.QoS()
	subs := []struct {
		topic   string
		handler func(string, []byte) error
	}{
		{t.ScanEvents(), d.handleScan},
		{t.ProgressEvents(), d.handleProgress},
		{t.DeviceEvents(), d.handleDevice},
	}
	for i, s := range subs {
		if err := d.deps.Transport.Subscribe(s.topic, qos, s.handler); err != nil {
			for _, done := range subs[:i] {
				_ = d.deps.Transport.Unsubscribe(done.topic) //nolint:errcheck // best-effort rollback
			}
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}
	d.started = true
	return nil
}

// Stop unsubscribes from every event topic.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	t := d.deps.Topics
	topics := []string{t.ScanEvents(), t.ProgressEvents(), t.DeviceEvents()}
	if d.watching {
		topics = append(topics, t.HomeEvents())
		d.watching = false
	}
	var errs []error
	for _, topic := range topics {
		if err := d.deps.Transport.Unsubscribe(topic); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnHomeEvent registers fn for home events and returns a remover.
func (d *Dispatcher) OnHomeEvent(fn func(HomeEvent)) func() {
	d.homeMu.Lock()
	id := d.nextHome
	d.nextHome++
	d.homeListeners[id] = fn
	d.homeMu.Unlock()

	return func() {
		d.homeMu.Lock()
		delete(d.homeListeners, id)
		d.homeMu.Unlock()
	}
}

// WatchHomes subscribes to home events and asks the bridge to forward
// them. It is the register hook of the home subscription manager.
func (d *Dispatcher) WatchHomes(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watching {
		return nil
	}

	topic := d.deps.Topics.HomeEvents()
	if err := d.deps.Transport.Subscribe(topic, d.deps.Transport.QoS(), d.handleHome); err != nil {
		return fmt.Errorf("subscribing to home events: %w", err)
	}
	if d.deps.Homes != nil {
		if err := d.deps.Homes.WatchHomes(ctx); err != nil {
			_ = d.deps.Transport.Unsubscribe(topic) //nolint:errcheck // best-effort rollback
			return err
		}
	}
	d.watching = true
	d.logger.Info("home events watched")
	return nil
}

// UnwatchHomes reverses WatchHomes.
func (d *Dispatcher) UnwatchHomes(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.watching {
		return nil
	}
	d.watching = false

	var errs []error
	if d.deps.Homes != nil {
		if err := d.deps.Homes.UnwatchHomes(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.deps.Transport.Unsubscribe(d.deps.Topics.HomeEvents()); err != nil {
		errs = append(errs, err)
	}
	d.logger.Info("home events unwatched")
	return errors.Join(errs...)
}

func (d *Dispatcher) handleScan(_ string, payload []byte) error {
	var dev pairing.ScannedDevice
	if err := json.Unmarshal(payload, &dev); err != nil {
		return fmt.Errorf("decoding scan event: %w", err)
	}
	dev.ConfigType = pairing.ConfigType(strings.ToUpper(strings.TrimSpace(string(dev.ConfigType))))
	if !dev.ConfigType.Valid() {
		d.logger.Warn("scan event with unsupported config type", "uuid", dev.UUID, "config_type", dev.ConfigType)
	}
	if d.deps.Scan != nil && !d.deps.Scan.HandleDiscovered(dev) {
		d.logger.Debug("scan event dropped", "uuid", dev.UUID)
	}
	return nil
}

func (d *Dispatcher) handleProgress(_ string, payload []byte) error {
	var p pairing.Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding progress event: %w", err)
	}
	if d.deps.Progress != nil && !d.deps.Progress.HandleProgress(p) {
		d.logger.Debug("progress event dropped", "uuid", p.UUID, "step", p.Step)
	}
	return nil
}

func (d *Dispatcher) handleDevice(topic string, payload []byte) error {
	devID, kind, ok := d.deps.Topics.ParseDeviceEvent(topic)
	if !ok {
		return fmt.Errorf("unexpected device topic %s", topic)
	}

	switch kind {
	case DeviceEventDP:
		if d.deps.Status != nil {
			d.deps.Status.ApplyDPUpdate(devID, dpBlob(payload))
		}

	case DeviceEventStatus:
		var ev statusEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decoding status event for %s: %w", devID, err)
		}
		if d.deps.Status != nil {
			d.deps.Status.ApplyStatusChanged(devID, ev.Online)
		}

	case DeviceEventRemoved:
		if d.deps.Status != nil {
			d.deps.Status.Remove(devID)
		}
		if d.deps.OnDeviceRemoved != nil {
			d.deps.OnDeviceRemoved(devID)
		}
		d.logger.Info("device removed by provider", "dev_id", devID)

	default:
		d.logger.Debug("unknown device event", "dev_id", devID, "kind", kind)
	}
	return nil
}

// dpBlob extracts the state blob. Bridges wrap it as {"dp_str": ...};
// anything else is passed to the codec as-is.
func dpBlob(payload []byte) string {
	var ev dpEvent
	if err := json.Unmarshal(payload, &ev); err == nil && ev.DPStr != nil {
		return *ev.DPStr
	}
	return string(payload)
}

func (d *Dispatcher) handleHome(topic string, payload []byte) error {
	homeID, kind, ok := d.deps.Topics.ParseHomeEvent(topic)
	if !ok {
		return fmt.Errorf("unexpected home topic %s", topic)
	}
	ev := HomeEvent{HomeID: homeID, Kind: HomeEventKind(kind)}
	if json.Valid(payload) {
		ev.Payload = append(json.RawMessage(nil), payload...)
	}

	d.homeMu.RLock()
	fns := make([]func(HomeEvent), 0, len(d.homeListeners))
	for _, fn := range d.homeListeners {
		fns = append(fns, fn)
	}
	d.homeMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return nil
}
