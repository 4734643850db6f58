package pairing

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

// Default windows. Activation defaults are the provider's own limits.
const (
	DefaultScanTimeout   = 30000 * time.Millisecond
	DefaultBLETimeout    = 100000 * time.Millisecond
	DefaultComboTimeout  = 120000 * time.Millisecond
	DefaultWifiEzTimeout = 120000 * time.Millisecond
	DefaultCancelledTTL  = 300000 * time.Millisecond

	defaultStopTimeout = 10 * time.Second
	subscriberBuffer   = 64
)

// Config holds coordinator settings. Zero durations take the defaults.
type Config struct {
	HomeID        string
	ScanTimeout   time.Duration
	BLETimeout    time.Duration
	ComboTimeout  time.Duration
	WifiEzTimeout time.Duration
	CancelledTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = DefaultScanTimeout
	}
	if c.BLETimeout <= 0 {
		c.BLETimeout = DefaultBLETimeout
	}
	if c.ComboTimeout <= 0 {
		c.ComboTimeout = DefaultComboTimeout
	}
	if c.WifiEzTimeout <= 0 {
		c.WifiEzTimeout = DefaultWifiEzTimeout
	}
	if c.CancelledTTL <= 0 {
		c.CancelledTTL = DefaultCancelledTTL
	}
	return c
}

// ActivationTimeout returns the configured window for mode.
func (c Config) ActivationTimeout(m Mode) time.Duration {
	c = c.withDefaults()
	switch m {
	case ModeBLE:
		return c.BLETimeout
	case ModeCombo:
		return c.ComboTimeout
	}
	return c.WifiEzTimeout
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTimerFunc replaces the activation timer factory.
func WithTimerFunc(fn AfterFunc) Option {
	return func(c *Coordinator) { c.afterFunc = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// ActivateInput is what a caller supplies to start an activation. UUID
// defaults to the selected device; Timeout defaults per mode.
type ActivateInput struct {
	UUID     string        `json:"uuid,omitempty"`
	SSID     string        `json:"ssid,omitempty"`
	Password string        `json:"password,omitempty"`
	IsShared bool          `json:"is_shared,omitempty"`
	Timeout  time.Duration `json:"-"`
}

type attempt struct {
	id      string
	mode    Mode
	uuid    string
	started time.Time
	timeout time.Duration
	timer   Timer
	cancel  context.CancelFunc
	done    chan Result
}

// Coordinator is the pairing state machine.
//
// Thread Safety: all methods are safe for concurrent use. Subscribers
// receive events on buffered channels; a subscriber that falls behind
// loses events rather than stalling the coordinator.
type Coordinator struct {
	adapter    ActivationAdapter
	scan       *ScanSession
	cfg        Config
	logger     Logger
	recorder   Recorder
	afterFunc  AfterFunc
	now        func() time.Time
	tombstones *cache.Cache

	mu         sync.Mutex
	state      State
	mode       Mode
	selected   string
	attempt    *attempt
	progress   Step
	lastErr    error
	lastPaired *PairedDevice

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	resultMu sync.RWMutex
	onResult []func(Result)
}

// NewCoordinator creates a coordinator in ModeSelection. A nil scan gets a
// new ScanSession over adapter.
func NewCoordinator(adapter ActivationAdapter, scan *ScanSession, cfg Config, opts ...Option) *Coordinator {
	cfg = cfg.withDefaults()
	if scan == nil {
		scan = NewScanSession(adapter)
	}

	c := &Coordinator{
		adapter:    adapter,
		scan:       scan,
		cfg:        cfg,
		logger:     noopLogger{},
		recorder:   noopRecorder{},
		afterFunc:  realAfterFunc,
		now:        time.Now,
		tombstones: cache.New(cfg.CancelledTTL, cfg.CancelledTTL),
		state:      StateModeSelection,
		subs:       make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}

	scan.OnStopped(c.onScanStopped)
	scan.OnDiscovered(c.onDiscovered)
	return c
}

// Subscribe returns a channel of events and a function that closes it.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

// OnResult registers fn for every finished attempt, including cancelled
// ones. fn runs on the goroutine that finished the attempt.
func (c *Coordinator) OnResult(fn func(Result)) {
	c.resultMu.Lock()
	defer c.resultMu.Unlock()
	c.onResult = append(c.onResult, fn)
}

// SelectMode picks the pairing flow. Scanning modes open a discovery
// window; WIFI_EZ goes straight to WifiSetup.
func (c *Coordinator) SelectMode(ctx context.Context, mode Mode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	c.mu.Lock()
	if c.state == StateActivating {
		c.mu.Unlock()
		return ErrBusy
	}
	wasScanning := c.state == StateScanning
	c.mode = mode
	c.selected = ""
	c.progress = ""
	c.lastErr = nil

	if !mode.Scans() {
		c.setStateLocked(StateWifiSetup)
		c.mu.Unlock()
		if wasScanning {
			if err := c.scan.Stop(ctx); err != nil {
				c.logger.Warn("stopping scan for wifi setup", "error", err)
			}
		}
		return nil
	}

	c.setStateLocked(StateScanning)
	c.mu.Unlock()

	c.recorder.ScanStarted(mode)
	if err := c.scan.Start(ctx, c.cfg.ScanTimeout); err != nil {
		c.mu.Lock()
		if c.state == StateScanning && c.mode == mode {
			c.failLocked(err, StateModeSelection)
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// StopScan ends discovery and moves to DeviceList.
func (c *Coordinator) StopScan(ctx context.Context) error {
	c.mu.Lock()
	scanning := c.state == StateScanning
	c.mu.Unlock()
	if !scanning {
		return ErrInvalidState
	}

	err := c.scan.Stop(ctx)

	c.mu.Lock()
	if c.state == StateScanning {
		c.setStateLocked(StateDeviceList)
	}
	c.mu.Unlock()
	return err
}

// Devices splits the scan set into devices compatible with the current
// mode and the rest.
func (c *Coordinator) Devices() (compatible, other []ScannedDevice) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	return partition(mode, c.scan.Devices())
}

// SelectDevice chooses a device from the scan set. An incompatible device
// returns *ModeMismatchError and changes nothing. A device whose config
// type fits no mode returns *fault.ValidationError.
func (c *Coordinator) SelectDevice(deviceUUID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dev, err := c.lookupLocked(deviceUUID)
	if err != nil {
		return err
	}
	if !Compatible(c.mode, dev.ConfigType) {
		return &ModeMismatchError{UUID: deviceUUID, Current: c.mode, Suggested: ModeFor(dev.ConfigType)}
	}
	c.selectLocked(dev)
	return nil
}

// ConfirmModeSwitch accepts the mode a mismatched device needs and
// selects it.
func (c *Coordinator) ConfirmModeSwitch(deviceUUID string) (Mode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dev, err := c.lookupLocked(deviceUUID)
	if err != nil {
		return "", err
	}
	prev := c.mode
	c.mode = ModeFor(dev.ConfigType)
	c.selectLocked(dev)
	c.logger.Info("pairing mode switched", "uuid", deviceUUID, "from", prev, "to", c.mode)
	return c.mode, nil
}

func (c *Coordinator) lookupLocked(deviceUUID string) (ScannedDevice, error) {
	if c.state == StateActivating {
		return ScannedDevice{}, ErrBusy
	}
	if !c.mode.Scans() || (c.state != StateDeviceList && c.state != StateWifiSetup) {
		return ScannedDevice{}, ErrInvalidState
	}
	dev, ok := c.scan.Device(deviceUUID)
	if !ok {
		return ScannedDevice{}, ErrUnknownDevice
	}
	if err := checkConfigType(dev); err != nil {
		return ScannedDevice{}, err
	}
	return dev, nil
}

func (c *Coordinator) selectLocked(dev ScannedDevice) {
	c.selected = dev.UUID
	if c.mode == ModeCombo {
		c.setStateLocked(StateWifiSetup)
		return
	}
	c.setStateLocked(StateDeviceList)
}

// Activate runs an attempt and waits for its result. Returning on ctx
// does not cancel the attempt; use Cancel for that.
func (c *Coordinator) Activate(ctx context.Context, in ActivateInput) (*PairedDevice, error) {
	done, err := c.StartActivation(ctx, in)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-done:
		return res.Device, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartActivation validates in and launches the attempt. Validation
// failures (busy, bound device, missing credentials, mode mismatch) are
// returned before any provider call. The channel receives exactly one
// Result and is then closed.
//
// The attempt owns its timer. It outlives ctx: cancelling ctx does not
// stop the attempt, Cancel does.
//
// Parameters:
//   - ctx: Request context; only its values are carried into the attempt
//   - in: Device, WiFi credentials and optional timeout override
//
// Returns:
//   - <-chan Result: Receives the terminal result
//   - error: ErrBusy, ErrInvalidState, ErrUnknownDevice, *ModeMismatchError,
//     *fault.AlreadyBoundError, *fault.MissingCredentialsError or
//     *fault.ValidationError
//
// Example:
//
//	done, err := coord.StartActivation(ctx, pairing.ActivateInput{UUID: id, SSID: ssid, Password: pw})
//	if err != nil {
//	    return err
//	}
//	res := <-done
func (c *Coordinator) StartActivation(ctx context.Context, in ActivateInput) (<-chan Result, error) {
	c.mu.Lock()
	if c.state == StateActivating {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	req, err := c.buildRequestLocked(in)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	// Detach from the caller's cancellation; Cancel and the timer end it
	actx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &attempt{
		id:      uuid.NewString(),
		mode:    req.Mode,
		uuid:    req.UUID,
		started: c.now(),
		timeout: req.Timeout,
		cancel:  cancel,
		done:    make(chan Result, 1),
	}
	if a.uuid != "" {
		c.tombstones.Delete(a.uuid)
	}
	req.AttemptID = a.id
	c.attempt = a
	c.selected = req.UUID
	c.progress = ""
	c.lastErr = nil
	c.setStateLocked(StateActivating)
	a.timer = c.afterFunc(a.timeout, func() {
		c.finish(a.id, nil, &fault.TimeoutError{Op: "activate " + string(a.mode), After: a.timeout})
	})
	c.mu.Unlock()

	c.logger.Info("activation started", "attempt_id", a.id, "mode", a.mode, "uuid", a.uuid, "timeout", a.timeout)
	go c.run(actx, a, req)
	return a.done, nil
}

func (c *Coordinator) buildRequestLocked(in ActivateInput) (ActivationRequest, error) {
	mode := c.mode
	if !mode.Valid() {
		return ActivationRequest{}, ErrInvalidState
	}
	req := ActivationRequest{
		Mode:     mode,
		HomeID:   c.cfg.HomeID,
		IsShared: in.IsShared,
		Timeout:  in.Timeout,
	}

	if mode.Scans() {
		if c.state != StateDeviceList && c.state != StateWifiSetup {
			return ActivationRequest{}, ErrInvalidState
		}
		id := in.UUID
		if id == "" {
			id = c.selected
		}
		if id == "" {
			return ActivationRequest{}, &fault.ValidationError{Field: "uuid", Reason: "no device selected"}
		}
		dev, ok := c.scan.Device(id)
		if !ok {
			return ActivationRequest{}, ErrUnknownDevice
		}
		if err := checkConfigType(dev); err != nil {
			return ActivationRequest{}, err
		}
		if !Compatible(mode, dev.ConfigType) {
			return ActivationRequest{}, &ModeMismatchError{UUID: id, Current: mode, Suggested: ModeFor(dev.ConfigType)}
		}
		if dev.IsBound {
			return ActivationRequest{}, &fault.AlreadyBoundError{UUID: id}
		}
		req.UUID = dev.UUID
		req.DeviceType = dev.DeviceType
		req.ProductID = dev.ProductID
		req.Address = dev.Address
		req.MAC = dev.MAC
	} else if c.state != StateWifiSetup {
		return ActivationRequest{}, ErrInvalidState
	}

	if mode.NeedsWifi() {
		var missing []string
		if strings.TrimSpace(in.SSID) == "" {
			missing = append(missing, "ssid")
		}
		if in.Password == "" {
			missing = append(missing, "password")
		}
		if len(missing) > 0 {
			return ActivationRequest{}, &fault.MissingCredentialsError{Missing: missing}
		}
		req.SSID = in.SSID
		req.Password = in.Password
	}

	if req.Timeout <= 0 {
		req.Timeout = c.cfg.ActivationTimeout(mode)
	}
	return req, nil
}

// run performs the provider calls for a. The token is fetched only after
// the coordinator is Activating, so each attempt gets a fresh one.
func (c *Coordinator) run(ctx context.Context, a *attempt, req ActivationRequest) {
	if a.mode.NeedsWifi() {
		c.stepProgress(a.id, StepGettingToken)
		token, err := c.adapter.GetToken(ctx, req.HomeID)
		if err != nil {
			c.finish(a.id, nil, fault.AsProvider("get_token", err))
			return
		}
		req.Token = token
	}

	var (
		dev *PairedDevice
		err error
	)
	switch a.mode {
	case ModeBLE:
		dev, err = c.adapter.ActivateBLE(ctx, req)
	case ModeCombo:
		dev, err = c.adapter.ActivateCombo(ctx, req)
	case ModeWifiEz:
		dev, err = c.adapter.ActivateWifiEz(ctx, req)
	}
	c.finish(a.id, dev, fault.AsProvider("activate_"+strings.ToLower(string(a.mode)), err))
}

// finish resolves attempt id. Results for an attempt that is no longer
// current are dropped.
func (c *Coordinator) finish(id string, dev *PairedDevice, err error) {
	if _, dead := c.tombstones.Get(id); dead {
		c.logger.Debug("result for cancelled attempt ignored", "attempt_id", id)
		return
	}

	c.mu.Lock()
	a := c.attempt
	if a == nil || a.id != id {
		c.mu.Unlock()
		c.logger.Debug("stale activation result ignored", "attempt_id", id)
		return
	}
	c.attempt = nil
	a.timer.Stop()
	a.cancel()

	if err == nil && dev == nil {
		err = fault.Provider("activate", "EMPTY_RESULT", "provider returned no device")
	}
	res := Result{
		AttemptID: a.id,
		Mode:      a.mode,
		UUID:      a.uuid,
		Device:    dev,
		Err:       err,
		Duration:  c.now().Sub(a.started),
	}

	if err == nil {
		c.lastPaired = dev
		c.setStateLocked(StateSuccess)
		c.emitLocked(Event{Type: EventResult, Paired: dev})
	} else {
		c.emitLocked(Event{Type: EventResult, Error: DescribeError(err)})
		c.failLocked(err, returnStateFor(a.mode))
	}
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("activation succeeded", "attempt_id", a.id, "dev_id", dev.DevID, "duration", res.Duration)
	} else {
		c.logger.Warn("activation failed", "attempt_id", a.id, "mode", a.mode, "error", err)
	}
	if errors.Is(err, fault.ErrTimeout) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultStopTimeout)
		c.stopProvider(ctx, a)
		cancel()
	}
	c.deliver(a, res)
}

func returnStateFor(m Mode) State {
	if m == ModeWifiEz {
		return StateModeSelection
	}
	return StateDeviceList
}

// Cancel abandons the current scan or activation. Cancelling an
// activation asks the provider to stop but only guarantees that local
// state resets and late events for the attempt are ignored.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateSuccess, StateFailed, StateCancelled:
		c.mu.Unlock()
		return nil

	case StateScanning:
		c.setStateLocked(StateCancelled)
		c.mu.Unlock()
		return c.scan.Stop(ctx)

	case StateActivating:
		a := c.attempt
		c.attempt = nil
		a.timer.Stop()
		a.cancel()
		c.tombstones.SetDefault(a.id, struct{}{})
		if a.uuid != "" {
			c.tombstones.SetDefault(a.uuid, struct{}{})
		}
		c.setStateLocked(StateCancelled)
		res := Result{
			AttemptID: a.id,
			Mode:      a.mode,
			UUID:      a.uuid,
			Err:       ErrCancelled,
			Duration:  c.now().Sub(a.started),
		}
		c.mu.Unlock()

		c.logger.Info("activation cancelled", "attempt_id", a.id, "uuid", a.uuid)
		c.deliver(a, res)
		c.stopProvider(ctx, a)
		return nil
	}

	c.setStateLocked(StateCancelled)
	c.mu.Unlock()
	return nil
}

// Reset returns to ModeSelection and forgets the last attempt. It refuses
// while an activation is in flight.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateActivating {
		c.mu.Unlock()
		return ErrBusy
	}
	wasScanning := c.state == StateScanning
	c.mode = ""
	c.selected = ""
	c.progress = ""
	c.lastErr = nil
	c.lastPaired = nil
	c.setStateLocked(StateModeSelection)
	c.mu.Unlock()

	if wasScanning {
		return c.scan.Stop(ctx)
	}
	return nil
}

// HandleProgress records a provider progress event. Events for tombstoned
// attempts or devices, for another attempt or device, or with no attempt
// in flight are dropped. An event must name the attempt or the device;
// WIFI_EZ attempts have no device, so their events need the attempt id.
func (c *Coordinator) HandleProgress(p Progress) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.attempt
	if a == nil {
		return false
	}
	if p.AttemptID == "" && p.UUID == "" {
		return false
	}
	if p.AttemptID != "" && p.AttemptID != a.id {
		return false
	}
	if p.UUID != "" {
		if _, dead := c.tombstones.Get(p.UUID); dead {
			return false
		}
		if a.uuid != "" && p.UUID != a.uuid {
			return false
		}
	}
	p.AttemptID = a.id
	c.progress = p.Step
	c.emitLocked(Event{Type: EventProgress, Progress: &p})
	return true
}

func (c *Coordinator) stepProgress(id string, step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.attempt
	if a == nil || a.id != id {
		return
	}
	c.progress = step
	c.emitLocked(Event{Type: EventProgress, Progress: &Progress{AttemptID: a.id, UUID: a.uuid, Step: step}})
}

// Snapshot returns the current view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:      c.state,
		Mode:       c.mode,
		Selected:   c.selected,
		Progress:   c.progress,
		LastError:  DescribeError(c.lastErr),
		LastPaired: c.lastPaired,
	}
	if c.attempt != nil {
		snap.AttemptID = c.attempt.id
	}
	mode := c.mode
	c.mu.Unlock()

	snap.Scanning = c.scan.Running()
	snap.Compatible, snap.Other = partition(mode, c.scan.Devices())
	return snap
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) onScanStopped(_ []ScannedDevice, reason StopReason) {
	if reason == StopSuperseded {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateScanning {
		c.setStateLocked(StateDeviceList)
	}
}

func (c *Coordinator) onDiscovered(dev ScannedDevice) {
	c.recorder.DeviceDiscovered()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateScanning {
		c.emitLocked(Event{Type: EventDevice, Device: &dev})
	}
}

// failLocked passes through Failed and settles in returnTo.
func (c *Coordinator) failLocked(err error, returnTo State) {
	c.lastErr = err
	c.setStateLocked(StateFailed)
	if returnTo == StateModeSelection {
		c.mode = ""
		c.selected = ""
	}
	c.setStateLocked(returnTo)
}

func (c *Coordinator) setStateLocked(s State) {
	c.state = s
	c.emitLocked(Event{Type: EventState, Error: DescribeError(c.lastErr)})
}

// emitLocked fans ev out without blocking. Called with c.mu held so
// subscribers see events in state order.
func (c *Coordinator) emitLocked(ev Event) {
	ev.State = c.state
	ev.Mode = c.mode

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("pairing subscriber lagging, event dropped", "type", ev.Type)
		}
	}
}

// deliver runs result hooks before releasing the attempt's waiter.
func (c *Coordinator) deliver(a *attempt, res Result) {
	c.recorder.ActivationFinished(a.mode, res.Outcome(), res.Duration)

	c.resultMu.RLock()
	fns := slices.Clone(c.onResult)
	c.resultMu.RUnlock()
	for _, fn := range fns {
		fn(res)
	}

	a.done <- res
	close(a.done)
}

// stopProvider is best effort; the provider may have finished already.
func (c *Coordinator) stopProvider(ctx context.Context, a *attempt) {
	var err error
	switch a.mode {
	case ModeBLE:
		_, err = c.adapter.StopBLE(ctx, a.uuid)
	case ModeCombo:
		_, err = c.adapter.StopCombo(ctx, a.uuid)
	case ModeWifiEz:
		_, err = c.adapter.StopWifiEz(ctx)
	}
	if err != nil {
		c.logger.Warn("provider stop failed", "attempt_id", a.id, "mode", a.mode, "error", err)
	}
}

func partition(mode Mode, devs []ScannedDevice) (compatible, other []ScannedDevice) {
	compatible = []ScannedDevice{}
	other = []ScannedDevice{}
	for _, d := range devs {
		if Compatible(mode, d.ConfigType) {
			compatible = append(compatible, d)
		} else {
			other = append(other, d)
		}
	}
	return compatible, other
}
