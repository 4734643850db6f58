package pairing

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Fire runs the callback unless the timer was stopped. It ignores Stop
// for callers that want to simulate a timer racing a stop.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	if t.fired || t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) ForceFire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (ft *fakeTimers) Last(t *testing.T) *fakeTimer {
	t.Helper()
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.timers) == 0 {
		t.Fatal("no timer scheduled")
	}
	return ft.timers[len(ft.timers)-1]
}

func (ft *fakeTimers) Len() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

type activationReply struct {
	dev *PairedDevice
	err error
}

// spyAdapter records every call. Activate calls block until a reply is
// sent on replies or ctx is done.
type spyAdapter struct {
	mu           sync.Mutex
	calls        []string
	requests     []ActivationRequest
	startScanErr error
	stopScanErr  error
	tokenErr     error
	token        string
	onToken      func()

	started chan ActivationRequest
	replies chan activationReply
}

func newSpyAdapter() *spyAdapter {
	return &spyAdapter{
		token:   "tok-1",
		started: make(chan ActivationRequest, 8),
		replies: make(chan activationReply, 8),
	}
}

func (s *spyAdapter) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *spyAdapter) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spyAdapter) Called(name string) bool {
	for _, c := range s.Calls() {
		if c == name {
			return true
		}
	}
	return false
}

func (s *spyAdapter) StartScan(context.Context, time.Duration) error {
	s.record("StartScan")
	return s.startScanErr
}

func (s *spyAdapter) StopScan(context.Context) error {
	s.record("StopScan")
	return s.stopScanErr
}

func (s *spyAdapter) GetToken(context.Context, string) (string, error) {
	s.record("GetToken")
	if s.onToken != nil {
		s.onToken()
	}
	return s.token, s.tokenErr
}

func (s *spyAdapter) activate(ctx context.Context, name string, req ActivationRequest) (*PairedDevice, error) {
	s.record(name)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	s.started <- req

	select {
	case r := <-s.replies:
		return r.dev, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *spyAdapter) ActivateBLE(ctx context.Context, req ActivationRequest) (*PairedDevice, error) {
	return s.activate(ctx, "ActivateBLE", req)
}

func (s *spyAdapter) ActivateCombo(ctx context.Context, req ActivationRequest) (*PairedDevice, error) {
	return s.activate(ctx, "ActivateCombo", req)
}

func (s *spyAdapter) ActivateWifiEz(ctx context.Context, req ActivationRequest) (*PairedDevice, error) {
	return s.activate(ctx, "ActivateWifiEz", req)
}

func (s *spyAdapter) StopBLE(context.Context, string) (bool, error) {
	s.record("StopBLE")
	return true, nil
}

func (s *spyAdapter) StopCombo(context.Context, string) (bool, error) {
	s.record("StopCombo")
	return true, nil
}

func (s *spyAdapter) StopWifiEz(context.Context) (bool, error) {
	s.record("StopWifiEz")
	return true, nil
}

func waitStarted(t *testing.T, s *spyAdapter) ActivationRequest {
	t.Helper()
	select {
	case req := <-s.started:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("activation never reached the adapter")
		return ActivationRequest{}
	}
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed without a result")
		}
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("no activation result")
		return Result{}
	}
}

type countingRecorder struct {
	mu         sync.Mutex
	scans      int
	discovered int
	outcomes   []Outcome
}

func (r *countingRecorder) ScanStarted(Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans++
}

func (r *countingRecorder) DeviceDiscovered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered++
}

func (r *countingRecorder) ActivationFinished(_ Mode, o Outcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *countingRecorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}
