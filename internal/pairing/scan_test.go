package pairing

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

type stopRecord struct {
	devices []ScannedDevice
	reason  StopReason
}

func newTestScan(t *testing.T) (*ScanSession, *spyAdapter, *fakeTimers, func() []stopRecord) {
	t.Helper()
	spy := newSpyAdapter()
	timers := &fakeTimers{}
	s := NewScanSession(spy, WithAfterFunc(timers.AfterFunc))

	var mu sync.Mutex
	var stops []stopRecord
	s.OnStopped(func(devs []ScannedDevice, reason StopReason) {
		mu.Lock()
		defer mu.Unlock()
		stops = append(stops, stopRecord{devs, reason})
	})
	return s, spy, timers, func() []stopRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]stopRecord(nil), stops...)
	}
}

func uuids(devs []ScannedDevice) []string {
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.UUID)
	}
	return out
}

func TestScanSession_DedupesAndTimesOut(t *testing.T) {
	s, _, timers, stops := newTestScan(t)

	if err := s.Start(context.Background(), 30000*time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := timers.Last(t).d; got != 30*time.Second {
		t.Errorf("timer = %v, want 30s", got)
	}

	s.HandleDiscovered(ScannedDevice{UUID: "a", RSSI: -80, Name: "first"})
	s.HandleDiscovered(ScannedDevice{UUID: "b", RSSI: -60})
	s.HandleDiscovered(ScannedDevice{UUID: "a", RSSI: -40, Name: "second"})

	devs := s.Devices()
	if !reflect.DeepEqual(uuids(devs), []string{"a", "b"}) {
		t.Fatalf("Devices() = %v, want [a b]", uuids(devs))
	}
	if devs[0].RSSI != -40 || devs[0].Name != "second" {
		t.Errorf("re-discovery did not replace: %+v", devs[0])
	}

	timers.Last(t).Fire()

	if s.Running() {
		t.Error("session still running after timeout")
	}
	got := stops()
	if len(got) != 1 || got[0].reason != StopTimeout || len(got[0].devices) != 2 {
		t.Fatalf("stops = %+v, want one timeout stop with 2 devices", got)
	}
	if len(s.Devices()) != 2 {
		t.Error("device set should survive the end of the window")
	}
}

func TestScanSession_RestartSupersedes(t *testing.T) {
	s, spy, timers, stops := newTestScan(t)
	spy.stopScanErr = fault.Provider("stop_scan", fault.CodeNoActiveScan, "idle")
	ctx := context.Background()

	if err := s.Start(ctx, time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := timers.Last(t)
	s.HandleDiscovered(ScannedDevice{UUID: "old"})

	if err := s.Start(ctx, time.Second); err != nil {
		t.Fatalf("second Start() error = %v (no-active-scan must be swallowed)", err)
	}
	if !first.Stopped() {
		t.Error("superseded timer not stopped")
	}
	if len(s.Devices()) != 0 {
		t.Error("device set not cleared on restart")
	}

	first.ForceFire()
	if !s.Running() {
		t.Error("stale timer stopped the new window")
	}

	got := stops()
	if len(got) != 1 || got[0].reason != StopSuperseded {
		t.Fatalf("stops = %+v, want one superseded stop", got)
	}
	want := []string{"StartScan", "StopScan", "StartScan"}
	if !reflect.DeepEqual(spy.Calls(), want) {
		t.Errorf("calls = %v, want %v", spy.Calls(), want)
	}
}

func TestScanSession_RestartPropagatesOtherStopErrors(t *testing.T) {
	s, spy, _, _ := newTestScan(t)
	ctx := context.Background()

	if err := s.Start(ctx, time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	spy.stopScanErr = errors.New("radio wedged")

	err := s.Start(ctx, time.Second)
	if !errors.Is(err, fault.ErrProvider) {
		t.Errorf("Start() error = %v, want ErrProvider", err)
	}
}

func TestScanSession_StartFailure(t *testing.T) {
	s, spy, timers, _ := newTestScan(t)
	spy.startScanErr = fault.Provider("start_scan", "PERMISSION_DENIED", "bluetooth permission missing")

	err := s.Start(context.Background(), time.Second)
	var pe *fault.ProviderError
	if !errors.As(err, &pe) || pe.Code != "PERMISSION_DENIED" {
		t.Fatalf("Start() error = %v, want provider PERMISSION_DENIED", err)
	}
	if s.Running() {
		t.Error("session running after failed start")
	}
	if timers.Len() != 0 {
		t.Error("timer scheduled for failed start")
	}
}

func TestScanSession_InvalidTimeout(t *testing.T) {
	s, spy, _, _ := newTestScan(t)

	if err := s.Start(context.Background(), 0); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("Start(0) error = %v, want ErrValidation", err)
	}
	if len(spy.Calls()) != 0 {
		t.Errorf("adapter called: %v", spy.Calls())
	}
}

func TestScanSession_StopIsAlwaysSafe(t *testing.T) {
	s, spy, timers, stops := newTestScan(t)
	ctx := context.Background()

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() on idle session error = %v", err)
	}
	if len(spy.Calls()) != 0 {
		t.Errorf("idle Stop() reached the adapter: %v", spy.Calls())
	}

	if err := s.Start(ctx, time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !timers.Last(t).Stopped() {
		t.Error("timer not stopped on explicit stop")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	got := stops()
	if len(got) != 1 || got[0].reason != StopExplicit {
		t.Errorf("stops = %+v, want one explicit stop", got)
	}
}

func TestScanSession_DiscoveryOutsideWindowIgnored(t *testing.T) {
	s, _, _, _ := newTestScan(t)

	if s.HandleDiscovered(ScannedDevice{UUID: "a"}) {
		t.Error("discovery accepted while idle")
	}
	if err := s.Start(context.Background(), time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.HandleDiscovered(ScannedDevice{Name: "no uuid"}) {
		t.Error("discovery without uuid accepted")
	}

	var seen []string
	s.OnDiscovered(func(d ScannedDevice) { seen = append(seen, d.UUID) })
	s.HandleDiscovered(ScannedDevice{UUID: "b"})
	if !reflect.DeepEqual(seen, []string{"b"}) {
		t.Errorf("OnDiscovered saw %v", seen)
	}
}

func TestScanSession_ListenerRegisteredDuringCallback(t *testing.T) {
	s, _, _, _ := newTestScan(t)
	if err := s.Start(context.Background(), time.Second); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var outer, inner int
	s.OnDiscovered(func(ScannedDevice) {
		outer++
		if outer == 1 {
			s.OnDiscovered(func(ScannedDevice) { inner++ })
		}
	})

	s.HandleDiscovered(ScannedDevice{UUID: "a"})
	if inner != 0 {
		t.Errorf("listener added mid-callback ran in the same round (%d)", inner)
	}
	s.HandleDiscovered(ScannedDevice{UUID: "b"})
	if outer != 2 || inner != 1 {
		t.Errorf("outer = %d, inner = %d, want 2 and 1", outer, inner)
	}
}
