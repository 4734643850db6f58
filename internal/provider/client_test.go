package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/pairing"
)

func newStartedClient(t *testing.T, tr *fakeTransport, timeout time.Duration) *Client {
	t.Helper()
	c := NewClient(tr, NewTopics(""), timeout)
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_GetToken(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("")
	tr.reply = func(f *fakeTransport, req request) {
		respond(f, topics, req, map[string]string{"token": "tok-1"})
	}
	c := newStartedClient(t, tr, time.Second)

	token, err := c.GetToken(context.Background(), "home-1")
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q, want tok-1", token)
	}

	reqs := tr.requests()
	if len(reqs) != 1 || reqs[0].topic != topics.Request(ActionGetToken) {
		t.Fatalf("requests = %+v", reqs)
	}
	var sent struct {
		Action string     `json:"action"`
		Params homeParams `json:"params"`
	}
	if err := json.Unmarshal(reqs[0].payload, &sent); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	if sent.Action != ActionGetToken || sent.Params.HomeID != "home-1" {
		t.Errorf("request = %+v", sent)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d after reply", c.Pending())
	}
}

func TestClient_EmptyTokenIsProviderError(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("")
	tr.reply = func(f *fakeTransport, req request) { respond(f, topics, req, map[string]string{}) }
	c := newStartedClient(t, tr, time.Second)

	_, err := c.GetToken(context.Background(), "home-1")
	if !errors.Is(err, fault.ErrProvider) {
		t.Errorf("GetToken() error = %v, want ErrProvider", err)
	}
}

func TestClient_FailureCarriesProviderCode(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("")
	tr.reply = func(f *fakeTransport, req request) {
		respondError(f, topics, req, fault.CodeNoActiveScan, "scanner idle")
	}
	c := newStartedClient(t, tr, time.Second)

	err := c.StopScan(context.Background())
	if !errors.Is(err, fault.ErrNoActiveScan) {
		t.Errorf("StopScan() error = %v, want ErrNoActiveScan", err)
	}
	var pe *fault.ProviderError
	if !errors.As(err, &pe) || pe.Message != "scanner idle" || pe.Op != ActionStopScan {
		t.Errorf("provider error = %+v", pe)
	}
}

func TestClient_Timeout(t *testing.T) {
	tr := newFakeTransport()
	c := newStartedClient(t, tr, 20*time.Millisecond)

	err := c.Ping(context.Background())
	if !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("Ping() error = %v, want ErrTimeout", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d after timeout", c.Pending())
	}
}

func TestClient_PublishFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.publishErr = errors.New("not connected")
	c := newStartedClient(t, tr, time.Second)

	err := c.Publish(context.Background(), "dev1", `{"1":true}`)
	var pe *fault.ProviderError
	if !errors.As(err, &pe) || pe.Code != "TRANSPORT" {
		t.Errorf("Publish() error = %v, want TRANSPORT provider error", err)
	}
}

func TestClient_ActivationWaitsForContext(t *testing.T) {
	tr := newFakeTransport()
	c := newStartedClient(t, tr, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.ActivateBLE(ctx, pairing.ActivationRequest{HomeID: "h", UUID: "u1"})
		done <- err
	}()

	// Well past the request timeout, activation is still pending.
	select {
	case err := <-done:
		t.Fatalf("ActivateBLE() returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ActivateBLE() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ActivateBLE() did not return after cancel")
	}
}

func TestClient_ActivateCombo(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("")
	var params activateParams
	tr.reply = func(f *fakeTransport, req request) {
		raw, _ := json.Marshal(req.Params)
		_ = json.Unmarshal(raw, &params)
		respond(f, topics, req, pairing.PairedDevice{DevID: "dev-9", Name: "Bulb"})
	}
	c := newStartedClient(t, tr, time.Second)

	dev, err := c.ActivateCombo(context.Background(), pairing.ActivationRequest{
		AttemptID: "att-1",
		HomeID:    "h",
		UUID:      "u1",
		Token:     "tok",
		SSID:      "net",
		Password:  "secret",
		Timeout:   2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("ActivateCombo() error = %v", err)
	}
	if dev.DevID != "dev-9" || dev.UUID != "u1" {
		t.Errorf("device = %+v", dev)
	}
	if params.AttemptID != "att-1" || params.Token != "tok" || params.SSID != "net" || params.Password != "secret" || params.TimeoutMS != 120000 {
		t.Errorf("activate params = %+v", params)
	}
}

func TestClient_StopReportsStopped(t *testing.T) {
	tr := newFakeTransport()
	topics := NewTopics("")
	tr.reply = func(f *fakeTransport, req request) { respond(f, topics, req, map[string]bool{"stopped": true}) }
	c := newStartedClient(t, tr, time.Second)

	stopped, err := c.StopWifiEz(context.Background())
	if err != nil || !stopped {
		t.Errorf("StopWifiEz() = (%v, %v), want (true, nil)", stopped, err)
	}
}

func TestClient_CloseFailsPending(t *testing.T) {
	tr := newFakeTransport()
	c := NewClient(tr, NewTopics(""), time.Minute)
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Ping(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for c.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := <-done; !errors.Is(err, ErrClientClosed) {
		t.Errorf("Ping() error = %v, want ErrClientClosed", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Ping() after Close error = %v", err)
	}
	if tr.subscribed(NewTopics("").Responses()) {
		t.Error("response topic still subscribed after Close")
	}
}

func TestClient_UnknownResponseIgnored(t *testing.T) {
	tr := newFakeTransport()
	newStartedClient(t, tr, time.Second)

	payload := []byte(`{"request_id":"nobody","success":true}`)
	if err := tr.deliver(NewTopics("").Response("nobody"), payload); err != nil {
		t.Errorf("deliver() error = %v", err)
	}
	if err := tr.deliver(NewTopics("").Response("x"), []byte("{")); err == nil {
		t.Error("malformed response accepted")
	}
}
