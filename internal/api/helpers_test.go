package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/thinglink-core/internal/audit"
	"github.com/nerrad567/thinglink-core/internal/auth"
	"github.com/nerrad567/thinglink-core/internal/control"
	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/logging"
	"github.com/nerrad567/thinglink-core/internal/metrics"
	"github.com/nerrad567/thinglink-core/internal/pairing"
	"github.com/nerrad567/thinglink-core/internal/status"
	"github.com/nerrad567/thinglink-core/internal/subscription"
)

const (
	testSecret = "test-secret-that-is-at-least-32-characters"
	testAPIKey = "test-api-key"
)

// fakeAdapter answers every provider call immediately. Activations
// return dev/err.
type fakeAdapter struct {
	mu    sync.Mutex
	calls []string
	dev   *pairing.PairedDevice
	err   error
}

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAdapter) StartScan(context.Context, time.Duration) error {
	f.record("StartScan")
	return nil
}

func (f *fakeAdapter) StopScan(context.Context) error {
	f.record("StopScan")
	return nil
}

func (f *fakeAdapter) GetToken(context.Context, string) (string, error) {
	f.record("GetToken")
	return "tok", nil
}

func (f *fakeAdapter) activate(name string) (*pairing.PairedDevice, error) {
	f.record(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dev, f.err
}

func (f *fakeAdapter) ActivateBLE(context.Context, pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return f.activate("ActivateBLE")
}

func (f *fakeAdapter) ActivateCombo(context.Context, pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return f.activate("ActivateCombo")
}

func (f *fakeAdapter) ActivateWifiEz(context.Context, pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return f.activate("ActivateWifiEz")
}

func (f *fakeAdapter) StopBLE(context.Context, string) (bool, error) { return true, nil }

func (f *fakeAdapter) StopCombo(context.Context, string) (bool, error) { return true, nil }

func (f *fakeAdapter) StopWifiEz(context.Context) (bool, error) { return true, nil }

// memRepo is an in-memory device.Repository.
type memRepo struct {
	mu      sync.Mutex
	devices map[string]device.PairedDevice
}

func newMemRepo() *memRepo {
	return &memRepo{devices: make(map[string]device.PairedDevice)}
}

func (m *memRepo) GetByID(_ context.Context, devID string) (*device.PairedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[devID]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return &d, nil
}

func (m *memRepo) ListRecent(_ context.Context, limit int) ([]device.PairedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.PairedDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PairedAt.After(out[j].PairedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Upsert(_ context.Context, d device.PairedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.DevID] = d
	return nil
}

func (m *memRepo) Delete(_ context.Context, devID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[devID]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(m.devices, devID)
	return nil
}

type publishCall struct {
	deviceID string
	wire     string
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, deviceID, wire string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{deviceID, wire})
	return p.err
}

type fakeRemover struct {
	removed []string
	err     error
}

func (r *fakeRemover) RemoveDevice(_ context.Context, deviceID string) error {
	r.removed = append(r.removed, deviceID)
	return r.err
}

// memAudit is an in-memory audit.Repository.
type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Create(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]audit.Entry{*e}, m.entries...)
	return nil
}

func (m *memAudit) List(_ context.Context, f audit.Filter) (*audit.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []audit.Entry{}
	for _, e := range m.entries {
		if (f.Action == "" || e.Action == f.Action) && (f.EntityID == "" || e.EntityID == f.EntityID) {
			out = append(out, e)
		}
	}
	return &audit.Page{Entries: out, Total: len(out), Limit: f.Limit, Offset: f.Offset}, nil
}

// testEnv is a Server wired to fakes.
type testEnv struct {
	server    *Server
	adapter   *fakeAdapter
	coord     *pairing.Coordinator
	scan      *pairing.ScanSession
	status    *status.Store
	devices   *device.Registry
	publisher *fakePublisher
	remover   *fakeRemover
	issuer    *auth.Issuer
	metrics   *metrics.Metrics
	homeSubs  *subscription.Manager
	audit     *memAudit
}

type envOption func(*Deps)

func withAuth() envOption {
	return func(d *Deps) {
		d.Issuer = auth.NewIssuer(testSecret, testAPIKey, time.Hour)
	}
}

func withRateLimit(perMinute int) envOption {
	return func(d *Deps) {
		d.Security.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		adapter:   &fakeAdapter{},
		publisher: &fakePublisher{},
		remover:   &fakeRemover{},
		metrics:   metrics.New(nil),
		audit:     &memAudit{},
	}
	codec := datapoint.NewCodec(nil)
	env.status = status.NewStore(codec)
	env.devices = device.NewRegistry(newMemRepo())
	env.scan = pairing.NewScanSession(env.adapter)
	env.coord = pairing.NewCoordinator(env.adapter, env.scan, pairing.Config{HomeID: "home-1"})
	env.homeSubs = subscription.NewManager(nil, nil)

	deps := Deps{
		WS:          config.WebSocketConfig{PingInterval: 30, PongTimeout: 10, MaxMessageSize: 8192},
		Logger:      logging.Discard(),
		Coordinator: env.coord,
		Status:      env.status,
		Controller:  control.New(codec, env.publisher, env.status),
		Codec:       codec,
		Devices:     env.devices,
		HomeSubs:    env.homeSubs,
		Remover:     env.remover,
		Audit:       audit.NewTrail(env.audit),
		Metrics:     env.metrics,
		Version:     "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.issuer = deps.Issuer

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.server = srv
	return env
}

// do sends a request through the router. body may be nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := e.issuer.Issue("user-"+string(role), role)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return tok
}

func (e *testEnv) addDevice(t *testing.T, id string, pairedAt time.Time) {
	t.Helper()
	d := device.PairedDevice{DevID: id, Name: id, Mode: pairing.ModeBLE, PairedAt: pairedAt}
	if err := e.devices.Record(context.Background(), d); err != nil {
		t.Fatalf("Record(%s) error = %v", id, err)
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}


func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}
