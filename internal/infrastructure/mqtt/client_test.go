package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "thinglink-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient builds a Client around a paho client that never dials.
func disconnectedClient(t *testing.T) *Client {
	t.Helper()
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	return &Client{
		client:        pahomqtt.NewClient(opts),
		options:       opts,
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if opts.ClientID != "thinglink-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "core" || opts.Password != "secret" {
		t.Errorf("credentials not applied: %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession || !opts.Order {
		t.Error("expected auto-reconnect, clean session and ordered delivery")
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "thinglink/core/status", "core-1")

	if !opts.WillEnabled || opts.WillTopic != "thinglink/core/status" || !opts.WillRetained {
		t.Fatalf("LWT not configured: enabled=%v topic=%q retained=%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will map[string]string
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will["status"] != "offline" || will["reason"] != "unexpected_disconnect" || will["client_id"] != "core-1" {
		t.Errorf("unexpected will payload: %v", will)
	}
}

func TestPresencePayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("c"), "online", ""},
		{"offline", buildOfflinePayload("c"), "offline", "graceful_shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			if err := json.Unmarshal([]byte(tt.payload), &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if got["status"] != tt.wantStatus || got["reason"] != tt.wantReason {
				t.Errorf("payload = %v", got)
			}
			if got["timestamp"] == "" {
				t.Error("timestamp missing")
			}
		})
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "a/b", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient(t)
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: %v", err)
	}
	if err := c.Subscribe("a/#", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: %v", err)
	}
	if err := c.Subscribe("a/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: %v", err)
	}
	if err := c.Subscribe("a/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("not connected: %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("a/#") {
		t.Error("failed subscribe must not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("unsubscribe empty topic: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnectedClient(t)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) = %v, want context.Canceled", err)
	}
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func TestDispatch_RecoversPanicsAndLogsErrors(t *testing.T) {
	c := disconnectedClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("errors = %v, want one panic record", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one handler error record", logger.warns)
	}
}

func TestQoS(t *testing.T) {
	c := disconnectedClient(t)
	if c.QoS() != 1 {
		t.Errorf("QoS() = %d, want 1", c.QoS())
	}
}
