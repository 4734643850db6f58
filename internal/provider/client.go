package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/thinglink-core/internal/pairing"
)

// DefaultRequestTimeout bounds non-activation calls.
const DefaultRequestTimeout = 15 * time.Second

// ErrClientClosed is returned for calls after Close.
var ErrClientClosed = errors.New("provider: client closed")

// Transport is the MQTT surface the package needs. *mqtt.Client
// satisfies it.
type Transport interface {
	PublishContext(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	QoS() byte
}

// Logger is the logging surface the package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client sends requests to the bridge and matches replies by request id.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	transport Transport
	topics    Topics
	timeout   time.Duration
	logger    Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]chan response
	started bool
	closed  bool
}

// NewClient creates a client. A non-positive timeout uses
// DefaultRequestTimeout.
func NewClient(transport Transport, topics Topics, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		transport: transport,
		topics:    topics,
		timeout:   timeout,
		logger:    noopLogger{},
		now:       time.Now,
		pending:   make(map[string]chan response),
	}
}

// SetLogger sets the client logger.
func (c *Client) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Start subscribes to the response topic.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.transport.Subscribe(c.topics.Responses(), c.transport.QoS(), c.handleResponse); err != nil {
		return fmt.Errorf("subscribing to bridge responses: %w", err)
	}
	c.started = true
	c.closed = false
	return nil
}

// Close unsubscribes and fails every pending call with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan response)
	wasStarted := c.started
	c.started = false
	c.closed = true
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if !wasStarted {
		return nil
	}
	return c.transport.Unsubscribe(c.topics.Responses())
}

// Pending returns the number of calls awaiting a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) handleResponse(topic string, payload []byte) error {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding bridge response: %w", err)
	}
	if resp.RequestID == "" {
		id, ok := c.topics.ParseResponse(topic)
		if !ok {
			return fmt.Errorf("bridge response without request id on %s", topic)
		}
		resp.RequestID = id
	}

	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("bridge response for unknown request", "request_id", resp.RequestID)
		return nil
	}
	ch <- resp
	return nil
}

// call publishes a request and waits for its reply. wait <= 0 means the
// call is bounded only by ctx.
func (c *Client) call(ctx context.Context, action string, params any, wait time.Duration, out any) error {
	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	payload, err := json.Marshal(request{RequestID: id, Action: action, Params: params, SentAt: c.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", action, err)
	}

	if err := c.transport.PublishContext(ctx, c.topics.Request(action), payload, c.transport.QoS(), false); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.Provider(action, "TRANSPORT", err.Error())
	}
	c.logger.Debug("bridge request sent", "action", action, "request_id", id)

	var expired <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClientClosed
		}
		if !resp.Success {
			if resp.Error == nil {
				return fault.Provider(action, "", "bridge reported failure")
			}
			return fault.Provider(action, resp.Error.Code, resp.Error.Message)
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return fault.Provider(action, "BAD_RESPONSE", err.Error())
			}
		}
		return nil
	case <-expired:
		return &fault.TimeoutError{Op: action, After: wait}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// GetToken fetches a fresh activation token for homeID.
func (c *Client) GetToken(ctx context.Context, homeID string) (string, error) {
	var data tokenData
	if err := c.call(ctx, ActionGetToken, homeParams{HomeID: homeID}, c.timeout, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fault.Provider(ActionGetToken, "EMPTY_TOKEN", "bridge returned an empty token")
	}
	return data.Token, nil
}

// StartScan asks the bridge to open a discovery window.
func (c *Client) StartScan(ctx context.Context, timeout time.Duration) error {
	return c.call(ctx, ActionStartScan, scanParams{TimeoutMS: timeout.Milliseconds()}, c.timeout, nil)
}

// StopScan closes the discovery window. The bridge answers
// NO_ACTIVE_SCAN when none is open.
func (c *Client) StopScan(ctx context.Context) error {
	return c.call(ctx, ActionStopScan, nil, c.timeout, nil)
}

// ActivateBLE binds a single-mode device. It waits for as long as ctx
// allows; the coordinator owns the activation timeout.
func (c *Client) ActivateBLE(ctx context.Context, req pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return c.activate(ctx, ActionActivateBLE, req)
}

// ActivateCombo binds a dual-mode device over BLE with WiFi hand-off.
func (c *Client) ActivateCombo(ctx context.Context, req pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return c.activate(ctx, ActionActivateCombo, req)
}

// ActivateWifiEz broadcasts WiFi credentials for SmartConfig devices.
func (c *Client) ActivateWifiEz(ctx context.Context, req pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	return c.activate(ctx, ActionActivateWifiEz, req)
}

func (c *Client) activate(ctx context.Context, action string, req pairing.ActivationRequest) (*pairing.PairedDevice, error) {
	var dev pairing.PairedDevice
	if err := c.call(ctx, action, newActivateParams(req), 0, &dev); err != nil {
		return nil, err
	}
	if dev.DevID == "" {
		return nil, fault.Provider(action, "BAD_RESPONSE", "bridge returned no device id")
	}
	if dev.UUID == "" {
		dev.UUID = req.UUID
	}
	return &dev, nil
}

// StopBLE stops a BLE activation.
func (c *Client) StopBLE(ctx context.Context, deviceUUID string) (bool, error) {
	return c.stop(ctx, ActionStopBLE, uuidParams{UUID: deviceUUID})
}

// StopCombo stops a combo activation.
func (c *Client) StopCombo(ctx context.Context, deviceUUID string) (bool, error) {
	return c.stop(ctx, ActionStopCombo, uuidParams{UUID: deviceUUID})
}

// StopWifiEz stops the SmartConfig broadcast.
func (c *Client) StopWifiEz(ctx context.Context) (bool, error) {
	return c.stop(ctx, ActionStopWifiEz, nil)
}

func (c *Client) stop(ctx context.Context, action string, params any) (bool, error) {
	var data stoppedData
	if err := c.call(ctx, action, params, c.timeout, &data); err != nil {
		return false, err
	}
	return data.Stopped, nil
}

// Publish sends an encoded DP command to a device.
func (c *Client) Publish(ctx context.Context, deviceID, wire string) error {
	return c.call(ctx, ActionPublishDPs, publishParams{DevID: deviceID, DPs: wire}, c.timeout, nil)
}

// RemoveDevice unbinds a device from the account.
func (c *Client) RemoveDevice(ctx context.Context, deviceID string) error {
	return c.call(ctx, ActionRemoveDevice, deviceParams{DevID: deviceID}, c.timeout, nil)
}

// WatchHomes asks the bridge to start forwarding home-change events.
func (c *Client) WatchHomes(ctx context.Context) error {
	return c.call(ctx, ActionWatchHomes, nil, c.timeout, nil)
}

// UnwatchHomes stops home-change forwarding.
func (c *Client) UnwatchHomes(ctx context.Context) error {
	return c.call(ctx, ActionUnwatchHomes, nil, c.timeout, nil)
}

// Ping checks the bridge is answering.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, ActionPing, nil, c.timeout, nil)
}
