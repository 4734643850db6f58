package control

import (
	"context"
	"fmt"

	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/status"
)

// Publisher delivers an encoded command to a device. *provider.Client
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, deviceID, wire string) error
}

// StateStore is the part of the status store the controller touches.
type StateStore interface {
	Get(deviceID string) (status.DeviceState, bool)
	ApplyOptimistic(deviceID, dpID string, value any) status.DeviceState
}

// Logger is the logging surface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Named commands accepted by Execute.
const (
	CommandPower      = "power"
	CommandToggle     = "toggle"
	CommandBrightness = "brightness"
	CommandColourTemp = "colour_temp"
	CommandColour     = "colour"
	CommandMode       = "mode"
	CommandScene      = "scene"
	CommandTimer      = "timer"
)

// Result is the outcome of a published command.
type Result struct {
	Command datapoint.Command  `json:"command"`
	State   status.DeviceState `json:"state"`
}

// Controller encodes, publishes and optimistically applies commands.
type Controller struct {
	codec     *datapoint.Codec
	publisher Publisher
	store     StateStore
	logger    Logger
}

// New creates a controller. A nil codec uses the default registry.
func New(codec *datapoint.Codec, publisher Publisher, store StateStore) *Controller {
	if codec == nil {
		codec = datapoint.NewCodec(nil)
	}
	return &Controller{codec: codec, publisher: publisher, store: store, logger: noopLogger{}}
}

// SetLogger sets the controller logger.
func (c *Controller) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// Send encodes raw for DP dpID and publishes it to deviceID.
func (c *Controller) Send(ctx context.Context, deviceID string, dpID int, raw any) (Result, error) {
	desc, ok := c.codec.Registry().Lookup(dpID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %d", datapoint.ErrUnknownDataPoint, dpID)
	}
	return c.send(ctx, deviceID, desc, raw)
}

// SendCode is Send addressed by vendor code.
func (c *Controller) SendCode(ctx context.Context, deviceID, code string, raw any) (Result, error) {
	desc, ok := c.codec.Registry().LookupCode(code)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", datapoint.ErrUnknownDataPoint, code)
	}
	return c.send(ctx, deviceID, desc, raw)
}

func (c *Controller) send(ctx context.Context, deviceID string, desc datapoint.Descriptor, raw any) (Result, error) {
	if deviceID == "" {
		return Result{}, &fault.ValidationError{Field: "device_id", Reason: "required"}
	}

	cmd, err := c.codec.Encode(desc, raw)
	if err != nil {
		return Result{}, err
	}

	if err := c.publisher.Publish(ctx, deviceID, cmd.Wire); err != nil {
		return Result{}, fault.AsProvider("publish_dps", err)
	}

	state := c.store.ApplyOptimistic(deviceID, cmd.DPID, cmd.Value)
	c.logger.Debug("command sent", "device_id", deviceID, "dp", cmd.DPID, "code", desc.Code)
	return Result{Command: cmd, State: state}, nil
}

// Execute runs a named command.
func (c *Controller) Execute(ctx context.Context, deviceID, name string, raw any) (Result, error) {
	code, value, err := c.resolve(deviceID, name, raw)
	if err != nil {
		return Result{}, err
	}
	return c.SendCode(ctx, deviceID, code, value)
}

func (c *Controller) resolve(deviceID, name string, raw any) (string, any, error) {
	switch name {
	case CommandPower:
		return c.powerCode(deviceID), raw, nil
	case CommandToggle:
		code := c.powerCode(deviceID)
		return code, !c.currentBool(deviceID, code), nil
	case CommandBrightness:
		return datapoint.CodeBright, raw, nil
	case CommandColourTemp:
		return datapoint.CodeTemp, raw, nil
	case CommandColour:
		return datapoint.CodeColour, raw, nil
	case CommandMode:
		return datapoint.CodeWorkMode, raw, nil
	case CommandScene:
		return datapoint.CodeScene, raw, nil
	case CommandTimer:
		if c.hasCode(deviceID, datapoint.CodeCountdown) || !c.hasCode(deviceID, datapoint.CodeCountdown1) {
			return datapoint.CodeCountdown, raw, nil
		}
		return datapoint.CodeCountdown1, raw, nil
	default:
		return "", nil, &fault.ValidationError{Field: "command", Value: name, Reason: "unknown command"}
	}
}

// powerCode picks switch_led when the device reports it, else switch_1.
func (c *Controller) powerCode(deviceID string) string {
	if c.hasCode(deviceID, datapoint.CodeSwitchLED) {
		return datapoint.CodeSwitchLED
	}
	return datapoint.CodeSwitch1
}

func (c *Controller) hasCode(deviceID, code string) bool {
	_, ok := c.currentValue(deviceID, code)
	return ok
}

func (c *Controller) currentBool(deviceID, code string) bool {
	v, _ := c.currentValue(deviceID, code)
	b, _ := v.(bool)
	return b
}

func (c *Controller) currentValue(deviceID, code string) (any, bool) {
	desc, ok := c.codec.Registry().LookupCode(code)
	if !ok {
		return nil, false
	}
	state, ok := c.store.Get(deviceID)
	if !ok {
		return nil, false
	}
	v, ok := state.DataPoints[desc.Key()]
	return v, ok
}
