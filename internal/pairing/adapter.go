package pairing

import (
	"context"
	"time"
)

// Scanner starts and stops the provider's discovery radio.
type Scanner interface {
	StartScan(ctx context.Context, timeout time.Duration) error
	StopScan(ctx context.Context) error
}

// ActivationAdapter is the provider capability the coordinator drives.
// Activate calls block until the device is bound or the provider gives
// up; they must honour ctx cancellation. Errors should be taxonomy errors
// from package fault; anything else is treated as a provider failure.
type ActivationAdapter interface {
	Scanner

	GetToken(ctx context.Context, homeID string) (string, error)

	ActivateBLE(ctx context.Context, req ActivationRequest) (*PairedDevice, error)
	StopBLE(ctx context.Context, uuid string) (bool, error)

	ActivateCombo(ctx context.Context, req ActivationRequest) (*PairedDevice, error)
	StopCombo(ctx context.Context, uuid string) (bool, error)

	ActivateWifiEz(ctx context.Context, req ActivationRequest) (*PairedDevice, error)
	StopWifiEz(ctx context.Context) (bool, error)
}

// Timer is the part of *time.Timer the package uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc in production.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Logger is the logging surface the package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Recorder observes pairing outcomes, for metrics.
type Recorder interface {
	ScanStarted(mode Mode)
	DeviceDiscovered()
	ActivationFinished(mode Mode, outcome Outcome, d time.Duration)
}

// Outcome labels how an activation attempt ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

type noopRecorder struct{}

func (noopRecorder) ScanStarted(Mode)                                {}
func (noopRecorder) DeviceDiscovered()                               {}
func (noopRecorder) ActivationFinished(Mode, Outcome, time.Duration) {}
