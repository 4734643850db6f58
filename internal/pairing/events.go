package pairing

import (
	"errors"
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

// State is a coordinator state.
type State string

const (
	StateModeSelection State = "mode_selection"
	StateScanning      State = "scanning"
	StateDeviceList    State = "device_list"
	StateWifiSetup     State = "wifi_setup"
	StateActivating    State = "activating"
	StateSuccess       State = "success"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
)

// Terminal reports whether s ends an attempt.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateCancelled
}

// EventType classifies coordinator events.
type EventType string

const (
	EventState    EventType = "state"
	EventDevice   EventType = "device"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
)

// Event is pushed to subscribers on every observable change.
type Event struct {
	Type     EventType      `json:"type"`
	State    State          `json:"state"`
	Mode     Mode           `json:"mode,omitempty"`
	Device   *ScannedDevice `json:"device,omitempty"`
	Progress *Progress      `json:"progress,omitempty"`
	Paired   *PairedDevice  `json:"paired,omitempty"`
	Error    *ErrorInfo     `json:"error,omitempty"`
}

// Result is the outcome of one activation attempt.
type Result struct {
	AttemptID string        `json:"attempt_id"`
	Mode      Mode          `json:"mode"`
	UUID      string        `json:"uuid,omitempty"`
	Device    *PairedDevice `json:"device,omitempty"`
	Err       error         `json:"-"`
	Duration  time.Duration `json:"duration"`
}

// Outcome classifies the result for metrics.
func (r Result) Outcome() Outcome {
	switch {
	case r.Err == nil:
		return OutcomeSuccess
	case errors.Is(r.Err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(r.Err, fault.ErrTimeout):
		return OutcomeTimeout
	}
	return OutcomeFailed
}

// ErrorInfo is the client-facing description of a pairing error.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DescribeError maps a taxonomy error to its kind and provider code.
func DescribeError(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Kind: "internal", Message: err.Error()}

	var pe *fault.ProviderError
	switch {
	case errors.As(err, &pe):
		info.Kind = "provider"
		info.Code = pe.Code
		info.Message = pe.Message
	case errors.Is(err, fault.ErrValidation):
		info.Kind = "validation"
	case errors.Is(err, fault.ErrAlreadyBound):
		info.Kind = "already_bound"
	case errors.Is(err, fault.ErrMissingCredentials):
		info.Kind = "missing_credentials"
	case errors.Is(err, fault.ErrTimeout):
		info.Kind = "timeout"
	case errors.Is(err, ErrCancelled):
		info.Kind = "cancelled"
	case errors.Is(err, ErrModeMismatch):
		info.Kind = "mode_mismatch"
	case errors.Is(err, ErrBusy):
		info.Kind = "busy"
	}
	return info
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	State      State           `json:"state"`
	Mode       Mode            `json:"mode,omitempty"`
	Selected   string          `json:"selected_uuid,omitempty"`
	Scanning   bool            `json:"scanning"`
	Compatible []ScannedDevice `json:"compatible"`
	Other      []ScannedDevice `json:"other"`
	AttemptID  string          `json:"attempt_id,omitempty"`
	Progress   Step            `json:"progress,omitempty"`
	LastError  *ErrorInfo      `json:"last_error,omitempty"`
	LastPaired *PairedDevice   `json:"last_paired,omitempty"`
}
