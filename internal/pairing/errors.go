package pairing

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when an activation is already in flight.
	ErrBusy = errors.New("pairing: activation already in progress")

	// ErrInvalidState is returned for an operation the current state does
	// not allow.
	ErrInvalidState = errors.New("pairing: operation not valid in current state")

	// ErrInvalidMode is returned for an unknown pairing mode.
	ErrInvalidMode = errors.New("pairing: invalid mode")

	// ErrUnknownDevice is returned when a UUID is not in the scan set.
	ErrUnknownDevice = errors.New("pairing: device not in scan results")

	// ErrCancelled is the result error of an attempt cancelled by the caller.
	ErrCancelled = errors.New("pairing: attempt cancelled")

	// ErrModeMismatch is the sentinel behind ModeMismatchError.
	ErrModeMismatch = errors.New("pairing: device not compatible with mode")
)

// ModeMismatchError is the decision point raised when the selected device
// needs a different mode. The caller may confirm with ConfirmModeSwitch.
type ModeMismatchError struct {
	UUID      string
	Current   Mode
	Suggested Mode
}

func (e *ModeMismatchError) Error() string {
	return fmt.Sprintf("device %s needs mode %s, current mode is %s", e.UUID, e.Suggested, e.Current)
}

func (e *ModeMismatchError) Unwrap() error { return ErrModeMismatch }
