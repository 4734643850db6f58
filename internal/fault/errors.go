package fault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels. Each typed error below unwraps to exactly one of these.
var (
	// ErrValidation marks input rejected locally before any provider call.
	ErrValidation = errors.New("validation failed")

	// ErrProvider marks a scan, activation or publish rejected by the provider.
	ErrProvider = errors.New("provider error")

	// ErrAlreadyBound marks a device that is already bound to an account.
	ErrAlreadyBound = errors.New("device already bound")

	// ErrMissingCredentials marks a WiFi pairing attempted without ssid or password.
	ErrMissingCredentials = errors.New("wifi credentials missing")

	// ErrTimeout marks a scan or activation whose window elapsed.
	ErrTimeout = errors.New("timed out")

	// ErrNoActiveScan is what a provider reports when asked to stop a scan
	// that is not running. Matched by ProviderError.Is on CodeNoActiveScan.
	ErrNoActiveScan = errors.New("no active scan")
)

// CodeNoActiveScan is the provider code for stopping an idle scanner.
const CodeNoActiveScan = "NO_ACTIVE_SCAN"

// ValidationError describes a rejected input value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s (got %v)", e.Field, e.Reason, e.Value)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidEnumValueError is returned when an enum DP receives a value outside
// its option list.
type InvalidEnumValueError struct {
	DPID    string
	Value   any
	Allowed []string
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("invalid enum value %v for dp %s (allowed: %s)", e.Value, e.DPID, strings.Join(e.Allowed, ", "))
}

func (e *InvalidEnumValueError) Unwrap() error { return ErrValidation }

// ProviderError carries the provider-supplied code and message verbatim.
type ProviderError struct {
	Op      string
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider")
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	b.WriteString(" failed")
	if e.Code != "" {
		b.WriteString(" [" + e.Code + "]")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

// Is lets errors.Is(err, ErrNoActiveScan) match the provider's idle-scan code.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNoActiveScan && e.Code == CodeNoActiveScan
}

// AlreadyBoundError is returned before activation for a bound device.
type AlreadyBoundError struct {
	UUID string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("device %s is already bound", e.UUID)
}

func (e *AlreadyBoundError) Unwrap() error { return ErrAlreadyBound }

// MissingCredentialsError lists the absent WiFi fields.
type MissingCredentialsError struct {
	Missing []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("wifi credentials missing: %s", strings.Join(e.Missing, ", "))
}

func (e *MissingCredentialsError) Unwrap() error { return ErrMissingCredentials }

// TimeoutError is raised by the core's own timers.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// Provider builds a ProviderError; an empty code defaults to "UNKNOWN".
func Provider(op, code, message string) *ProviderError {
	if code == "" {
		code = "UNKNOWN"
	}
	return &ProviderError{Op: op, Code: code, Message: message}
}

// AsProvider classifies an error returned by a provider call. Errors that
// already belong to the taxonomy and context errors pass through; anything
// else becomes a ProviderError for op.
func AsProvider(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrProvider), errors.Is(err, ErrValidation),
		errors.Is(err, ErrTimeout), errors.Is(err, ErrAlreadyBound),
		errors.Is(err, ErrMissingCredentials):
		return err
	}
	return Provider(op, "", err.Error())
}
