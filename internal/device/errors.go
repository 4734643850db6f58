package device

import "errors"

// Domain errors.
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidDevice  = errors.New("invalid device")
	ErrKeyNotFound    = errors.New("key not found")
)
