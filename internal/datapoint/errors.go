package datapoint

import "errors"

var (
	// ErrUnknownDataPoint is returned when an id or code is not registered.
	ErrUnknownDataPoint = errors.New("datapoint: unknown data point")

	// ErrInvalidDescriptor is returned by NewRegistry for malformed descriptors.
	ErrInvalidDescriptor = errors.New("datapoint: invalid descriptor")
)
