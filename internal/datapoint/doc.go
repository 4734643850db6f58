// Package datapoint encodes and decodes device data points (DPs).
//
// A DP is a vendor-assigned integer attribute on a device (power,
// brightness, colour) with a typed value contract described by a
// Descriptor. The Codec turns a caller's raw value into the wire command the
// provider publishes, and turns inbound state blobs back into values.
//
// # Encoding
//
//	boolean  truthiness (nil, false, 0, "" and NaN are false)
//	integer  parsed, then clamped into the descriptor range
//	enum     must be one of Options, otherwise *fault.InvalidEnumValueError
//	json     object value, emitted as a canonical string; schema-checked if set
//	string   passed through unchanged
//
// The result is wrapped as {"<id>": value} and serialised.
//
// # Decoding
//
// Decode is total. Strict JSON is tried first; a legacy flat
// "{1=true, 2=500}" map text is the fallback; anything else yields an empty
// map and a warning log. State telemetry must never crash the status
// pipeline.
//
// The Registry is immutable after construction and may be shared freely
// between goroutines.
package datapoint
