package datapoint

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Type is the value contract of a data point.
type Type string

const (
	TypeBoolean Type = "boolean"
	TypeInteger Type = "integer"
	TypeEnum    Type = "enum"
	TypeJSON    Type = "json"
	TypeString  Type = "string"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeBoolean, TypeInteger, TypeEnum, TypeJSON, TypeString:
		return true
	}
	return false
}

// Range bounds an integer DP, inclusive.
type Range struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Clamp returns v limited to [Min, Max].
func (r Range) Clamp(v int64) int64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Descriptor describes one data point.
type Descriptor struct {
	ID          int             `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        Type            `json:"type"`
	Range       *Range          `json:"range,omitempty"`
	Options     []string        `json:"options,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Key is the string form of the id used in wire maps.
func (d Descriptor) Key() string {
	return strconv.Itoa(d.ID)
}

// ReadableName is Name, falling back to Code and then the id.
func (d Descriptor) ReadableName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Code != "":
		return d.Code
	default:
		return d.Key()
	}
}

// HasOption reports whether s is one of the enum options.
func (d Descriptor) HasOption(s string) bool {
	for _, o := range d.Options {
		if o == s {
			return true
		}
	}
	return false
}

func (d Descriptor) validate() error {
	if d.ID <= 0 {
		return fmt.Errorf("%w: id %d must be positive", ErrInvalidDescriptor, d.ID)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: dp %d has unknown type %q", ErrInvalidDescriptor, d.ID, d.Type)
	}
	if d.Type == TypeEnum && len(d.Options) == 0 {
		return fmt.Errorf("%w: enum dp %d has no options", ErrInvalidDescriptor, d.ID)
	}
	if d.Range != nil && d.Range.Min > d.Range.Max {
		return fmt.Errorf("%w: dp %d range min %d > max %d", ErrInvalidDescriptor, d.ID, d.Range.Min, d.Range.Max)
	}
	if len(d.Schema) > 0 && d.Type != TypeJSON {
		return fmt.Errorf("%w: dp %d has a schema but type %q", ErrInvalidDescriptor, d.ID, d.Type)
	}
	return nil
}
