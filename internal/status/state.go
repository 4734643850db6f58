package status

import "time"

// DeviceState is the last known status of one device.
type DeviceState struct {
	DeviceID   string         `json:"device_id"`
	Online     bool           `json:"online"`
	DataPoints map[string]any `json:"data_points"`
	LastUpdate time.Time      `json:"last_update"`
}

// ChangeKind says what kind of update produced a Change.
type ChangeKind string

const (
	ChangeDataPoints ChangeKind = "dp"
	ChangeOnline     ChangeKind = "online"
	ChangeOptimistic ChangeKind = "optimistic"
	ChangeRemoved    ChangeKind = "removed"
)

// Change is delivered to listeners after every mutation. For
// ChangeDataPoints and ChangeOptimistic, Updated holds only the keys the
// update touched.
type Change struct {
	Kind    ChangeKind     `json:"kind"`
	State   DeviceState    `json:"state"`
	Updated map[string]any `json:"updated,omitempty"`
}

// DeepCopy returns a copy sharing no mutable memory with s.
func (s DeviceState) DeepCopy() DeviceState {
	out := s
	out.DataPoints = copyMap(s.DataPoints)
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}
