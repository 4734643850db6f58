package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the core.
const (
	MeasurementDataPoint = "dp_value"
	MeasurementOnline    = "device_online"
	MeasurementPairing   = "pairing_attempt"
)

// WriteDataPoint records one decoded DP value. It implements status.Sink.
//
// Booleans and numbers go to the numeric "value" field; strings and
// structured values (colour objects, scene lists) go to "text" as JSON.
// Nil values are skipped.
//
// Parameters:
//   - deviceID: Provider device id, stored as the device_id tag
//   - dpID: Wire key of the data point, e.g. "22"
//   - name: Readable DP name for the dp_name tag; empty omits the tag
//   - value: Decoded value from the codec
//   - at: Point timestamp
//
// The write is non-blocking; failures surface through SetOnError.
func (c *Client) WriteDataPoint(deviceID, dpID, name string, value any, at time.Time) {
	point, ok := dataPointPoint(deviceID, dpID, name, value, at)
	if !ok {
		return
	}
	c.write(point)
}

// WriteOnline records a device connectivity change.
func (c *Client) WriteOnline(deviceID string, online bool, at time.Time) {
	c.write(write.NewPoint(
		MeasurementOnline,
		map[string]string{"device_id": deviceID},
		map[string]any{"online": online},
		at,
	))
}

// WritePairingAttempt records the outcome and duration of one activation.
func (c *Client) WritePairingAttempt(mode, result string, duration time.Duration, at time.Time) {
	c.write(write.NewPoint(
		MeasurementPairing,
		map[string]string{"mode": mode, "result": result},
		map[string]any{"duration_ms": duration.Milliseconds()},
		at,
	))
}

func (c *Client) write(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(point)
}

// dataPointPoint builds the point for a DP value, reporting false when the
// value has nothing worth storing.
func dataPointPoint(deviceID, dpID, name string, value any, at time.Time) (*write.Point, bool) {
	tags := map[string]string{"device_id": deviceID, "dp_id": dpID}
	if name != "" {
		tags["dp_name"] = name
	}

	var fields map[string]any
	switch v := value.(type) {
	case nil:
		return nil, false
	case bool:
		n := 0.0
		if v {
			n = 1
		}
		fields = map[string]any{"value": n}
	case int:
		fields = map[string]any{"value": float64(v)}
	case int64:
		fields = map[string]any{"value": float64(v)}
	case float64:
		fields = map[string]any{"value": v}
	case string:
		fields = map[string]any{"text": v}
	default:
		fields = map[string]any{"text": toText(v)}
	}

	return write.NewPoint(MeasurementDataPoint, tags, fields, at), true
}
