package influxdb

import "encoding/json"

// toText renders structured DP values (colour objects, scene lists) as JSON.
func toText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
