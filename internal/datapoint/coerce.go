package datapoint

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// truthy mirrors loose boolean coercion: nil, false, zero numbers, NaN and
// the empty string are false; everything else, including "false" and empty
// objects, is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0 && !math.IsNaN(f)
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0 && !math.IsNaN(float64(x))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// parseInteger converts v to an integer. Floats truncate toward zero and
// saturate at the int64 limits; strings use their leading integer
// ("42abc" is 42). Anything without digits is rejected.
func parseInteger(v any) (int64, bool) {
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case string:
		return parseLeadingInt(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil {
			return parseLeadingInt(x.String())
		}
		return floatToInt(f)
	case float64:
		return floatToInt(x)
	case float32:
		return floatToInt(float64(x))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(u), true
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}

// parseLeadingInt parses an optional sign and the digits that follow,
// ignoring leading whitespace and anything after the digits.
func parseLeadingInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		// Out of range: ParseInt already returns the saturated value.
		if errors.Is(err, strconv.ErrRange) {
			return n, true
		}
		return 0, false
	}
	return n, true
}

// asObject returns v as a JSON object tree. Maps and structs are
// round-tripped through JSON; strings must contain a JSON object.
func asObject(v any) (map[string]any, bool) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		raw = []byte(x)
	case json.RawMessage:
		raw = x
	case []byte:
		raw = x
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		raw = b
	}

	m, ok := decodeStrict(string(raw))
	if !ok {
		return nil, false
	}
	return toJSONNumbers(m), true
}

// normaliseNumbers turns json.Number leaves into int64 or float64.
func normaliseNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = normaliseNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normaliseNumbers(e)
		}
		return x
	}
	return v
}

// toJSONNumbers converts numeric leaves back to json.Number so schema
// validation sees exact values and re-encoding keeps integer text.
func toJSONNumbers(v map[string]any) map[string]any {
	var conv func(any) any
	conv = func(e any) any {
		switch x := e.(type) {
		case int64:
			return json.Number(strconv.FormatInt(x, 10))
		case float64:
			return json.Number(strconv.FormatFloat(x, 'f', -1, 64))
		case map[string]any:
			for k, v := range x {
				x[k] = conv(v)
			}
			return x
		case []any:
			for i, v := range x {
				x[i] = conv(v)
			}
			return x
		}
		return e
	}
	return conv(v).(map[string]any)
}
