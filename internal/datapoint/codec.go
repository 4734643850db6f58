package datapoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

// Logger is the logging surface the codec needs.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Command is an encoded DP write ready for the provider.
type Command struct {
	DPID  string
	Value any
	// Wire is the serialised {"<id>": value} map.
	Wire string
}

// Codec encodes commands and decodes state blobs against a Registry.
//
// Thread Safety: safe for concurrent use; the registry is read-only.
type Codec struct {
	registry *Registry
	logger   Logger
}

// NewCodec creates a codec over reg. A nil reg uses DefaultRegistry.
func NewCodec(reg *Registry) *Codec {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Codec{registry: reg, logger: noopLogger{}}
}

// SetLogger sets the logger used for decode warnings.
func (c *Codec) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	c.logger = l
}

// Registry returns the codec's descriptor registry.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// Encode validates raw against desc and builds the wire command.
func (c *Codec) Encode(desc Descriptor, raw any) (Command, error) {
	value, err := c.processValue(desc, raw)
	if err != nil {
		return Command{}, err
	}

	key := desc.Key()
	wire, err := canonicalJSON(map[string]any{key: value})
	if err != nil {
		return Command{}, &fault.ValidationError{Field: key, Value: raw, Reason: "value is not serialisable"}
	}
	return Command{DPID: key, Value: value, Wire: wire}, nil
}

// EncodeID looks up id and encodes raw.
func (c *Codec) EncodeID(id int, raw any) (Command, error) {
	desc, ok := c.registry.Lookup(id)
	if !ok {
		return Command{}, fmt.Errorf("%w: %d", ErrUnknownDataPoint, id)
	}
	return c.Encode(desc, raw)
}

// EncodeCode looks up a vendor code and encodes raw.
func (c *Codec) EncodeCode(code string, raw any) (Command, error) {
	desc, ok := c.registry.LookupCode(code)
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownDataPoint, code)
	}
	return c.Encode(desc, raw)
}

func (c *Codec) processValue(desc Descriptor, raw any) (any, error) {
	switch desc.Type {
	case TypeBoolean:
		return truthy(raw), nil

	case TypeInteger:
		n, ok := parseInteger(raw)
		if !ok {
			return nil, &fault.ValidationError{Field: desc.Key(), Value: raw, Reason: "not an integer"}
		}
		if desc.Range != nil {
			n = desc.Range.Clamp(n)
		}
		return n, nil

	case TypeEnum:
		s, ok := raw.(string)
		if !ok || !desc.HasOption(s) {
			return nil, &fault.InvalidEnumValueError{
				DPID:    desc.Key(),
				Value:   raw,
				Allowed: append([]string(nil), desc.Options...),
			}
		}
		return s, nil

	case TypeJSON:
		obj, ok := asObject(raw)
		if !ok {
			return nil, &fault.ValidationError{Field: desc.Key(), Value: raw, Reason: "expected a JSON object"}
		}
		if sch := c.registry.schema(desc.ID); sch != nil {
			if err := sch.Validate(obj); err != nil {
				return nil, &fault.ValidationError{Field: desc.Key(), Value: raw, Reason: schemaReason(err)}
			}
		}
		s, err := canonicalJSON(obj)
		if err != nil {
			return nil, &fault.ValidationError{Field: desc.Key(), Value: raw, Reason: "value is not serialisable"}
		}
		return s, nil

	case TypeString:
		return raw, nil
	}

	return nil, &fault.ValidationError{Field: desc.Key(), Value: raw, Reason: "unsupported type " + string(desc.Type)}
}

// schemaReason flattens a jsonschema error to a single line.
func schemaReason(err error) string {
	msg := strings.ReplaceAll(err.Error(), "\n", "; ")
	return "schema: " + msg
}

// Decode parses a state blob into a map keyed by DP id. It never fails:
// malformed input yields an empty map and a warning.
func (c *Codec) Decode(blob string) map[string]any {
	if m, ok := decodeStrict(blob); ok {
		return m
	}
	if m, ok := decodeLegacy(blob); ok {
		return m
	}
	c.logger.Warn("undecodable dp state blob", "blob", truncate(blob, maxLoggedBlob))
	return map[string]any{}
}

// ToReadable decodes blob and re-keys registered ids by their readable
// name. Unknown keys keep their raw key.
func (c *Codec) ToReadable(blob string) map[string]any {
	return c.Readable(c.Decode(blob))
}

// Readable re-keys an already decoded map.
func (c *Codec) Readable(decoded map[string]any) map[string]any {
	out := make(map[string]any, len(decoded))
	for k, v := range decoded {
		if d, ok := c.registry.LookupKey(k); ok {
			out[d.ReadableName()] = v
			continue
		}
		out[k] = v
	}
	return out
}

const maxLoggedBlob = 256

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// decodeStrict accepts only a JSON object. Integral numbers become int64.
func decodeStrict(blob string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(blob))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	// Anything after the object, including a stray closing delimiter,
	// means this is not JSON.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	for k, v := range m {
		m[k] = normaliseNumbers(v)
	}
	return m, true
}

// canonicalJSON marshals v with sorted keys and no HTML escaping.
func canonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// NameOf returns the readable name for a wire key, or the key itself.
func (c *Codec) NameOf(key string) string {
	if d, ok := c.registry.LookupKey(key); ok {
		return d.ReadableName()
	}
	return key
}
