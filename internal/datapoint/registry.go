package datapoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Registry is an immutable set of descriptors keyed by id and code.
type Registry struct {
	byID    map[int]Descriptor
	byCode  map[string]int
	schemas map[int]*jsonschema.Schema
}

// NewRegistry validates descs and builds a registry. Ids and codes must be
// unique; JSON schemas are compiled up front.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byID:    make(map[int]Descriptor, len(descs)),
		byCode:  make(map[string]int, len(descs)),
		schemas: make(map[int]*jsonschema.Schema),
	}

	for _, d := range descs {
		if err := d.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidDescriptor, d.ID)
		}
		if d.Code != "" {
			if _, dup := r.byCode[d.Code]; dup {
				return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidDescriptor, d.Code)
			}
			r.byCode[d.Code] = d.ID
		}
		if len(d.Schema) > 0 {
			sch, err := compileSchema(d.ID, d.Schema)
			if err != nil {
				return nil, err
			}
			r.schemas[d.ID] = sch
		}

		d.Options = append([]string(nil), d.Options...)
		d.Schema = append(json.RawMessage(nil), d.Schema...)
		if d.Range != nil {
			rng := *d.Range
			d.Range = &rng
		}
		r.byID[d.ID] = d
	}

	return r, nil
}

// MustRegistry is NewRegistry for static tables; it panics on error.
func MustRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func compileSchema(id int, raw json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: dp %d schema: %w", ErrInvalidDescriptor, id, err)
	}

	url := "https://thinglink.local/datapoints/" + strconv.Itoa(id) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: dp %d schema: %w", ErrInvalidDescriptor, id, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: dp %d schema: %w", ErrInvalidDescriptor, id, err)
	}
	return sch, nil
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id int) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// LookupKey resolves a wire key such as "22". Only the canonical decimal
// form matches, so "022" and "+22" stay distinct keys.
func (r *Registry) LookupKey(key string) (Descriptor, bool) {
	id, err := strconv.Atoi(key)
	if err != nil || strconv.Itoa(id) != key {
		return Descriptor{}, false
	}
	return r.Lookup(id)
}

// LookupCode resolves a vendor code such as "bright_value".
func (r *Registry) LookupCode(code string) (Descriptor, bool) {
	id, ok := r.byCode[code]
	if !ok {
		return Descriptor{}, false
	}
	return r.Lookup(id)
}

// All returns every descriptor ordered by id.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of descriptors.
func (r *Registry) Len() int {
	return len(r.byID)
}

func (r *Registry) schema(id int) *jsonschema.Schema {
	return r.schemas[id]
}

// registryFile is the on-disk YAML layout.
type registryFile struct {
	DataPoints []yamlDescriptor `yaml:"datapoints"`
}

type yamlDescriptor struct {
	ID          int      `yaml:"id"`
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        Type     `yaml:"type"`
	Range       *Range   `yaml:"range"`
	Options     []string `yaml:"options"`
	Unit        string   `yaml:"unit"`
	// Schema is either a JSON string or an inline YAML mapping.
	Schema any `yaml:"schema"`
}

// LoadRegistry reads descriptors from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading datapoint registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses descriptors from YAML bytes.
func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing datapoint registry: %w", err)
	}

	descs := make([]Descriptor, 0, len(file.DataPoints))
	for _, y := range file.DataPoints {
		d := Descriptor{
			ID:          y.ID,
			Code:        y.Code,
			Name:        y.Name,
			Description: y.Description,
			Type:        y.Type,
			Range:       y.Range,
			Options:     y.Options,
			Unit:        y.Unit,
		}
		switch s := y.Schema.(type) {
		case nil:
		case string:
			d.Schema = json.RawMessage(s)
		default:
			raw, err := json.Marshal(s)
			if err != nil {
				return nil, fmt.Errorf("%w: dp %d schema: %w", ErrInvalidDescriptor, y.ID, err)
			}
			d.Schema = raw
		}
		descs = append(descs, d)
	}

	return NewRegistry(descs...)
}
