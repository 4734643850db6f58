package datapoint

import "encoding/json"

// Standard DP codes shared by the lighting and socket product families.
const (
	CodeSwitch1    = "switch_1"
	CodeCountdown1 = "countdown_1"
	CodeSwitchLED  = "switch_led"
	CodeWorkMode   = "work_mode"
	CodeBright     = "bright_value"
	CodeTemp       = "temp_value"
	CodeColour     = "colour_data"
	CodeScene      = "scene_data"
	CodeCountdown  = "countdown"
)

const colourSchema = `{
  "type": "object",
  "required": ["h", "s", "v"],
  "properties": {
    "h": {"type": "integer", "minimum": 0, "maximum": 360},
    "s": {"type": "integer", "minimum": 0, "maximum": 1000},
    "v": {"type": "integer", "minimum": 0, "maximum": 1000}
  },
  "additionalProperties": false
}`

const sceneSchema = `{
  "type": "object",
  "required": ["scene_num"],
  "properties": {
    "scene_num": {"type": "integer", "minimum": 1, "maximum": 8},
    "scene_units": {"type": "array"}
  }
}`

var defaultRegistry = MustRegistry(
	Descriptor{ID: 1, Code: CodeSwitch1, Name: "Power", Description: "Socket relay", Type: TypeBoolean},
	Descriptor{ID: 9, Code: CodeCountdown1, Name: "Socket Timer", Description: "Seconds until the relay toggles", Type: TypeInteger, Range: &Range{Min: 0, Max: 86400}, Unit: "s"},
	Descriptor{ID: 20, Code: CodeSwitchLED, Name: "Light", Description: "Light on/off", Type: TypeBoolean},
	Descriptor{ID: 21, Code: CodeWorkMode, Name: "Mode", Description: "Lighting mode", Type: TypeEnum, Options: []string{"white", "colour", "scene", "music"}},
	Descriptor{ID: 22, Code: CodeBright, Name: "Brightness", Description: "White brightness", Type: TypeInteger, Range: &Range{Min: 10, Max: 1000}},
	Descriptor{ID: 23, Code: CodeTemp, Name: "Colour Temperature", Description: "Warm to cool", Type: TypeInteger, Range: &Range{Min: 0, Max: 1000}},
	Descriptor{ID: 24, Code: CodeColour, Name: "Colour", Description: "HSV colour", Type: TypeJSON, Schema: json.RawMessage(colourSchema)},
	Descriptor{ID: 25, Code: CodeScene, Name: "Scene", Description: "Scene program", Type: TypeJSON, Schema: json.RawMessage(sceneSchema)},
	Descriptor{ID: 26, Code: CodeCountdown, Name: "Timer", Description: "Seconds until the light toggles", Type: TypeInteger, Range: &Range{Min: 0, Max: 86400}, Unit: "s"},
)

// DefaultRegistry returns the built-in descriptors for common lights and
// sockets.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
