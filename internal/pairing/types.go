package pairing

import (
	"time"

	"github.com/nerrad567/thinglink-core/internal/fault"
)

// Mode selects the activation flow.
type Mode string

const (
	ModeBLE    Mode = "BLE"
	ModeCombo  Mode = "COMBO"
	ModeWifiEz Mode = "WIFI_EZ"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeBLE, ModeCombo, ModeWifiEz:
		return true
	}
	return false
}

// Scans reports whether the mode starts with a discovery window.
func (m Mode) Scans() bool {
	return m == ModeBLE || m == ModeCombo
}

// NeedsWifi reports whether the mode requires ssid, password and a token.
func (m Mode) NeedsWifi() bool {
	return m == ModeCombo || m == ModeWifiEz
}

// ConfigType is what a scanned device advertises it can be paired with.
type ConfigType string

const (
	ConfigSingle ConfigType = "SINGLE"
	ConfigWifi   ConfigType = "WIFI"
)

// Valid reports whether ct is a config type some mode can activate.
func (ct ConfigType) Valid() bool {
	return ct == ConfigSingle || ct == ConfigWifi
}

// checkConfigType rejects devices no mode can pair. Without it a mode
// switch would suggest the current mode forever.
func checkConfigType(dev ScannedDevice) error {
	if dev.ConfigType.Valid() {
		return nil
	}
	return &fault.ValidationError{Field: "config_type", Value: dev.ConfigType, Reason: "device advertises no supported pairing mode"}
}

// Compatible reports whether a device advertising ct can be activated in
// mode m.
func Compatible(m Mode, ct ConfigType) bool {
	switch m {
	case ModeBLE:
		return ct == ConfigSingle
	case ModeCombo:
		return ct == ConfigWifi
	}
	return false
}

// ModeFor returns the scanning mode that fits ct.
func ModeFor(ct ConfigType) Mode {
	if ct == ConfigWifi {
		return ModeCombo
	}
	return ModeBLE
}

// ScannedDevice is one device seen during a scan window.
type ScannedDevice struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	MAC        string     `json:"mac"`
	RSSI       int        `json:"rssi"`
	Address    string     `json:"address"`
	UUID       string     `json:"uuid"`
	DeviceType int        `json:"device_type"`
	ProductID  string     `json:"product_id"`
	ConfigType ConfigType `json:"config_type"`
	IsBound    bool       `json:"is_bound"`
	FlagBits   int        `json:"flag_bits"`
}

// ActivationRequest is what the adapter needs for one attempt. Fields a
// mode does not use are left zero.
type ActivationRequest struct {
	AttemptID  string        `json:"attempt_id"`
	Mode       Mode          `json:"mode"`
	HomeID     string        `json:"home_id"`
	UUID       string        `json:"uuid,omitempty"`
	DeviceType int           `json:"device_type,omitempty"`
	ProductID  string        `json:"product_id,omitempty"`
	Address    string        `json:"address,omitempty"`
	MAC        string        `json:"mac,omitempty"`
	IsShared   bool          `json:"is_shared,omitempty"`
	Token      string        `json:"token,omitempty"`
	SSID       string        `json:"ssid,omitempty"`
	Password   string        `json:"-"`
	Timeout    time.Duration `json:"-"`
}

// PairedDevice is the durable record of a successful activation.
type PairedDevice struct {
	DevID     string `json:"dev_id"`
	Name      string `json:"name"`
	IconURL   string `json:"icon_url"`
	ProductID string `json:"product_id"`
	UUID      string `json:"uuid"`
	IsOnline  bool   `json:"is_online"`
}

// Step is an activation progress step reported by the provider.
type Step string

const (
	StepGettingToken     Step = "getting_token"
	StepBroadcastingSSID Step = "broadcasting_ssid"
	StepDeviceConnecting Step = "device_connecting"
	StepDeviceBinding    Step = "device_binding"
	StepSuccess          Step = "success"
)

// Progress is a step event. The bridge echoes the attempt id it was
// given in the activate request; UUID is empty for WIFI_EZ attempts.
type Progress struct {
	AttemptID string `json:"attempt_id,omitempty"`
	UUID      string `json:"uuid,omitempty"`
	Step      Step   `json:"step"`
}
