package provider

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "thinglink/provider"

// Request actions understood by the bridge.
const (
	ActionGetToken       = "get_token"
	ActionStartScan      = "start_scan"
	ActionStopScan       = "stop_scan"
	ActionActivateBLE    = "activate_ble"
	ActionStopBLE        = "stop_ble"
	ActionActivateCombo  = "activate_combo"
	ActionStopCombo      = "stop_combo"
	ActionActivateWifiEz = "activate_wifi_ez"
	ActionStopWifiEz     = "stop_wifi_ez"
	ActionPublishDPs     = "publish_dps"
	ActionRemoveDevice   = "remove_device"
	ActionWatchHomes     = "watch_homes"
	ActionUnwatchHomes   = "unwatch_homes"
	ActionPing           = "ping"
)

// Device event kinds, the last topic segment.
const (
	DeviceEventDP      = "dp"
	DeviceEventStatus  = "status"
	DeviceEventRemoved = "removed"
)

// Topics builds and parses bridge topics.
type Topics struct {
	prefix string
}

// NewTopics returns topics under prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string { return t.prefix }

// Topic builders.

func (t Topics) Request(action string) string { return t.prefix + "/request/" + action }
func (t Topics) Response(requestID string) string { return t.prefix + "/response/" + requestID }
func (t Topics) Responses() string { return t.prefix + "/response/+" }
func (t Topics) ScanEvents() string { return t.prefix + "/event/scan" }
func (t Topics) ProgressEvents() string { return t.prefix + "/event/progress" }
func (t Topics) DeviceEvents() string { return t.prefix + "/event/device/+/+" }
func (t Topics) HomeEvents() string { return t.prefix + "/event/home/+/+" }
func (t Topics) BridgeStatus() string { return t.prefix + "/status" }
func (t Topics) CoreStatus() string { return t.prefix + "/core/status" }
func (t Topics) DeviceEvent(devID, kind string) string {
	return t.prefix + "/event/device/" + devID + "/" + kind
}
func (t Topics) HomeEvent(homeID, kind string) string {
	return t.prefix + "/event/home/" + homeID + "/" + kind
}

// ParseDeviceEvent extracts the device id and kind from a device topic.
func (t Topics) ParseDeviceEvent(topic string) (devID, kind string, ok bool) {
	return t.parsePair(topic, "/event/device/")
}

// ParseHomeEvent extracts the home id and kind from a home topic.
func (t Topics) ParseHomeEvent(topic string) (homeID, kind string, ok bool) {
	return t.parsePair(topic, "/event/home/")
}

// ParseResponse extracts the request id from a response topic.
func (t Topics) ParseResponse(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/response/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

func (t Topics) parsePair(topic, infix string) (string, string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix+infix)
	if !ok {
		return "", "", false
	}
	id, kind, ok := strings.Cut(rest, "/")
	if !ok || id == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return id, kind, true
}
