// Package mqtt provides the broker link between ThingLink Core and the
// provider bridge.
//
// The vendor SDK runs inside a bridge process; everything the core asks of it
// (scan, activate, publish a DP command) and everything it reports back
// (discoveries, DP updates, online changes) travels over MQTT:
//
//	ThingLink Core ↔ MQTT Broker ↔ Provider Bridge ↔ Vendor cloud/radio
//
// The package handles connection management, auto-reconnect with
// subscription restore, a retained presence record with Last Will, and
// validation of topics, QoS and payload size. Topic layout belongs to the
// provider package.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, "thinglink/core/status")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
