// Package config handles loading and validating ThingLink Core configuration.
//
// Values come from three layers, later layers winning:
//   - hardcoded defaults
//   - the YAML file
//   - THINGLINK_* environment variables
//
// Every pairing and provider timeout is expressed in milliseconds, including
// the WIFI_EZ activation window.
//
// Secrets (JWT secret, API key, MQTT password, InfluxDB token) should be set
// through the environment and the file kept at 0600.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
