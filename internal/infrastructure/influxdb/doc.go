// Package influxdb writes device telemetry to InfluxDB 2.x.
//
// Every decoded DP value that reaches the status store is mirrored here as
// a dp_value point tagged by device and DP id, alongside online transitions
// and pairing attempt outcomes. Writes are batched and non-blocking; a
// disconnected client silently drops points so telemetry can never stall the
// status pipeline.
package influxdb
