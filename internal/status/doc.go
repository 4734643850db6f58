// Package status keeps the last known state of every device the provider
// reports on.
//
// A DeviceState holds the online flag, the decoded data points and the
// time of the last update. Inbound provider events mutate the Store; API
// handlers and the WebSocket hub read it. Every write is last-write-wins
// and reads return deep copies, so callers never observe a map that a
// later update is mutating.
//
// Listeners registered with OnChange are called after the write lock is
// released, in registration order, on the goroutine that applied the
// update.
package status
