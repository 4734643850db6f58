// Package device persists what the core knows about paired devices
// between restarts.
//
// Two stores live here, both on the core's SQLite database:
//
//   - The recent list (paired_devices): every successfully activated
//     device, newest first. Registry caches it in memory; on startup it
//     seeds the status store with offline entries.
//   - KVStore (kv_store): small app-level values such as the session
//     flag, the cached profile and the login method.
//
// Live device state is not stored here. It is rebuilt from provider
// events by the status package.
package device
