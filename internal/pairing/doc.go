// Package pairing drives device discovery and activation against the
// provider bridge.
//
// Three pieces cooperate:
//
//   - ActivationAdapter is the capability interface the provider client
//     implements (token fetch, per-mode activate and stop, scan start/stop).
//   - ScanSession owns the single discovery window. Devices are keyed by
//     UUID; a later sighting replaces an earlier one.
//   - Coordinator is the state machine:
//
//	ModeSelection -> Scanning -> DeviceList -> (WifiSetup) -> Activating -> Success
//
// with Failed and Cancelled reachable from every non-terminal state.
//
// Only one activation may be in flight per Coordinator; a second request
// gets ErrBusy immediately. The Coordinator owns the activation timer and
// ignores results and progress that arrive for an attempt after it was
// cancelled or timed out.
//
// Timeouts are time.Duration in Go code. Configuration and the bridge wire
// format carry them as integer milliseconds.
package pairing
