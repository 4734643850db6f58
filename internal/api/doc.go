// Package api provides the HTTP REST API and WebSocket server for
// ThingLink Core.
//
// It exposes the pairing flow, paired devices, live device status, DP
// commands and the data point registry to user interfaces, and pushes
// pairing events, device status changes and home changes over a
// WebSocket hub.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
