// Package provider talks to the vendor bridge over MQTT.
//
// The bridge is a sidecar that wraps the vendor SDK. The core sends it
// requests and receives replies and events on topics under a configurable
// prefix (default "thinglink/provider"):
//
//	{p}/request/{action}                     core -> bridge, JSON request
//	{p}/response/{request_id}                bridge -> core, JSON reply
//	{p}/event/scan                           discovered device
//	{p}/event/progress                       activation step
//	{p}/event/device/{devId}/dp|status|removed
//	{p}/event/home/{homeId}/added|removed|info
//	{p}/status                               bridge presence (retained)
//
// Client implements pairing.ActivationAdapter and control.Publisher on top
// of that request/reply exchange. Dispatcher routes events to the scan
// session, the coordinator and the status store. Supervisor runs the
// bridge binary when the core is configured to manage it.
package provider
