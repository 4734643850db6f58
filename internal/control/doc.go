// Package control sends data point commands to paired devices.
//
// A command is encoded by the datapoint codec, published through the
// provider bridge and then applied optimistically to the status store,
// so UIs reflect it before the device confirms. A value the codec
// rejects never reaches the provider.
//
// Named commands (power, brightness, colour, ...) map onto the standard
// lighting and socket DP codes. Power targets switch_led when the device
// reports it and falls back to the socket relay switch_1 otherwise.
package control
