// Package logging provides structured logging for ThingLink Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text in development, with service and version attributes on
// every record.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	pairingLog := logger.Component("pairing")
//	pairingLog.Info("activation started", "mode", "BLE")
//
// Never log WiFi passwords or activation tokens.
package logging
