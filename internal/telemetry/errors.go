package telemetry

import "errors"

// Sentinel errors for telemetry operations.
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("telemetry: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrDisabled indicates telemetry is disabled in config.
	// Not a failure: the node runs fine without it.
	ErrDisabled = errors.New("telemetry: disabled in configuration")
)
