// Package telemetry writes alarm node events to InfluxDB.
//
// Optional: when disabled in config the node runs without it and the
// hooks that would feed it are simply not installed. Writes are
// non-blocking and batched; failures surface through an error callback,
// never into the alarm or sensor paths.
package telemetry
