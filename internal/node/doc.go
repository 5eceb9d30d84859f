// Package node is the runtime that wires the compiled entity registry
// to the MQTT session.
//
// All outbound traffic flows through one mailbox goroutine that owns
// the publish path, preserving per-topic ordering across components.
// Inbound messages dispatch by registry topic lookup: panel commands to
// the alarm controller, firmware chunks to the updater, key=value
// updates to the settings intake. Every became-ready event republishes
// discovery documents, alarm state and sensor levels.
//
// A REBOOT panel command or a completed firmware update surfaces as
// ErrRestartRequested from Run; main exits and the service supervisor
// restarts the process into the new image.
package node
