package node

import "errors"

// Sentinel errors for the node runtime.
var (
	// ErrMailboxFull indicates the publish queue is saturated; the
	// message is dropped rather than blocking the caller.
	ErrMailboxFull = errors.New("publish mailbox full")

	// ErrRestartRequested is returned by Run when a REBOOT command or a
	// completed firmware update asks for a restart. Not a failure:
	// main exits cleanly and the supervisor restarts the process.
	ErrRestartRequested = errors.New("restart requested")
)
