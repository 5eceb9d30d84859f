package alarm

import "errors"

// Sentinel errors for command intake and transitions.
var (
	// ErrUnknownCommand indicates an inbound payload that is not a
	// recognised panel command. Logged, no transition, no disconnect.
	ErrUnknownCommand = errors.New("unknown alarm command")

	// ErrInvalidTransition indicates a recognised command that is not
	// valid in the current state. State is unchanged.
	ErrInvalidTransition = errors.New("invalid alarm transition")

	// ErrUnknownState indicates a persisted state string that cannot
	// be parsed. The controller falls back to disarmed.
	ErrUnknownState = errors.New("unknown alarm state")
)
