package alarm

import (
	"fmt"
	"strings"
	"time"
)

// State is the alarm panel state.
type State int

const (
	StateDisarmed State = iota
	StateArmedHome
	StateArmedAway

	// StateArming is the exit-delay window after an arm command,
	// before the panel reaches its armed state.
	StateArming

	StatePending
	StateTriggered
)

// String returns the Home Assistant state string published to the
// panel's state topic.
func (s State) String() string {
	switch s {
	case StateDisarmed:
		return "disarmed"
	case StateArmedHome:
		return "armed_home"
	case StateArmedAway:
		return "armed_away"
	case StateArming:
		return "arming"
	case StatePending:
		return "pending"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// ParseState converts a persisted state string back to a State.
// Arming and Pending are timing states and never persist as themselves
// (see persistedState), so they are not accepted here.
func ParseState(s string) (State, error) {
	switch s {
	case "disarmed":
		return StateDisarmed, nil
	case "armed_home":
		return StateArmedHome, nil
	case "armed_away":
		return StateArmedAway, nil
	case "triggered":
		return StateTriggered, nil
	default:
		return StateDisarmed, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
}

// Armed reports whether sensors should be able to trip the alarm.
// Arming does not count: motion on the way out must not trip.
func (s State) Armed() bool {
	return s == StateArmedHome || s == StateArmedAway
}

// Event drives a state transition.
type Event int

const (
	// EventArmHome and EventArmAway arrive as panel commands.
	EventArmHome Event = iota
	EventArmAway
	EventDisarm

	// EventTrigger is the manual trigger panel command.
	EventTrigger

	// EventUntrigger silences a triggered or pending alarm back to its
	// armed mode without disarming.
	EventUntrigger

	// EventSensorTrip is sourced internally by the sensor poll loop.
	EventSensorTrip

	// EventArmingComplete is sourced internally when the arming window
	// elapses.
	EventArmingComplete
)

// String returns the event's wire name.
func (e Event) String() string {
	switch e {
	case EventArmHome:
		return "ARM_HOME"
	case EventArmAway:
		return "ARM_AWAY"
	case EventDisarm:
		return "DISARM"
	case EventTrigger:
		return "TRIGGER"
	case EventUntrigger:
		return "UNTRIGGER"
	case EventSensorTrip:
		return "SENSOR_TRIP"
	case EventArmingComplete:
		return "ARMING_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ArmTarget returns the armed state an arm event ultimately reaches.
func (e Event) ArmTarget() (State, bool) {
	switch e {
	case EventArmHome:
		return StateArmedHome, true
	case EventArmAway:
		return StateArmedAway, true
	default:
		return StateDisarmed, false
	}
}

// Params carries the controller-owned context a transition needs
// beyond (state, event): configured delays and the armed-mode memory
// consumed by UNTRIGGER and arming completion.
type Params struct {
	// EntryDelay is the pending window before a sensor trip escalates.
	// Zero escalates immediately.
	EntryDelay time.Duration

	// ArmingDelay is the exit window an arm command waits in Arming.
	// Zero arms immediately.
	ArmingDelay time.Duration

	// ArmTarget is the armed state an in-flight arming completes to.
	ArmTarget State

	// ArmedMode is the armed state UNTRIGGER returns to; the mode the
	// panel was in when it tripped. Falls back to armed_away, matching
	// the single armed mode of panels that do not track it.
	ArmedMode State
}

// ParseCommand maps an inbound command payload to an event.
// Matching is case-insensitive; anything unrecognized is rejected with
// ErrUnknownCommand and causes no transition.
func ParseCommand(payload string) (Event, error) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "ARM_HOME":
		return EventArmHome, nil
	case "ARM_AWAY":
		return EventArmAway, nil
	case "DISARM":
		return EventDisarm, nil
	case "TRIGGER":
		return EventTrigger, nil
	case "UNTRIGGER":
		return EventUntrigger, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, payload)
	}
}

// Next computes the state that follows from applying an event.
//
// Pure function of (state, event, params); the controller owns timing,
// persistence and publication around it.
//
// Rules:
//   - Arm commands are only valid from Disarmed, and pass through
//     Arming when an arming delay is configured.
//   - DISARM is valid from every state and is idempotent.
//   - SENSOR_TRIP while armed enters Pending when an entry delay is
//     configured, otherwise goes straight to Triggered. Trips in any
//     other state, including Arming, are ignored without error.
//   - TRIGGER (manual) fires from any armed or pending state.
//   - UNTRIGGER silences Pending or Triggered back to the armed mode.
//
// Returns:
//   - State: The resulting state (equal to from when nothing changes)
//   - error: ErrInvalidTransition when the event is not valid in from
func Next(from State, event Event, p Params) (State, error) {
	switch event {
	case EventArmHome, EventArmAway:
		if from != StateDisarmed {
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
		}
		if p.ArmingDelay > 0 {
			return StateArming, nil
		}
		target, _ := event.ArmTarget()
		return target, nil

	case EventDisarm:
		return StateDisarmed, nil

	case EventTrigger:
		switch from {
		case StateArmedHome, StateArmedAway, StatePending, StateTriggered:
			return StateTriggered, nil
		default:
			return from, fmt.Errorf("%w: TRIGGER from %s", ErrInvalidTransition, from)
		}

	case EventUntrigger:
		switch from {
		case StatePending, StateTriggered:
			if p.ArmedMode.Armed() {
				return p.ArmedMode, nil
			}
			return StateArmedAway, nil
		default:
			return from, fmt.Errorf("%w: UNTRIGGER from %s", ErrInvalidTransition, from)
		}

	case EventSensorTrip:
		if !from.Armed() {
			// Trips outside armed states are routine, not errors.
			return from, nil
		}
		if p.EntryDelay > 0 {
			return StatePending, nil
		}
		return StateTriggered, nil

	case EventArmingComplete:
		if from != StateArming {
			return from, fmt.Errorf("%w: arming completion from %s", ErrInvalidTransition, from)
		}
		if p.ArmTarget.Armed() {
			return p.ArmTarget, nil
		}
		return StateArmedAway, nil

	default:
		return from, fmt.Errorf("%w: event %d", ErrInvalidTransition, event)
	}
}
