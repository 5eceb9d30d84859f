// Package alarm implements the alarm panel state machine.
//
// The transition table is a pure function (Next); the Controller wraps
// it with everything stateful: command intake off the panel's command
// topic, sensor trips from the poll loop, the deadline tick, retained
// state publication, siren output and persistence.
//
// States follow the Home Assistant alarm panel model: disarmed,
// arming, armed_home, armed_away, pending, triggered. Arming is the
// exit window between an arm command and the armed state; Pending is
// the entry delay window and escalates to triggered unless disarmed
// first.
package alarm
