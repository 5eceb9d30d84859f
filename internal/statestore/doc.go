// Package statestore persists alarm state and runtime settings to the
// node's local SQLite database.
//
// Two small tables: a single-row alarm_state table overwritten on every
// transition, and an alarm_settings key/value table for timeouts tuned
// over MQTT. Both are restored at boot so a power cycle does not disarm
// the panel or lose tuning.
package statestore
