// Package entity compiles the declarative entity document into the
// registry that drives the rest of the node.
//
// This package manages:
//   - Validating the human-authored device/entity declarations
//   - Collecting every violation into one ConfigError (not just the first)
//   - Building the immutable topic, pin and identifier indexes
//
// Compilation happens once at boot, before any networking or hardware is
// touched. A configuration bug is therefore a boot-time failure, never a
// silent runtime misrouting: the node either starts with a consistent
// topic/pin mapping or does not start at all.
//
// The entity kind set is closed ({alarm_control_panel, binary_sensor});
// dispatch over kinds uses exhaustive switches rather than dynamic
// dispatch because the set is small and fixed.
package entity
