// Package database provides SQLite persistence for the alarm node.
//
// The node survives power cycles: the last alarm state and runtime
// settings are written here and restored at boot. The database lives on
// local flash, opened with WAL mode and a busy timeout so the single
// writer never blocks indefinitely.
//
// Schema changes are expressed as in-code Migration values, applied in
// version order at startup. Each migration runs in its own transaction;
// a failed migration rolls back alone and a later restart resumes from
// it.
package database
