package statestore

import "errors"

// ErrNoState indicates nothing has been persisted yet.
// Callers treat it as "use the configured default", not as a failure.
var ErrNoState = errors.New("no persisted state")
