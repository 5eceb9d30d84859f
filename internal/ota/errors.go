package ota

import "errors"

// Sentinel errors for the update session and partition store.
var (
	// ErrNoSession indicates a continuation chunk with no session open.
	ErrNoSession = errors.New("no update session active")

	// ErrSessionMismatch indicates a chunk whose session_id does not
	// match the open session.
	ErrSessionMismatch = errors.New("chunk belongs to a different session")

	// ErrChunkOutOfOrder indicates a gap or repeat in the chunk stream.
	ErrChunkOutOfOrder = errors.New("chunk out of order")

	// ErrSizeMismatch indicates the received byte count disagrees with
	// the declared total size.
	ErrSizeMismatch = errors.New("image size mismatch")

	// ErrVerification indicates the completed image failed signature or
	// checksum verification. The active slot is never touched.
	ErrVerification = errors.New("image verification failed")

	// ErrChunkTimeout indicates no chunk arrived within the configured
	// window and the session was cancelled.
	ErrChunkTimeout = errors.New("chunk timeout")

	// ErrUnknownSlot indicates a slot name the partition store does not
	// recognise.
	ErrUnknownSlot = errors.New("unknown partition slot")
)
