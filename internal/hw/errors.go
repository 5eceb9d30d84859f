package hw

import "errors"

// Domain-specific errors for GPIO operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrChipUnavailable is returned when the GPIO character device
	// cannot be opened.
	ErrChipUnavailable = errors.New("hw: gpio chip unavailable")

	// ErrPinUnavailable is returned when a pin cannot be claimed from the
	// chip (reserved by another consumer, out of range).
	ErrPinUnavailable = errors.New("hw: pin unavailable")

	// ErrPinClaimed is returned when Configure is called twice for the
	// same pin.
	ErrPinClaimed = errors.New("hw: pin already configured")

	// ErrPinNotConfigured is returned by reads/writes on a pin that was
	// never configured.
	ErrPinNotConfigured = errors.New("hw: pin not configured")

	// ErrNotOutput is returned when writing to a pin configured as input.
	ErrNotOutput = errors.New("hw: pin not configured as output")
)
