package hw

// Direction configures a pin as input or output.
type Direction int

const (
	// Input pins are read by the sensor poll loop.
	Input Direction = iota

	// Output pins are driven by actuators such as the siren.
	Output
)

// String returns the direction name for logging.
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Binder abstracts digital GPIO access behind a capability interface so
// entities never touch concrete pin APIs.
//
// Pin ownership is exclusive: the entity compiler rejects duplicate pin
// assignment, so no pin-level locking is needed at runtime. Configure is
// called once per pin during boot; failures there are fatal initialization
// errors, not runtime errors, because pin layout is static.
type Binder interface {
	// Configure claims a pin for the given direction.
	// Returns ErrPinUnavailable if the pin cannot be claimed and
	// ErrPinClaimed if it was already configured.
	Configure(pin int, dir Direction) error

	// ReadDigital returns the current level of a configured pin.
	ReadDigital(pin int) (bool, error)

	// WriteDigital drives a configured output pin.
	WriteDigital(pin int, high bool) error

	// Close releases all claimed pins.
	Close() error
}
