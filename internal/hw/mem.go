package hw

import (
	"fmt"
	"sync"
)

// MemBinder is an in-memory Binder for tests and simulated deployments
// (gpio.simulated in config). External levels are injected with SetLevel.
type MemBinder struct {
	pins map[int]*memPin
	mu   sync.Mutex
}

type memPin struct {
	dir   Direction
	level bool
}

// NewMemBinder creates an empty in-memory binder.
func NewMemBinder() *MemBinder {
	return &MemBinder{pins: make(map[int]*memPin)}
}

// Configure claims a simulated pin.
func (b *MemBinder) Configure(pin int, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, claimed := b.pins[pin]; claimed {
		return fmt.Errorf("%w: pin %d", ErrPinClaimed, pin)
	}
	b.pins[pin] = &memPin{dir: dir}
	return nil
}

// ReadDigital returns the simulated level of a configured pin.
func (b *MemBinder) ReadDigital(pin int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pins[pin]
	if !ok {
		return false, fmt.Errorf("%w: pin %d", ErrPinNotConfigured, pin)
	}
	return p.level, nil
}

// WriteDigital drives a simulated output pin.
func (b *MemBinder) WriteDigital(pin int, high bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pins[pin]
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPinNotConfigured, pin)
	}
	if p.dir != Output {
		return fmt.Errorf("%w: pin %d", ErrNotOutput, pin)
	}
	p.level = high
	return nil
}

// Close releases all simulated pins.
func (b *MemBinder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pins = make(map[int]*memPin)
	return nil
}

// SetLevel injects an external level change on a configured input pin.
// Test helper; also used by the simulated deployment's debug hooks.
func (b *MemBinder) SetLevel(pin int, high bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pins[pin]
	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPinNotConfigured, pin)
	}
	p.level = high
	return nil
}
