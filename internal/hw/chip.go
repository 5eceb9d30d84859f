package hw

import (
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

// ChipBinder implements Binder on top of the kernel GPIO character device.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type ChipBinder struct {
	chip *gpiod.Chip

	lines      map[int]*gpiod.Line
	directions map[int]Direction
	mu         sync.Mutex

	pullUp bool
}

// ChipConfig contains settings for opening a GPIO chip.
type ChipConfig struct {
	// Name is the gpiochip device name, e.g. "gpiochip0".
	Name string

	// PullUp enables the internal pull-up on input lines.
	PullUp bool
}

// OpenChip opens the named GPIO character device.
//
// Returns:
//   - *ChipBinder: Binder ready for Configure calls
//   - error: ErrChipUnavailable if the device cannot be opened
func OpenChip(cfg ChipConfig) (*ChipBinder, error) {
	chip, err := gpiod.NewChip(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChipUnavailable, cfg.Name, err)
	}
	return &ChipBinder{
		chip:       chip,
		lines:      make(map[int]*gpiod.Line),
		directions: make(map[int]Direction),
		pullUp:     cfg.PullUp,
	}, nil
}

// Configure claims a line on the chip for the given direction.
func (b *ChipBinder) Configure(pin int, dir Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, claimed := b.lines[pin]; claimed {
		return fmt.Errorf("%w: pin %d", ErrPinClaimed, pin)
	}

	var (
		line *gpiod.Line
		err  error
	)
	switch dir {
	case Output:
		// Outputs start low; the siren must not sound on boot.
		line, err = b.chip.RequestLine(pin, gpiod.AsOutput(0))
	default:
		opts := []gpiod.LineReqOption{gpiod.AsInput}
		if b.pullUp {
			opts = append(opts, gpiod.WithPullUp)
		}
		line, err = b.chip.RequestLine(pin, opts...)
	}
	if err != nil {
		return fmt.Errorf("%w: pin %d as %s: %w", ErrPinUnavailable, pin, dir, err)
	}

	b.lines[pin] = line
	b.directions[pin] = dir
	return nil
}

// ReadDigital returns the current level of a configured pin.
func (b *ChipBinder) ReadDigital(pin int) (bool, error) {
	b.mu.Lock()
	line, ok := b.lines[pin]
	b.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("%w: pin %d", ErrPinNotConfigured, pin)
	}

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("reading pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// WriteDigital drives a configured output pin.
func (b *ChipBinder) WriteDigital(pin int, high bool) error {
	b.mu.Lock()
	line, ok := b.lines[pin]
	dir := b.directions[pin]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: pin %d", ErrPinNotConfigured, pin)
	}
	if dir != Output {
		return fmt.Errorf("%w: pin %d", ErrNotOutput, pin)
	}

	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("writing pin %d: %w", pin, err)
	}
	return nil
}

// Close releases all claimed lines and the chip.
func (b *ChipBinder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for pin, line := range b.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing pin %d: %w", pin, err))
		}
	}
	b.lines = make(map[int]*gpiod.Line)
	b.directions = make(map[int]Direction)

	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing chip: %w", err))
		}
		b.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("hw close: %v", errs)
	}
	return nil
}
