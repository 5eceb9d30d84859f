package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akosnad/alarm-node/internal/hw"
	"github.com/akosnad/alarm-node/internal/statestore"
)

// tickInterval is how often the controller checks the arming and
// pending deadlines.
const tickInterval = 250 * time.Millisecond

// Transport is the publishing surface the controller needs.
type Transport interface {
	PublishRetained(topic string, payload []byte) error
}

// StateStore persists alarm state across restarts.
// Satisfied by *statestore.Store.
type StateStore interface {
	SaveAlarmState(ctx context.Context, state string) error
	LoadAlarmState(ctx context.Context) (string, error)
}

// PinWriter drives the optional siren output.
// Satisfied by hw.Binder implementations.
type PinWriter interface {
	Configure(pin int, dir hw.Direction) error
	WriteDigital(pin int, high bool) error
}

// Logger is the subset of logging used by the controller.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TransitionHook observes committed transitions, for telemetry.
type TransitionHook func(from, to State, event Event)

// Controller owns the alarm state for one panel entity.
//
// It serializes command intake, sensor trips and the deadline tick
// behind one mutex, publishes every transition retained to the panel's
// state topic, and persists state so a reboot restores the panel where
// it was.
type Controller struct {
	mu          sync.Mutex
	state       State
	pendingAt   time.Time // deadline for Pending → Triggered escalation
	armingAt    time.Time // deadline for Arming → armed completion
	armTarget   State     // armed state an in-flight arming completes to
	armedMode   State     // armed state UNTRIGGER returns to
	entryDelay  time.Duration
	armingDelay time.Duration

	stateTopic string
	transport  Transport
	store      StateStore
	logger     Logger

	// Optional siren output, driven high while triggered.
	siren    PinWriter
	sirenPin int
	hasSiren bool

	hook TransitionHook
}

// Options configures a Controller.
type Options struct {
	// StateTopic is the panel entity's state topic.
	StateTopic string

	// EntryDelay is the pending window before a sensor trip escalates
	// to triggered. Zero escalates immediately.
	EntryDelay time.Duration

	// ArmingDelay is the exit window between an arm command and the
	// armed state. Zero arms immediately.
	ArmingDelay time.Duration

	// Siren, when non-nil together with SirenPin, is configured as an
	// output at construction and driven high while the alarm is
	// triggered.
	Siren    PinWriter
	SirenPin *int
}

// NewController creates a controller in the disarmed state and claims
// the siren pin as an output.
//
// Call Restore before Run to pick up persisted state.
//
// Returns:
//   - *Controller: Ready controller
//   - error: If the siren pin cannot be configured; pin layout is
//     static, so an unclaimable pin (including one already claimed by
//     a sensor) is a boot-time fatal
func NewController(opts Options, transport Transport, store StateStore, logger Logger) (*Controller, error) {
	c := &Controller{
		state:       StateDisarmed,
		entryDelay:  opts.EntryDelay,
		armingDelay: opts.ArmingDelay,
		stateTopic:  opts.StateTopic,
		transport:   transport,
		store:       store,
		logger:      logger,
	}
	if opts.Siren != nil && opts.SirenPin != nil {
		pin := *opts.SirenPin
		if err := opts.Siren.Configure(pin, hw.Output); err != nil {
			return nil, fmt.Errorf("configuring siren pin %d: %w", pin, err)
		}
		c.siren = opts.Siren
		c.sirenPin = pin
		c.hasSiren = true
		logger.Info("siren output configured", "pin", pin)
	}
	return c, nil
}

// SetTransitionHook installs an observer for committed transitions.
// Must be called before Run.
func (c *Controller) SetTransitionHook(hook TransitionHook) {
	c.hook = hook
}

// Restore loads the persisted alarm state.
//
// A node rebooting mid-alarm comes back triggered; one that was armed
// stays armed. First boot (no persisted state) starts disarmed. An
// unparseable persisted value falls back to disarmed rather than
// refusing to boot.
func (c *Controller) Restore(ctx context.Context) error {
	persisted, err := c.store.LoadAlarmState(ctx)
	if err != nil {
		if errors.Is(err, statestore.ErrNoState) {
			return nil
		}
		return fmt.Errorf("restoring alarm state: %w", err)
	}

	state, err := ParseState(persisted)
	if err != nil {
		c.logger.Warn("persisted alarm state unparseable, starting disarmed",
			"value", persisted,
		)
		return nil
	}

	c.mu.Lock()
	c.state = state
	if state.Armed() {
		c.armedMode = state
	}
	c.mu.Unlock()

	if state == StateTriggered {
		c.driveSiren(true)
	}

	c.logger.Info("alarm state restored", "state", state.String())
	return nil
}

// HandleCommand applies an inbound command payload from the panel's
// command topic.
//
// Malformed commands return ErrUnknownCommand; commands invalid in the
// current state return ErrInvalidTransition. Neither changes state.
func (c *Controller) HandleCommand(ctx context.Context, payload []byte) error {
	event, err := ParseCommand(string(payload))
	if err != nil {
		return err
	}
	return c.apply(ctx, event)
}

// SensorTrip feeds a sensor trip from the poll loop.
// Ignored unless the panel is armed.
func (c *Controller) SensorTrip(ctx context.Context) {
	if err := c.apply(ctx, EventSensorTrip); err != nil {
		c.logger.Error("applying sensor trip", "error", err)
	}
}

// State returns the current alarm state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EntryDelay returns the current entry delay.
func (c *Controller) EntryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entryDelay
}

// SetEntryDelay updates the entry delay at runtime.
// Applies to the next sensor trip; an in-flight pending window keeps
// its original deadline.
func (c *Controller) SetEntryDelay(d time.Duration) {
	c.mu.Lock()
	c.entryDelay = d
	c.mu.Unlock()
	c.logger.Info("entry delay updated", "entry_delay", d.String())
}

// ArmingDelay returns the current arming (exit) delay.
func (c *Controller) ArmingDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armingDelay
}

// SetArmingDelay updates the arming delay at runtime.
// Applies to the next arm command; an in-flight arming window keeps
// its original deadline.
func (c *Controller) SetArmingDelay(d time.Duration) {
	c.mu.Lock()
	c.armingDelay = d
	c.mu.Unlock()
	c.logger.Info("arming delay updated", "arming_delay", d.String())
}

// Republish publishes the current state retained.
// Called on every became-ready event so a broker that lost retained
// messages re-learns the panel state.
func (c *Controller) Republish() error {
	state := c.State()
	if err := c.transport.PublishRetained(c.stateTopic, []byte(state.String())); err != nil {
		return fmt.Errorf("republishing alarm state: %w", err)
	}
	return nil
}

// Run completes Arming and escalates Pending when their deadlines
// elapse. Blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Tick(ctx, now)
		}
	}
}

// Tick checks the arming and pending deadlines. Exposed for tests; Run
// calls it on a fixed cadence.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	armed := c.state == StateArming && !c.armingAt.IsZero() && !now.Before(c.armingAt)
	escalate := c.state == StatePending && !c.pendingAt.IsZero() && !now.Before(c.pendingAt)
	c.mu.Unlock()

	if armed {
		if err := c.apply(ctx, EventArmingComplete); err != nil {
			c.logger.Error("completing arming window", "error", err)
		}
	}
	if escalate {
		if err := c.apply(ctx, EventTrigger); err != nil {
			c.logger.Error("escalating pending alarm", "error", err)
		}
	}
}

// apply runs one event through the transition table and commits the
// result: state change, siren, retained publish, persistence, hook.
func (c *Controller) apply(ctx context.Context, event Event) error {
	c.mu.Lock()

	from := c.state
	next, err := Next(from, event, Params{
		EntryDelay:  c.entryDelay,
		ArmingDelay: c.armingDelay,
		ArmTarget:   c.armTarget,
		ArmedMode:   c.armedMode,
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if next == from {
		c.mu.Unlock()
		return nil
	}

	c.state = next
	switch next {
	case StatePending:
		c.pendingAt = time.Now().Add(c.entryDelay)
	case StateArming:
		c.armingAt = time.Now().Add(c.armingDelay)
		if target, ok := event.ArmTarget(); ok {
			c.armTarget = target
		}
	default:
		c.pendingAt = time.Time{}
		c.armingAt = time.Time{}
	}
	if next.Armed() {
		c.armedMode = next
	}
	persisted := persistedState(next, c.armTarget)
	c.mu.Unlock()

	c.logger.Info("alarm transition",
		"from", from.String(),
		"to", next.String(),
	)

	if next == StateTriggered {
		c.driveSiren(true)
	} else if from == StateTriggered {
		c.driveSiren(false)
	}

	// Publish first so observers see the transition promptly; failures
	// are logged, the transition stands.
	if err := c.transport.PublishRetained(c.stateTopic, []byte(next.String())); err != nil {
		c.logger.Error("publishing alarm state", "state", next.String(), "error", err)
	}

	if err := c.store.SaveAlarmState(ctx, persisted); err != nil {
		c.logger.Error("persisting alarm state", "state", next.String(), "error", err)
	}

	if c.hook != nil {
		c.hook(from, next, event)
	}
	return nil
}

// persistedState maps a state to its persisted form. Pending persists
// as triggered: a reboot during the entry delay must not silently
// swallow the alarm. Arming persists as its armed target: a reboot
// during the exit delay comes back armed, not disarmed.
func persistedState(s, armTarget State) string {
	switch s {
	case StatePending:
		return StateTriggered.String()
	case StateArming:
		if armTarget.Armed() {
			return armTarget.String()
		}
		return StateArmedAway.String()
	default:
		return s.String()
	}
}

// driveSiren sets the siren output, if one is configured.
func (c *Controller) driveSiren(on bool) {
	if !c.hasSiren {
		return
	}
	if err := c.siren.WriteDigital(c.sirenPin, on); err != nil {
		c.logger.Error("driving siren output", "pin", c.sirenPin, "on", on, "error", err)
	}
}
