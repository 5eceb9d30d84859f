package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akosnad/alarm-node/internal/hw"
	"github.com/akosnad/alarm-node/internal/statestore"
)

type fakeTransport struct {
	mu       sync.Mutex
	payloads []string
	topics   []string
}

func (f *fakeTransport) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func (f *fakeTransport) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return ""
	}
	return f.payloads[len(f.payloads)-1]
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeStore struct {
	mu    sync.Mutex
	state string
	saved []string
}

func (f *fakeStore) SaveAlarmState(ctx context.Context, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeStore) LoadAlarmState(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return "", statestore.ErrNoState
	}
	return f.state, nil
}

type fakeSiren struct {
	mu           sync.Mutex
	configured   []int
	dirs         []hw.Direction
	configureErr error
	writes       []bool
}

func (f *fakeSiren) Configure(pin int, dir hw.Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configureErr != nil {
		return f.configureErr
	}
	f.configured = append(f.configured, pin)
	f.dirs = append(f.dirs, dir)
	return nil
}

func (f *fakeSiren) WriteDigital(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, high)
	return nil
}

func (f *fakeSiren) lastWrite() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return false, false
	}
	return f.writes[len(f.writes)-1], true
}

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

func newTestController(t *testing.T, opts Options) (*Controller, *fakeTransport, *fakeStore) {
	t.Helper()
	if opts.StateTopic == "" {
		opts.StateTopic = "dummy_alarm/state"
	}
	transport := &fakeTransport{}
	store := &fakeStore{}
	c, err := NewController(opts, transport, store, testLogger{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, transport, store
}

func TestHandleCommandArmsAndDisarms(t *testing.T) {
	c, transport, store := newTestController(t, Options{})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("HandleCommand(ARM_AWAY) error = %v", err)
	}
	if c.State() != StateArmedAway {
		t.Errorf("State() = %v, want armed away", c.State())
	}
	if transport.last() != "armed_away" {
		t.Errorf("published %q, want armed_away", transport.last())
	}
	if store.state != "armed_away" {
		t.Errorf("persisted %q, want armed_away", store.state)
	}

	if err := c.HandleCommand(ctx, []byte("DISARM")); err != nil {
		t.Fatalf("HandleCommand(DISARM) error = %v", err)
	}
	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
}

func TestHandleCommandUnknownLeavesStateUnchanged(t *testing.T) {
	c, transport, _ := newTestController(t, Options{})
	ctx := context.Background()

	err := c.HandleCommand(ctx, []byte("SELF_DESTRUCT"))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("HandleCommand() error = %v, want ErrUnknownCommand", err)
	}
	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
	if transport.count() != 0 {
		t.Errorf("published %d messages for rejected command, want 0", transport.count())
	}
}

func TestSensorTripImmediateTrigger(t *testing.T) {
	c, transport, _ := newTestController(t, Options{})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_HOME")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)

	if c.State() != StateTriggered {
		t.Errorf("State() = %v, want triggered", c.State())
	}
	if transport.last() != "triggered" {
		t.Errorf("published %q, want triggered", transport.last())
	}
}

func TestSensorTripWhileDisarmedIgnored(t *testing.T) {
	c, transport, _ := newTestController(t, Options{EntryDelay: 30 * time.Second})
	ctx := context.Background()

	c.SensorTrip(ctx)

	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
	if transport.count() != 0 {
		t.Errorf("published %d messages for ignored trip, want 0", transport.count())
	}
}

func TestPendingEscalatesAfterEntryDelay(t *testing.T) {
	c, transport, store := newTestController(t, Options{EntryDelay: 30 * time.Second})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)

	if c.State() != StatePending {
		t.Fatalf("State() = %v, want pending", c.State())
	}
	if transport.last() != "pending" {
		t.Errorf("published %q, want pending", transport.last())
	}
	// Pending persists as triggered so a reboot mid-delay cannot
	// swallow the alarm.
	if store.state != "triggered" {
		t.Errorf("persisted %q, want triggered", store.state)
	}

	// Before the deadline: nothing happens.
	c.Tick(ctx, time.Now().Add(10*time.Second))
	if c.State() != StatePending {
		t.Errorf("State() = %v after early tick, want pending", c.State())
	}

	// After the deadline: escalate.
	c.Tick(ctx, time.Now().Add(31*time.Second))
	if c.State() != StateTriggered {
		t.Errorf("State() = %v after deadline tick, want triggered", c.State())
	}
	if transport.last() != "triggered" {
		t.Errorf("published %q, want triggered", transport.last())
	}
}

func TestDisarmCancelsPending(t *testing.T) {
	c, _, _ := newTestController(t, Options{EntryDelay: 30 * time.Second})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)
	if err := c.HandleCommand(ctx, []byte("DISARM")); err != nil {
		t.Fatalf("disarming: %v", err)
	}

	// The old deadline must not fire after disarm.
	c.Tick(ctx, time.Now().Add(time.Minute))
	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
}

func TestArmingDelayCompletesOnTick(t *testing.T) {
	c, transport, store := newTestController(t, Options{ArmingDelay: 90 * time.Second})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_HOME")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	if c.State() != StateArming {
		t.Fatalf("State() = %v, want arming", c.State())
	}
	if transport.last() != "arming" {
		t.Errorf("published %q, want arming", transport.last())
	}
	// Arming persists as its target so a reboot during the exit
	// window comes back armed.
	if store.state != "armed_home" {
		t.Errorf("persisted %q, want armed_home", store.state)
	}

	// Sensors tripping during the exit window are ignored.
	c.SensorTrip(ctx)
	if c.State() != StateArming {
		t.Errorf("State() = %v after trip during exit window, want arming", c.State())
	}

	c.Tick(ctx, time.Now().Add(10*time.Second))
	if c.State() != StateArming {
		t.Errorf("State() = %v after early tick, want arming", c.State())
	}

	c.Tick(ctx, time.Now().Add(91*time.Second))
	if c.State() != StateArmedHome {
		t.Errorf("State() = %v after deadline tick, want armed_home", c.State())
	}
	if transport.last() != "armed_home" {
		t.Errorf("published %q, want armed_home", transport.last())
	}
}

func TestDisarmCancelsArming(t *testing.T) {
	c, _, _ := newTestController(t, Options{ArmingDelay: 90 * time.Second})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	if err := c.HandleCommand(ctx, []byte("DISARM")); err != nil {
		t.Fatalf("disarming: %v", err)
	}

	c.Tick(ctx, time.Now().Add(2*time.Minute))
	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
}

func TestUntriggerReturnsToArmedMode(t *testing.T) {
	c, transport, _ := newTestController(t, Options{})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_HOME")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)
	if c.State() != StateTriggered {
		t.Fatalf("State() = %v, want triggered", c.State())
	}

	if err := c.HandleCommand(ctx, []byte("UNTRIGGER")); err != nil {
		t.Fatalf("HandleCommand(UNTRIGGER) error = %v", err)
	}
	if c.State() != StateArmedHome {
		t.Errorf("State() = %v, want armed_home", c.State())
	}
	if transport.last() != "armed_home" {
		t.Errorf("published %q, want armed_home", transport.last())
	}
}

func TestUntriggerWhileDisarmedRejected(t *testing.T) {
	c, _, _ := newTestController(t, Options{})

	err := c.HandleCommand(context.Background(), []byte("UNTRIGGER"))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("HandleCommand(UNTRIGGER) error = %v, want ErrInvalidTransition", err)
	}
	if c.State() != StateDisarmed {
		t.Errorf("State() = %v, want disarmed", c.State())
	}
}

func TestSirenPinConfiguredAtConstruction(t *testing.T) {
	siren := &fakeSiren{}
	pin := 17
	c, err := NewController(Options{
		StateTopic: "dummy_alarm/state",
		Siren:      siren,
		SirenPin:   &pin,
	}, &fakeTransport{}, &fakeStore{}, testLogger{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if c == nil {
		t.Fatal("NewController() returned nil controller")
	}
	if len(siren.configured) != 1 || siren.configured[0] != 17 {
		t.Errorf("configured pins = %v, want [17]", siren.configured)
	}
	if len(siren.dirs) != 1 || siren.dirs[0] != hw.Output {
		t.Errorf("configured directions = %v, want [Output]", siren.dirs)
	}
}

func TestSirenPinConfigureFailureIsFatal(t *testing.T) {
	siren := &fakeSiren{configureErr: hw.ErrPinClaimed}
	pin := 17
	_, err := NewController(Options{
		StateTopic: "dummy_alarm/state",
		Siren:      siren,
		SirenPin:   &pin,
	}, &fakeTransport{}, &fakeStore{}, testLogger{})
	if !errors.Is(err, hw.ErrPinClaimed) {
		t.Fatalf("NewController() error = %v, want ErrPinClaimed", err)
	}
}

// The full siren path against a real binder: the output must be
// claimed at construction and driven high on trigger, low on disarm.
func TestSirenDrivesBinderOutput(t *testing.T) {
	binder := hw.NewMemBinder()
	pin := 17
	c, err := NewController(Options{
		StateTopic: "dummy_alarm/state",
		Siren:      binder,
		SirenPin:   &pin,
	}, &fakeTransport{}, &fakeStore{}, testLogger{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)

	if level, err := binder.ReadDigital(pin); err != nil || !level {
		t.Errorf("siren pin after trigger: level=%v err=%v, want high", level, err)
	}

	if err := c.HandleCommand(ctx, []byte("DISARM")); err != nil {
		t.Fatalf("disarming: %v", err)
	}
	if level, err := binder.ReadDigital(pin); err != nil || level {
		t.Errorf("siren pin after disarm: level=%v err=%v, want low", level, err)
	}
}

// A siren pin already claimed as a sensor input must fail construction,
// not silently swallow every siren write at runtime.
func TestSirenPinCollisionRejected(t *testing.T) {
	binder := hw.NewMemBinder()
	pin := 17
	if err := binder.Configure(pin, hw.Input); err != nil {
		t.Fatalf("claiming sensor pin: %v", err)
	}

	_, err := NewController(Options{
		StateTopic: "dummy_alarm/state",
		Siren:      binder,
		SirenPin:   &pin,
	}, &fakeTransport{}, &fakeStore{}, testLogger{})
	if !errors.Is(err, hw.ErrPinClaimed) {
		t.Fatalf("NewController() error = %v, want ErrPinClaimed", err)
	}
}

func TestSirenFollowsTriggered(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{}
	siren := &fakeSiren{}
	pin := 17
	c, err := NewController(Options{
		StateTopic: "dummy_alarm/state",
		Siren:      siren,
		SirenPin:   &pin,
	}, transport, store, testLogger{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)

	if on, ok := siren.lastWrite(); !ok || !on {
		t.Error("siren not driven high on trigger")
	}

	if err := c.HandleCommand(ctx, []byte("DISARM")); err != nil {
		t.Fatalf("disarming: %v", err)
	}
	if on, ok := siren.lastWrite(); !ok || on {
		t.Error("siren not driven low on disarm")
	}
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name      string
		persisted string
		want      State
	}{
		{"first boot", "", StateDisarmed},
		{"armed away", "armed_away", StateArmedAway},
		{"triggered", "triggered", StateTriggered},
		{"garbage falls back to disarmed", "armed_night", StateDisarmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			store := &fakeStore{state: tt.persisted}
			c, err := NewController(Options{StateTopic: "dummy_alarm/state"}, transport, store, testLogger{})
			if err != nil {
				t.Fatalf("NewController() error = %v", err)
			}

			if err := c.Restore(context.Background()); err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if c.State() != tt.want {
				t.Errorf("State() = %v, want %v", c.State(), tt.want)
			}
		})
	}
}

func TestRepublish(t *testing.T) {
	c, transport, _ := newTestController(t, Options{})
	ctx := context.Background()

	if err := c.HandleCommand(ctx, []byte("ARM_HOME")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	if err := c.Republish(); err != nil {
		t.Fatalf("Republish() error = %v", err)
	}
	if transport.last() != "armed_home" {
		t.Errorf("republished %q, want armed_home", transport.last())
	}
	if transport.topics[len(transport.topics)-1] != "dummy_alarm/state" {
		t.Errorf("republished on %q, want state topic", transport.topics[len(transport.topics)-1])
	}
}

func TestTransitionHook(t *testing.T) {
	c, _, _ := newTestController(t, Options{})
	ctx := context.Background()

	var got []string
	c.SetTransitionHook(func(from, to State, event Event) {
		got = append(got, from.String()+">"+to.String())
	})

	if err := c.HandleCommand(ctx, []byte("ARM_AWAY")); err != nil {
		t.Fatalf("arming: %v", err)
	}
	c.SensorTrip(ctx)

	want := []string{"disarmed>armed_away", "armed_away>triggered"}
	if len(got) != len(want) {
		t.Fatalf("hook fired %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hook[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
