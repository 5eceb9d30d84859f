package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akosnad/alarm-node/internal/entity"
	"github.com/akosnad/alarm-node/internal/hw"
)

// Payloads published to binary sensor state topics, Home Assistant
// convention.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Transport is the publishing surface the poller needs.
type Transport interface {
	PublishRetained(topic string, payload []byte) error
}

// Logger is the subset of logging used by the poller.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// TripFunc is called when a sensor level rises. The alarm controller
// decides whether the trip matters (it is ignored unless armed).
type TripFunc func(id entity.ID)

// EdgeHook observes committed edges, for telemetry.
type EdgeHook func(id entity.ID, level bool)

// pinState tracks per-sensor poll state.
type pinState struct {
	def *entity.Definition

	// lastPublished is the last level written to the state topic.
	lastPublished bool
	published     bool

	// candidate level being debounced and when it first appeared.
	candidate      bool
	candidateSince time.Time
}

// Poller reads every binary sensor pin on a fixed cadence and publishes
// level changes retained to each sensor's state topic.
//
// Publication is edge-triggered: an unchanged level is never
// republished, bounding broker traffic regardless of poll rate. An
// optional debounce window suppresses contact chatter by requiring a
// level to hold before it is published.
type Poller struct {
	binder    hw.Binder
	transport Transport
	logger    Logger

	interval time.Duration
	debounce time.Duration

	mu      sync.Mutex
	sensors []*pinState

	onTrip TripFunc
	hook   EdgeHook
}

// NewPoller creates a poller for every binary sensor in the registry
// and configures their pins as inputs.
//
// Pin configuration failures are returned immediately: pin layout is
// static, so an unclaimable pin is a boot-time fatal, not something to
// retry at runtime.
func NewPoller(
	registry *entity.Registry,
	binder hw.Binder,
	transport Transport,
	interval time.Duration,
	debounce time.Duration,
	logger Logger,
) (*Poller, error) {
	p := &Poller{
		binder:    binder,
		transport: transport,
		logger:    logger,
		interval:  interval,
		debounce:  debounce,
	}

	for _, def := range registry.OfKind(entity.KindBinarySensor) {
		if err := binder.Configure(def.Pin, hw.Input); err != nil {
			return nil, fmt.Errorf("configuring pin %d for %s: %w", def.Pin, def.ID, err)
		}
		p.sensors = append(p.sensors, &pinState{def: def})
	}

	logger.Info("sensor poller ready",
		"sensors", len(p.sensors),
		"interval", interval.String(),
		"debounce", debounce.String(),
	)
	return p, nil
}

// SetTripFunc installs the armed-trip callback. Must be called before Run.
func (p *Poller) SetTripFunc(fn TripFunc) {
	p.onTrip = fn
}

// SetEdgeHook installs an observer for committed edges. Must be called
// before Run.
func (p *Poller) SetEdgeHook(hook EdgeHook) {
	p.hook = hook
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Poll(now)
		}
	}
}

// Poll reads every sensor once. Exposed for tests; Run calls it on the
// configured cadence.
func (p *Poller) Poll(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sensors {
		level, err := p.binder.ReadDigital(s.def.Pin)
		if err != nil {
			p.logger.Error("reading sensor pin",
				"entity", string(s.def.ID),
				"pin", s.def.Pin,
				"error", err,
			)
			continue
		}
		p.observe(s, level, now)
	}
}

// observe runs one reading through debounce and edge detection.
func (p *Poller) observe(s *pinState, level bool, now time.Time) {
	if p.debounce > 0 {
		if level != s.candidate || s.candidateSince.IsZero() {
			s.candidate = level
			s.candidateSince = now
			return
		}
		if now.Sub(s.candidateSince) < p.debounce {
			return
		}
	}

	if s.published && level == s.lastPublished {
		return
	}

	p.publish(s, level)

	if level && p.onTrip != nil {
		p.onTrip(s.def.ID)
	}
	if p.hook != nil {
		p.hook(s.def.ID, level)
	}
}

// publish writes one level to the sensor's state topic, retained.
func (p *Poller) publish(s *pinState, level bool) {
	payload := PayloadOff
	if level {
		payload = PayloadOn
	}

	if err := p.transport.PublishRetained(s.def.StateTopic, []byte(payload)); err != nil {
		// Leave lastPublished untouched so the next poll retries.
		p.logger.Error("publishing sensor state",
			"entity", string(s.def.ID),
			"error", err,
		)
		return
	}

	s.lastPublished = level
	s.published = true
}

// Republish resends the last published level of every sensor, retained.
// Called on became-ready so a broker that lost retained state re-learns
// it without waiting for the next edge.
func (p *Poller) Republish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sensors {
		if !s.published {
			continue
		}
		p.publish(s, s.lastPublished)
	}
}
