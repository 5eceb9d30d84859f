package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akosnad/alarm-node/internal/alarm"
	"github.com/akosnad/alarm-node/internal/discovery"
	"github.com/akosnad/alarm-node/internal/entity"
	"github.com/akosnad/alarm-node/internal/infrastructure/mqtt"
	"github.com/akosnad/alarm-node/internal/ota"
	"github.com/akosnad/alarm-node/internal/sensor"
)

// Broker is what the node needs from the MQTT client.
type Broker interface {
	BrokerPublisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SetOnConnect(callback func())
}

// Logger is the subset of logging used by the node runtime.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SettingsStore persists runtime settings. Satisfied by *statestore.Store.
type SettingsStore interface {
	SaveSetting(ctx context.Context, key, value string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Restart is the node's restart request signal. The updater and the
// REBOOT panel command both feed it; Run returns ErrRestartRequested
// when it fires so main can exit for the supervisor to restart.
type Restart struct {
	ch   chan struct{}
	once sync.Once
}

// NewRestart creates an unfired restart signal.
func NewRestart() *Restart {
	return &Restart{ch: make(chan struct{})}
}

// Request fires the signal. Idempotent.
func (r *Restart) Request() {
	r.once.Do(func() { close(r.ch) })
}

// Options wires the node runtime together.
type Options struct {
	Registry  *entity.Registry
	Broker    Broker
	Mailbox   *Mailbox
	Alarm     *alarm.Controller
	Poller    *sensor.Poller
	Updater   *ota.Updater
	Discovery *discovery.Publisher
	Settings  SettingsStore
	Restart   *Restart

	// QoS for subscriptions.
	QoS byte

	// OTATopic receives firmware chunks.
	OTATopic string

	// SettingsTopic receives key=value runtime setting updates.
	SettingsTopic string
}

// Node is the runtime that ties the compiled registry to the broker:
// inbound dispatch by topic lookup, outbound publishing through the
// mailbox, and state republication on every became-ready event.
type Node struct {
	opts   Options
	logger Logger
}

// New creates the node runtime.
func New(opts Options, logger Logger) *Node {
	return &Node{opts: opts, logger: logger}
}

// Run subscribes, republishes current state, and drives every
// component loop until ctx is cancelled or a restart is requested.
//
// Returns:
//   - error: nil on clean shutdown, ErrRestartRequested when a REBOOT
//     command or completed update asks for one
func (n *Node) Run(ctx context.Context) error {
	if err := n.applyPersistedSettings(ctx); err != nil {
		return err
	}

	if err := n.subscribe(); err != nil {
		return err
	}

	// Republish on every reconnect; brokers do not guarantee retained
	// state or subscriptions survive.
	n.opts.Broker.SetOnConnect(n.announce)

	// The callback is installed after the initial connect, so announce
	// once by hand.
	n.announce()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.opts.Mailbox.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.opts.Alarm.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.opts.Poller.Run(ctx)
		return nil
	})
	g.Go(func() error {
		n.opts.Updater.Run(ctx)
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-n.opts.Restart.ch:
			return ErrRestartRequested
		}
	})

	return g.Wait()
}

// subscribe registers every inbound topic with one dispatch handler:
// panel command topics, the OTA topic and the settings topic.
func (n *Node) subscribe() error {
	topics := []string{n.opts.OTATopic, n.opts.SettingsTopic}
	for _, def := range n.opts.Registry.OfKind(entity.KindAlarmControlPanel) {
		topics = append(topics, def.CommandTopic)
	}

	for _, topic := range topics {
		if err := n.opts.Broker.Subscribe(topic, n.opts.QoS, n.dispatch); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	n.logger.Info("subscriptions established", "topics", len(topics))
	return nil
}

// announce republishes everything observers need after a (re)connect:
// discovery documents, the alarm state and the sensor levels.
func (n *Node) announce() {
	if err := n.opts.Discovery.AnnounceAll(); err != nil {
		n.logger.Error("announcing discovery documents", "error", err)
	}
	if err := n.opts.Alarm.Republish(); err != nil {
		n.logger.Error("republishing alarm state", "error", err)
	}
	n.opts.Poller.Republish()
}

// dispatch routes one inbound message by topic.
func (n *Node) dispatch(topic string, payload []byte) error {
	switch topic {
	case n.opts.OTATopic:
		return n.opts.Updater.HandleChunk(payload)
	case n.opts.SettingsTopic:
		return n.handleSetting(payload)
	}

	id, ok := n.opts.Registry.LookupByTopic(topic)
	if !ok {
		n.logger.Warn("message on unmapped topic", "topic", topic)
		return nil
	}
	def, err := n.opts.Registry.Get(id)
	if err != nil {
		return err
	}

	if def.Kind == entity.KindAlarmControlPanel && topic == def.CommandTopic {
		return n.handlePanelCommand(payload)
	}

	// State topics are outbound only; an inbound message there is an
	// echo of our own retained publish or a confused sender.
	return nil
}

// handlePanelCommand intercepts REBOOT and hands everything else to
// the alarm controller.
func (n *Node) handlePanelCommand(payload []byte) error {
	if strings.EqualFold(strings.TrimSpace(string(payload)), "REBOOT") {
		n.logger.Info("reboot command received")
		n.opts.Restart.Request()
		return nil
	}
	return n.opts.Alarm.HandleCommand(context.Background(), payload)
}

// handleSetting applies one key=value runtime setting update and
// persists it.
func (n *Node) handleSetting(payload []byte) error {
	key, value, found := strings.Cut(strings.TrimSpace(string(payload)), "=")
	if !found || key == "" {
		return fmt.Errorf("malformed setting payload %q", payload)
	}

	if err := n.applySetting(key, value); err != nil {
		return err
	}

	if err := n.opts.Settings.SaveSetting(context.Background(), key, value); err != nil {
		n.logger.Error("persisting setting", "key", key, "error", err)
	}
	return nil
}

// applySetting applies one setting to the running components.
func (n *Node) applySetting(key, value string) error {
	switch key {
	case "entry_delay":
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			return fmt.Errorf("invalid entry_delay %q", value)
		}
		n.opts.Alarm.SetEntryDelay(time.Duration(seconds) * time.Second)
		return nil
	case "arming_timeout":
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			return fmt.Errorf("invalid arming_timeout %q", value)
		}
		n.opts.Alarm.SetArmingDelay(time.Duration(seconds) * time.Second)
		return nil
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

// applyPersistedSettings restores settings saved in earlier runs.
// Unknown or stale keys are logged and skipped, not fatal.
func (n *Node) applyPersistedSettings(ctx context.Context) error {
	settings, err := n.opts.Settings.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted settings: %w", err)
	}

	for key, value := range settings {
		if err := n.applySetting(key, value); err != nil {
			n.logger.Warn("skipping persisted setting", "key", key, "error", err)
		}
	}
	return nil
}

// IsRestart reports whether err is a restart request rather than a
// failure.
func IsRestart(err error) bool {
	return errors.Is(err, ErrRestartRequested)
}
