package discovery

import (
	"fmt"

	"github.com/akosnad/alarm-node/internal/entity"
)

// Transport is the publishing surface the publisher needs.
// Satisfied by the node's mailbox and by mqtt.Client directly.
type Transport interface {
	PublishRetained(topic string, payload []byte) error
}

// Logger is the subset of logging used by the publisher.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Publisher announces the node's entities to Home Assistant.
//
// It publishes one retained discovery document per compiled entity under
// the configured discovery prefix. AnnounceAll runs on every
// became-ready event so a broker restart (which may have lost retained
// messages) re-learns the node's entities.
type Publisher struct {
	registry          *entity.Registry
	prefix            string
	availabilityTopic string
	payloadOnline     string
	payloadOffline    string
	transport         Transport
	logger            Logger
}

// NewPublisher creates a discovery publisher for the compiled registry.
//
// Parameters:
//   - registry: Compiled entity registry
//   - prefix: Discovery prefix (typically "homeassistant")
//   - availabilityTopic: Topic carrying online/offline
//   - payloadOnline, payloadOffline: Availability payloads
//   - transport: Publishing surface
//   - logger: Structured logger
func NewPublisher(
	registry *entity.Registry,
	prefix string,
	availabilityTopic string,
	payloadOnline string,
	payloadOffline string,
	transport Transport,
	logger Logger,
) *Publisher {
	return &Publisher{
		registry:          registry,
		prefix:            prefix,
		availabilityTopic: availabilityTopic,
		payloadOnline:     payloadOnline,
		payloadOffline:    payloadOffline,
		transport:         transport,
		logger:            logger,
	}
}

// AnnounceAll publishes the discovery document for every entity, in
// document order. Publishing is idempotent: payloads are deterministic
// and retained, so repeated announcements leave the broker unchanged.
//
// Returns:
//   - error: The first publish failure, wrapped with the entity ID
func (p *Publisher) AnnounceAll() error {
	for _, def := range p.registry.All() {
		if err := p.announce(def); err != nil {
			return err
		}
	}
	p.logger.Info("discovery documents published", "entities", p.registry.Len())
	return nil
}

// announce publishes a single entity's discovery document.
func (p *Publisher) announce(def *entity.Definition) error {
	payload, err := Marshal(def, p.availabilityTopic, p.payloadOnline, p.payloadOffline)
	if err != nil {
		return err
	}

	topic := Topic(p.prefix, def)
	if err := p.transport.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("publishing discovery for %s: %w", def.ID, err)
	}
	return nil
}
