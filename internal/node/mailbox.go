package node

import "context"

// mailboxSize bounds the publish queue. Sized for bursts of discovery
// documents plus state republishes on reconnect.
const mailboxSize = 64

// BrokerPublisher is what the mailbox needs from the MQTT client.
type BrokerPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// publishRequest is one queued outbound message.
type publishRequest struct {
	topic    string
	payload  []byte
	retained bool
}

// Mailbox serializes all outbound publishes through one goroutine.
//
// The MQTT session is the node's single shared mutable resource; every
// component publishes by enqueueing here instead of holding the client.
// One FIFO queue drained by one goroutine preserves submission order
// per topic across all producers.
//
// Enqueueing never blocks: a saturated queue drops the message with
// ErrMailboxFull. State topics are retained and edge-triggered, so a
// dropped publish heals on the next change or republish.
type Mailbox struct {
	broker   BrokerPublisher
	qos      byte
	requests chan publishRequest
	logger   Logger
}

// NewMailbox creates a mailbox publishing at the given QoS.
func NewMailbox(broker BrokerPublisher, qos byte, logger Logger) *Mailbox {
	return &Mailbox{
		broker:   broker,
		qos:      qos,
		requests: make(chan publishRequest, mailboxSize),
		logger:   logger,
	}
}

// Publish enqueues a non-retained message.
func (m *Mailbox) Publish(topic string, payload []byte) error {
	return m.enqueue(publishRequest{topic: topic, payload: payload})
}

// PublishRetained enqueues a retained message.
func (m *Mailbox) PublishRetained(topic string, payload []byte) error {
	return m.enqueue(publishRequest{topic: topic, payload: payload, retained: true})
}

func (m *Mailbox) enqueue(req publishRequest) error {
	select {
	case m.requests <- req:
		return nil
	default:
		m.logger.Warn("publish mailbox full, dropping message", "topic", req.topic)
		return ErrMailboxFull
	}
}

// Run drains the queue until ctx is cancelled. Publish failures are
// logged and do not stop the loop; the broker session reconnects on
// its own and retained state heals on republish.
func (m *Mailbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.requests:
			if err := m.broker.Publish(req.topic, req.payload, m.qos, req.retained); err != nil {
				m.logger.Warn("publishing from mailbox",
					"topic", req.topic,
					"error", err,
				)
			}
		}
	}
}
