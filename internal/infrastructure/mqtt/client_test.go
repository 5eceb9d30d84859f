package mqtt

import (
	"errors"
	"testing"

	"github.com/akosnad/alarm-node/internal/infrastructure/config"
)

// newTestClient returns a client that has never connected.
// Validation paths are reachable without a broker.
func newTestClient() *Client {
	return &Client{
		cfg:               config.MQTTConfig{QoS: 1},
		availabilityTopic: "alarm/availability",
		subscriptions:     make(map[string]subscription),
	}
}

func TestPublishValidation(t *testing.T) {
	c := newTestClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			payload: []byte("disarmed"),
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "dummy_alarm/state",
			payload: []byte("disarmed"),
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "oversized payload",
			topic:   "alarm/ota",
			payload: make([]byte, maxPayloadSize+1),
			qos:     1,
			wantErr: ErrPublishFailed,
		},
		{
			name:    "not connected",
			topic:   "dummy_alarm/state",
			payload: []byte("disarmed"),
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newTestClient()
	handler := func(topic string, payload []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			qos:     1,
			handler: handler,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "dummy_alarm/command",
			qos:     5,
			handler: handler,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "nil handler",
			topic:   "dummy_alarm/command",
			qos:     1,
			handler: nil,
			wantErr: ErrSubscribeFailed,
		},
		{
			name:    "not connected",
			topic:   "dummy_alarm/command",
			qos:     1,
			handler: handler,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := newTestClient()

	if c.SubscriptionCount() != 0 {
		t.Fatalf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}

	c.subscriptions["dummy_alarm/command"] = subscription{
		topic:   "dummy_alarm/command",
		qos:     1,
		handler: func(topic string, payload []byte) error { return nil },
	}

	if !c.HasSubscription("dummy_alarm/command") {
		t.Error("HasSubscription() = false after tracking")
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}

	c.removeSubscription("dummy_alarm/command")

	if c.HasSubscription("dummy_alarm/command") {
		t.Error("HasSubscription() = true after removal")
	}
}

func TestUnsubscribeRemovesTracking(t *testing.T) {
	c := newTestClient()
	c.subscriptions["alarm/ota"] = subscription{topic: "alarm/ota", qos: 1}

	// Not connected, so the broker call fails, but tracking must be
	// cleared regardless so a reconnect does not restore the topic.
	err := c.Unsubscribe("alarm/ota")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want %v", err, ErrNotConnected)
	}
	if c.HasSubscription("alarm/ota") {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "alarm-node",
		},
		Auth: config.MQTTAuthConfig{
			Username: "node",
			Password: "secret",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}

	opts := buildClientOptions(cfg, "alarm/availability")

	if got := opts.ClientID; got != "alarm-node" {
		t.Errorf("ClientID = %q, want %q", got, "alarm-node")
	}
	if len(opts.Servers) != 1 {
		t.Fatalf("Servers count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want %q", got, "tcp://broker.local:1883")
	}
	if got := opts.Username; got != "node" {
		t.Errorf("Username = %q, want %q", got, "node")
	}
	if opts.WillTopic != "alarm/availability" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "alarm/availability")
	}
	if string(opts.WillPayload) != PayloadOffline {
		t.Errorf("WillPayload = %q, want %q", opts.WillPayload, PayloadOffline)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			TLS:      true,
			ClientID: "alarm-node",
		},
	}

	opts := buildClientOptions(cfg, "alarm/availability")

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil, want configured")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("MinVersion = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}
