package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/akosnad/alarm-node/internal/entity"
)

// Home Assistant alarm panel feature flags.
// https://www.home-assistant.io/integrations/alarm_control_panel.mqtt/
const (
	featureArmHome = 1 << 0
	featureArmAway = 1 << 1
	featureTrigger = 1 << 2
)

// document is the Home Assistant MQTT discovery config payload.
// Field order is fixed by the struct so the same entity always marshals
// to the same bytes; retained republishes are then byte-identical.
type document struct {
	Name              string        `json:"name"`
	UniqueID          string        `json:"unique_id"`
	StateTopic        string        `json:"state_topic"`
	CommandTopic      string        `json:"command_topic,omitempty"`
	Icon              string        `json:"icon,omitempty"`
	DeviceClass       string        `json:"device_class,omitempty"`
	SupportedFeatures int           `json:"supported_features,omitempty"`
	PayloadOn         string        `json:"payload_on,omitempty"`
	PayloadOff        string        `json:"payload_off,omitempty"`
	Availability      availability  `json:"availability"`
	Device            *deviceBlock  `json:"device,omitempty"`
}

// availability tells Home Assistant where to watch for node liveness.
type availability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// deviceBlock groups entities under one device in the HA UI.
type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// buildDocument maps a compiled entity to its discovery payload.
func buildDocument(def *entity.Definition, availabilityTopic, payloadOnline, payloadOffline string) document {
	doc := document{
		Name:        def.Name,
		UniqueID:    string(def.ID),
		StateTopic:  def.StateTopic,
		Icon:        def.Icon,
		DeviceClass: def.DeviceClass,
		Availability: availability{
			Topic:               availabilityTopic,
			PayloadAvailable:    payloadOnline,
			PayloadNotAvailable: payloadOffline,
		},
	}

	switch def.Kind {
	case entity.KindAlarmControlPanel:
		doc.CommandTopic = def.CommandTopic
		doc.SupportedFeatures = panelFeatures(def.Commands)
	case entity.KindBinarySensor:
		doc.PayloadOn = "ON"
		doc.PayloadOff = "OFF"
	}

	if len(def.Device.Identifiers) > 0 {
		doc.Device = &deviceBlock{
			Identifiers:  def.Device.Identifiers,
			Name:         def.Device.Name,
			Model:        def.Device.Model,
			Manufacturer: def.Device.Manufacturer,
		}
	}

	return doc
}

// panelFeatures maps the entity's declared command set to HA feature bits.
func panelFeatures(commands []string) int {
	features := 0
	for _, cmd := range commands {
		switch cmd {
		case "arm_home":
			features |= featureArmHome
		case "arm_away":
			features |= featureArmAway
		case "trigger":
			features |= featureTrigger
		}
	}
	return features
}

// Topic returns the discovery config topic for an entity:
// <prefix>/<component>/<unique_id>/config.
func Topic(prefix string, def *entity.Definition) string {
	return fmt.Sprintf("%s/%s/%s/config", prefix, def.Kind, def.ID)
}

// Marshal renders the discovery payload for an entity. The output is
// deterministic: the same definition always yields the same bytes.
func Marshal(def *entity.Definition, availabilityTopic, payloadOnline, payloadOffline string) ([]byte, error) {
	doc := buildDocument(def, availabilityTopic, payloadOnline, payloadOffline)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling discovery document for %s: %w", def.ID, err)
	}
	return data, nil
}
