package entity

import (
	"regexp"
	"strings"
)

// Variant names accepted in configuration documents.
const (
	variantAlarmControlPanel = "alarm_control_panel"
	variantBinarySensor      = "binary_sensor"
)

// defaultPanelCommands is the command set advertised for a panel when the
// document does not narrow it.
var defaultPanelCommands = []string{"arm_home", "arm_away", "trigger"}

// uniqueIDPattern restricts unique identifiers to characters that are safe
// in MQTT topics and Home Assistant entity IDs.
var uniqueIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Compile turns an entity document into an immutable Registry.
//
// Compilation is pure: no network, no hardware. Every violation found is
// collected into a single *ConfigError so a bad document reports all of
// its defects at once, and no registry is constructed if any violation
// exists:
//   - duplicate unique identifiers
//   - duplicate state/command topics across all entities
//   - duplicate GPIO pin assignment
//   - references to an undeclared device
//   - missing or contradictory fields for an entity's kind
//   - more than one alarm_control_panel (the node drives a single
//     alarm state machine)
//
// Parameters:
//   - doc: The parsed entity/device document
//
// Returns:
//   - *Registry: Compiled registry, nil if any violation was found
//   - error: *ConfigError enumerating every violation, or nil
func Compile(doc Document) (*Registry, error) {
	cerr := &ConfigError{}

	devices := compileDevices(doc.Devices, cerr)

	seenIDs := make(map[string]bool, len(doc.Entities))
	topicOwner := make(map[string]string)
	pinOwner := make(map[int]string)
	panelOwner := ""

	defs := make([]*Definition, 0, len(doc.Entities))
	for i, ec := range doc.Entities {
		def := compileEntity(i, ec, devices, cerr)
		if def == nil {
			continue
		}

		if seenIDs[ec.UniqueID] {
			cerr.add("entity %q: duplicate unique_id", ec.UniqueID)
			continue
		}
		seenIDs[ec.UniqueID] = true

		claimTopic(def.StateTopic, ec.UniqueID, topicOwner, cerr)
		if def.CommandTopic != "" {
			claimTopic(def.CommandTopic, ec.UniqueID, topicOwner, cerr)
		}
		if def.Kind == KindAlarmControlPanel {
			// One controller drives one panel; a second panel's commands
			// would silently mutate the first panel's state.
			if panelOwner != "" {
				cerr.add("entity %q: only one alarm_control_panel is supported (already declared by %q)", ec.UniqueID, panelOwner)
			} else {
				panelOwner = ec.UniqueID
			}
		}
		if def.Kind == KindBinarySensor {
			if owner, taken := pinOwner[def.Pin]; taken {
				cerr.add("entity %q: gpio pin %d already bound by %q", ec.UniqueID, def.Pin, owner)
			} else {
				pinOwner[def.Pin] = ec.UniqueID
			}
		}

		defs = append(defs, def)
	}

	if len(cerr.Violations) > 0 {
		return nil, cerr
	}

	return newRegistry(defs), nil
}

// compileDevices validates device declarations and returns them keyed by ID.
func compileDevices(devices []DeviceConfig, cerr *ConfigError) map[string]Device {
	out := make(map[string]Device, len(devices))
	for i, dc := range devices {
		if dc.ID == "" {
			cerr.add("device #%d: id is required", i)
			continue
		}
		if _, dup := out[dc.ID]; dup {
			cerr.add("device %q: duplicate id", dc.ID)
			continue
		}
		if len(dc.Identifiers) == 0 {
			cerr.add("device %q: at least one identifier is required", dc.ID)
			continue
		}
		if dc.Name == "" {
			cerr.add("device %q: name is required", dc.ID)
			continue
		}
		out[dc.ID] = Device{
			Identifiers:  append([]string(nil), dc.Identifiers...),
			Name:         dc.Name,
			Model:        dc.Model,
			Manufacturer: dc.Manufacturer,
		}
	}
	return out
}

// compileEntity validates a single entity declaration.
// Returns nil if the declaration is invalid; violations are recorded on cerr.
func compileEntity(index int, ec EntityConfig, devices map[string]Device, cerr *ConfigError) *Definition {
	label := ec.UniqueID
	if label == "" {
		cerr.add("entity #%d: unique_id is required", index)
		return nil
	}
	if !uniqueIDPattern.MatchString(ec.UniqueID) {
		cerr.add("entity %q: unique_id must match %s", label, uniqueIDPattern.String())
		return nil
	}

	valid := true
	if ec.Name == "" {
		cerr.add("entity %q: name is required", label)
		valid = false
	}
	if !validTopic(ec.StateTopic) {
		cerr.add("entity %q: state_topic is missing or invalid", label)
		valid = false
	}

	device, deviceOK := devices[ec.Device]
	if ec.Device == "" {
		cerr.add("entity %q: device reference is required", label)
		valid = false
	} else if !deviceOK {
		cerr.add("entity %q: references undeclared device %q", label, ec.Device)
		valid = false
	}

	def := &Definition{
		ID:          ID(ec.UniqueID),
		Name:        ec.Name,
		StateTopic:  ec.StateTopic,
		Icon:        ec.Icon,
		DeviceClass: ec.DeviceClass,
		Device:      device,
	}

	switch ec.Variant {
	case variantAlarmControlPanel:
		def.Kind = KindAlarmControlPanel
		if !validTopic(ec.CommandTopic) {
			cerr.add("entity %q: alarm_control_panel requires a valid command_topic", label)
			valid = false
		}
		if ec.GPIOPin != nil {
			cerr.add("entity %q: alarm_control_panel must not bind a gpio_pin", label)
			valid = false
		}
		def.CommandTopic = ec.CommandTopic
		def.Commands = ec.Commands
		if len(def.Commands) == 0 {
			def.Commands = defaultPanelCommands
		}

	case variantBinarySensor:
		def.Kind = KindBinarySensor
		if ec.GPIOPin == nil {
			cerr.add("entity %q: binary_sensor requires a gpio_pin", label)
			valid = false
		} else if *ec.GPIOPin < 0 {
			cerr.add("entity %q: gpio_pin must not be negative", label)
			valid = false
		} else {
			def.Pin = *ec.GPIOPin
		}
		if ec.CommandTopic != "" {
			cerr.add("entity %q: binary_sensor must not declare a command_topic", label)
			valid = false
		}

	default:
		cerr.add("entity %q: unknown variant %q", label, ec.Variant)
		valid = false
	}

	if !valid {
		return nil
	}
	return def
}

// claimTopic records topic ownership, reporting a violation if the topic
// is already claimed by any entity (including the same one).
func claimTopic(topic, uniqueID string, owner map[string]string, cerr *ConfigError) {
	if prev, taken := owner[topic]; taken {
		cerr.add("entity %q: topic %q already claimed by %q", uniqueID, topic, prev)
		return
	}
	owner[topic] = uniqueID
}

// validTopic reports whether a topic is publishable: non-empty, no
// wildcards, no empty segments.
func validTopic(topic string) bool {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return false
	}
	for _, segment := range strings.Split(topic, "/") {
		if segment == "" {
			return false
		}
	}
	return true
}
