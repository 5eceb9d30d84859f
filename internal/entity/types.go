package entity

// ID is the globally unique identifier of a compiled entity.
type ID string

// Kind is the closed set of entity kinds the node exposes.
// Dispatch sites switch exhaustively over this enum; adding a kind means
// revisiting every switch, which is intentional for a fixed, small set.
type Kind int

const (
	// KindAlarmControlPanel is the alarm panel entity: accepts commands,
	// publishes alarm state.
	KindAlarmControlPanel Kind = iota

	// KindBinarySensor is a GPIO-backed boolean sensor.
	KindBinarySensor
)

// String returns the Home Assistant component name for the kind.
func (k Kind) String() string {
	switch k {
	case KindAlarmControlPanel:
		return "alarm_control_panel"
	case KindBinarySensor:
		return "binary_sensor"
	default:
		return "unknown"
	}
}

// Device is the identity group shared by entities that are physically
// co-located. Held by value in each Definition; devices are immutable
// after compilation so value sharing is safe.
type Device struct {
	Identifiers  []string
	Name         string
	Model        string
	Manufacturer string
}

// Definition is a compiled entity. It is created once by Compile, is
// immutable for the process lifetime, and is owned by the Registry.
type Definition struct {
	ID   ID
	Kind Kind
	Name string

	StateTopic string

	// CommandTopic is set only for alarm control panels.
	CommandTopic string

	Icon        string
	DeviceClass string

	// Pin is the bound GPIO pin. Valid only for binary sensors.
	Pin int

	// Commands is the set of supported panel commands.
	// Valid only for alarm control panels.
	Commands []string

	Device Device
}

// Document is the human-authored entity description consumed by Compile.
// It is the entities/devices portion of the node configuration file.
type Document struct {
	Devices  []DeviceConfig `yaml:"devices"`
	Entities []EntityConfig `yaml:"entities"`
}

// DeviceConfig declares a device identity group in the configuration document.
type DeviceConfig struct {
	ID           string   `yaml:"id"`
	Identifiers  []string `yaml:"identifiers"`
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Manufacturer string   `yaml:"manufacturer"`
}

// EntityConfig declares a single entity in the configuration document.
type EntityConfig struct {
	Name         string   `yaml:"name"`
	Variant      string   `yaml:"variant"`
	UniqueID     string   `yaml:"unique_id"`
	StateTopic   string   `yaml:"state_topic"`
	CommandTopic string   `yaml:"command_topic"`
	GPIOPin      *int     `yaml:"gpio_pin"`
	Icon         string   `yaml:"icon"`
	DeviceClass  string   `yaml:"device_class"`
	Device       string   `yaml:"device"`
	Commands     []string `yaml:"commands"`
}
