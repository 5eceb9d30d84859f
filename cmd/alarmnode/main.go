// Alarm Node - MQTT security alarm endpoint
//
// This is the main entry point for the alarm node firmware. The node
// binds configured entities to GPIO hardware, announces them to Home
// Assistant over MQTT discovery, and runs the alarm state machine,
// sensor poll loop and OTA updater until shutdown or a restart request.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akosnad/alarm-node/internal/alarm"
	"github.com/akosnad/alarm-node/internal/discovery"
	"github.com/akosnad/alarm-node/internal/entity"
	"github.com/akosnad/alarm-node/internal/hw"
	"github.com/akosnad/alarm-node/internal/infrastructure/config"
	"github.com/akosnad/alarm-node/internal/infrastructure/database"
	"github.com/akosnad/alarm-node/internal/infrastructure/logging"
	"github.com/akosnad/alarm-node/internal/infrastructure/mqtt"
	"github.com/akosnad/alarm-node/internal/node"
	"github.com/akosnad/alarm-node/internal/ota"
	"github.com/akosnad/alarm-node/internal/sensor"
	"github.com/akosnad/alarm-node/internal/statestore"
	"github.com/akosnad/alarm-node/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Runtime settings topic. Key=value updates arrive here and are
// persisted across reboots.
const settingsTopic = "alarm/settings/set"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Bootstrap logger until configuration is loaded
	log := logging.Default()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting alarm node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Compile the entity document before touching any hardware or the
	// network: a bad binding is a boot-time fatal, not a runtime retry.
	registry, err := entity.Compile(cfg.EntityDocument())
	if err != nil {
		return fmt.Errorf("compiling entities: %w", err)
	}
	panels := registry.OfKind(entity.KindAlarmControlPanel)
	if len(panels) == 0 {
		return fmt.Errorf("no alarm control panel entity configured")
	}
	panel := panels[0]
	log.Info("entity registry compiled",
		"entities", registry.Len(),
		"panel", string(panel.ID),
	)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx, statestore.Migrations()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	store := statestore.New(db)

	binder, err := openBinder(cfg.GPIO, log)
	if err != nil {
		return fmt.Errorf("opening GPIO binder: %w", err)
	}
	defer func() {
		if closeErr := binder.Close(); closeErr != nil {
			log.Error("error closing GPIO binder", "error", closeErr)
		}
	}()

	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.AvailabilityTopic)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	defer func() {
		log.Info("closing MQTT connection")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT connection", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	restart := node.NewRestart()
	mailbox := node.NewMailbox(mqttClient, byte(cfg.MQTT.QoS), log)

	// The poller claims every sensor input before the controller claims
	// the siren output, so a siren_pin colliding with a sensor gpio_pin
	// fails here instead of swallowing siren writes at trigger time.
	poller, err := sensor.NewPoller(registry, binder, mailbox,
		cfg.PollInterval(), cfg.DebounceWindow(), log)
	if err != nil {
		return fmt.Errorf("creating sensor poller: %w", err)
	}

	alarmCtl, err := alarm.NewController(alarm.Options{
		StateTopic:  panel.StateTopic,
		EntryDelay:  cfg.EntryDelay(),
		ArmingDelay: cfg.ArmingTimeout(),
		Siren:       binder,
		SirenPin:    cfg.Alarm.SirenPin,
	}, mailbox, store, log)
	if err != nil {
		return fmt.Errorf("creating alarm controller: %w", err)
	}
	if err := alarmCtl.Restore(ctx); err != nil {
		return fmt.Errorf("restoring alarm state: %w", err)
	}
	poller.SetTripFunc(func(id entity.ID) {
		alarmCtl.SensorTrip(ctx)
	})

	verifier, err := buildVerifier(cfg.OTA.Verifier)
	if err != nil {
		return fmt.Errorf("creating OTA verifier: %w", err)
	}
	slotStore, err := ota.NewFileStore(cfg.OTA.SlotsDir)
	if err != nil {
		return fmt.Errorf("opening firmware slots: %w", err)
	}
	updater := ota.NewUpdater(slotStore, verifier, mailbox,
		cfg.OTA.Topic, cfg.ChunkTimeout(), restart.Request, log)

	announcer := discovery.NewPublisher(registry, cfg.DiscoveryPrefix,
		cfg.AvailabilityTopic, mqtt.PayloadOnline, mqtt.PayloadOffline, mailbox, log)

	// Telemetry is optional: the node is fully functional without it.
	var tele *telemetry.Client
	if cfg.Telemetry.Enabled {
		tele, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := tele.Close(); closeErr != nil {
				log.Error("error closing telemetry connection", "error", closeErr)
			}
		}()
		tele.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})

		alarmCtl.SetTransitionHook(func(from, to alarm.State, event alarm.Event) {
			tele.WriteAlarmTransition(from.String(), to.String(), event.String())
		})
		poller.SetEdgeHook(func(id entity.ID, level bool) {
			tele.WriteSensorEdge(string(id), level)
		})
		updater.SetResultHook(func(sessionID string, success bool, bytes int64) {
			tele.WriteUpdateResult(sessionID, success, bytes)
		})
		log.Info("telemetry connected", "url", cfg.Telemetry.URL)
	} else {
		log.Info("telemetry disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, tele); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	n := node.New(node.Options{
		Registry:      registry,
		Broker:        mqttClient,
		Mailbox:       mailbox,
		Alarm:         alarmCtl,
		Poller:        poller,
		Updater:       updater,
		Discovery:     announcer,
		Settings:      store,
		Restart:       restart,
		QoS:           byte(cfg.MQTT.QoS),
		OTATopic:      cfg.OTA.Topic,
		SettingsTopic: settingsTopic,
	}, log)

	log.Info("initialisation complete, node running")

	err = n.Run(ctx)
	switch {
	case node.IsRestart(err):
		// Deferred closes run on the way out; the process supervisor
		// relaunches into the promoted slot.
		log.Info("restart requested, exiting for relaunch")
		return nil
	case err != nil:
		return fmt.Errorf("node runtime: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ALARMNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ALARMNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openBinder selects the hardware binding backend.
func openBinder(cfg config.GPIOConfig, log *logging.Logger) (hw.Binder, error) {
	if cfg.Simulated {
		log.Warn("GPIO simulated, hardware pins are not driven")
		return hw.NewMemBinder(), nil
	}
	binder, err := hw.OpenChip(hw.ChipConfig{Name: cfg.Chip, PullUp: cfg.PullUp})
	if err != nil {
		return nil, err
	}
	log.Info("GPIO chip opened", "chip", cfg.Chip, "pull_up", cfg.PullUp)
	return binder, nil
}

// buildVerifier constructs the OTA image verifier from configuration.
func buildVerifier(cfg config.VerifierConfig) (ota.Verifier, error) {
	switch cfg.Type {
	case "minisign":
		return ota.NewMinisignVerifier(cfg.PublicKey)
	case "sha256":
		return ota.SHA256Verifier{}, nil
	default:
		return nil, fmt.Errorf("unknown verifier type %q", cfg.Type)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - tele: Telemetry client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, tele *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if tele != nil {
		if err := tele.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}
