package statestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/akosnad/alarm-node/internal/infrastructure/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck
	})

	if err := db.Migrate(context.Background(), Migrations()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return New(db)
}

func TestLoadAlarmStateEmpty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadAlarmState(context.Background())
	if !errors.Is(err, ErrNoState) {
		t.Errorf("LoadAlarmState() error = %v, want ErrNoState", err)
	}
}

func TestSaveAndLoadAlarmState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveAlarmState(ctx, "armed_away"); err != nil {
		t.Fatalf("SaveAlarmState() error = %v", err)
	}

	state, err := store.LoadAlarmState(ctx)
	if err != nil {
		t.Fatalf("LoadAlarmState() error = %v", err)
	}
	if state != "armed_away" {
		t.Errorf("LoadAlarmState() = %q, want %q", state, "armed_away")
	}
}

func TestSaveAlarmStateOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	states := []string{"disarmed", "armed_home", "triggered", "disarmed"}
	for _, s := range states {
		if err := store.SaveAlarmState(ctx, s); err != nil {
			t.Fatalf("SaveAlarmState(%q) error = %v", s, err)
		}
	}

	state, err := store.LoadAlarmState(ctx)
	if err != nil {
		t.Fatalf("LoadAlarmState() error = %v", err)
	}
	if state != "disarmed" {
		t.Errorf("LoadAlarmState() = %q, want last saved %q", state, "disarmed")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.LoadSetting(ctx, "entry_delay"); !errors.Is(err, ErrNoState) {
		t.Errorf("LoadSetting() on empty store error = %v, want ErrNoState", err)
	}

	if err := store.SaveSetting(ctx, "entry_delay", "45"); err != nil {
		t.Fatalf("SaveSetting() error = %v", err)
	}
	if err := store.SaveSetting(ctx, "entry_delay", "60"); err != nil {
		t.Fatalf("SaveSetting() overwrite error = %v", err)
	}

	value, err := store.LoadSetting(ctx, "entry_delay")
	if err != nil {
		t.Fatalf("LoadSetting() error = %v", err)
	}
	if value != "60" {
		t.Errorf("LoadSetting() = %q, want %q", value, "60")
	}
}

func TestLoadSettingsReturnsAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSetting(ctx, "entry_delay", "30"); err != nil {
		t.Fatalf("SaveSetting() error = %v", err)
	}
	if err := store.SaveSetting(ctx, "siren_pin", "17"); err != nil {
		t.Fatalf("SaveSetting() error = %v", err)
	}

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("LoadSettings() returned %d entries, want 2", len(settings))
	}
	if settings["entry_delay"] != "30" || settings["siren_pin"] != "17" {
		t.Errorf("LoadSettings() = %v, unexpected values", settings)
	}
}
