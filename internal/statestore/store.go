package statestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akosnad/alarm-node/internal/infrastructure/database"
)

// Store persists alarm state and runtime settings across restarts.
//
// The alarm panel must come back in the state it was left in: a node
// that reboots while armed stays armed, and a node rebooting mid-alarm
// comes back triggered. Settings tuned over MQTT survive the same way.
type Store struct {
	db *database.DB
}

// New creates a store over an open database. Call Migrations when
// opening the database so the schema exists.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Migrations returns the schema migrations this store requires.
// Pass them to database.Migrate at startup.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version: 1,
			Name:    "alarm_state",
			SQL: `
				CREATE TABLE alarm_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					state TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)
			`,
		},
		{
			Version: 2,
			Name:    "alarm_settings",
			SQL: `
				CREATE TABLE alarm_settings (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)
			`,
		},
	}
}

// SaveAlarmState persists the current alarm state.
// The table holds a single row that is overwritten on every transition.
func (s *Store) SaveAlarmState(ctx context.Context, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alarm_state (id, state, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		state,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving alarm state: %w", err)
	}
	return nil
}

// LoadAlarmState returns the persisted alarm state.
// Returns ErrNoState when nothing has been persisted yet (first boot).
func (s *Store) LoadAlarmState(ctx context.Context) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM alarm_state WHERE id = 1",
	).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoState
		}
		return "", fmt.Errorf("loading alarm state: %w", err)
	}
	return state, nil
}

// SaveSetting persists a single runtime setting.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alarm_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// LoadSetting returns a single setting value.
// Returns ErrNoState when the key has never been set.
func (s *Store) LoadSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM alarm_settings WHERE key = ?", key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNoState
		}
		return "", fmt.Errorf("loading setting %s: %w", key, err)
	}
	return value, nil
}

// LoadSettings returns all persisted settings.
func (s *Store) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM alarm_settings ORDER BY key",
	)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return settings, nil
}
