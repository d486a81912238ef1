package store

import (
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "players: last known display name per player",
		SQL: `
CREATE TABLE players (
    player_id  TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    last_seen  INTEGER NOT NULL
);

CREATE INDEX idx_players_name ON players(name COLLATE NOCASE);
`,
	},
	{
		Version:     2,
		Description: "pearls: active exile bindings",
		SQL: `
CREATE TABLE pearls (
    player_id   TEXT PRIMARY KEY,
    player_name TEXT NOT NULL,
    killer_id   TEXT NOT NULL,
    killer_name TEXT NOT NULL,
    health      INTEGER NOT NULL CHECK (health >= 0),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_pearls_name ON pearls(player_name COLLATE NOCASE);
`,
	},
	{
		Version:     3,
		Description: "pearl_history: released pearls",
		SQL: `
CREATE TABLE pearl_history (
    id          INTEGER PRIMARY KEY,
    player_id   TEXT NOT NULL,
    player_name TEXT NOT NULL,
    killer_id   TEXT NOT NULL,
    killer_name TEXT NOT NULL,
    health      INTEGER NOT NULL,
    free_reason TEXT NOT NULL,
    created_at  INTEGER NOT NULL,
    freed_at    INTEGER NOT NULL
);

CREATE INDEX idx_history_player ON pearl_history(player_id, freed_at DESC);
`,
	},
}

// migrate applies every migration not yet recorded in schema_versions, each
// in its own transaction.
func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
