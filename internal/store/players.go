package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UpsertPlayer records the latest display name seen for a player.
func (db *DB) UpsertPlayer(ctx context.Context, id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if id == uuid.Nil || name == "" {
		return fmt.Errorf("upsert player: id and name required")
	}
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO players (player_id, name, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen
	`, id.String(), name, now)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// NameFor returns the last known name of a player, or "" if the player was
// never seen.
func (db *DB) NameFor(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := db.QueryRowContext(ctx, `SELECT name FROM players WHERE player_id = ?`, id.String()).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get player name: %w", err)
	}
	return name, nil
}

// PlayerByName resolves a display name to a player id, ignoring case.
// It returns uuid.Nil when no player has that name.
func (db *DB) PlayerByName(ctx context.Context, name string) (uuid.UUID, error) {
	var raw string
	err := db.QueryRowContext(ctx, `
		SELECT player_id FROM players WHERE name = ? COLLATE NOCASE
		ORDER BY last_seen DESC LIMIT 1
	`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get player by name: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get player by name: %w", err)
	}
	return id, nil
}
