package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Maxopoly/ExilePearl/internal/gate"
	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// HistoryEntry is a released pearl as recorded in pearl_history.
type HistoryEntry struct {
	ID      int64       `json:"id"`
	Pearl   pearl.Pearl `json:"pearl"`
	FreedAt time.Time   `json:"freed_at"`
}

// LoadAll returns every stored active pearl.
func (db *DB) LoadAll(ctx context.Context) ([]pearl.Pearl, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT player_id, player_name, killer_id, killer_name, health, created_at
		FROM pearls ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("load pearls: %w", err)
	}
	defer rows.Close()

	var pearls []pearl.Pearl
	for rows.Next() {
		p, err := scanPearl(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pearl: %w", err)
		}
		pearls = append(pearls, p)
	}
	return pearls, rows.Err()
}

// OnCommitted persists a committed transition. A new pearl is upserted; a
// freed pearl is deleted and appended to pearl_history in one transaction.
func (db *DB) OnCommitted(ctx context.Context, kind gate.Kind, p pearl.Pearl) error {
	switch kind {
	case gate.KindNew:
		return db.savePearl(ctx, p)
	case gate.KindFreed:
		return db.archivePearl(ctx, p)
	default:
		return fmt.Errorf("persist transition: unknown kind %d", kind)
	}
}

// SaveHealth writes the current health of an active pearl.
func (db *DB) SaveHealth(ctx context.Context, p pearl.Pearl) error {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE pearls SET health = ?, updated_at = ? WHERE player_id = ?
	`, p.Health, now, p.PlayerID.String())
	if err != nil {
		return fmt.Errorf("save health: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("save health: no stored pearl for %s", p.PlayerID)
	}
	return nil
}

// History returns the most recent releases for a player, newest first.
func (db *DB) History(ctx context.Context, playerID uuid.UUID, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, player_id, player_name, killer_id, killer_name, health, created_at, free_reason, freed_at
		FROM pearl_history WHERE player_id = ? ORDER BY freed_at DESC, id DESC LIMIT ?
	`, playerID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e                  HistoryEntry
			playerStr, killer  string
			createdAt, freedAt int64
			reason             string
		)
		if err := rows.Scan(&e.ID, &playerStr, &e.Pearl.PlayerName, &killer, &e.Pearl.KillerName,
			&e.Pearl.Health, &createdAt, &reason, &freedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if e.Pearl.PlayerID, err = uuid.Parse(playerStr); err != nil {
			return nil, fmt.Errorf("scan history: player id: %w", err)
		}
		if e.Pearl.KillerID, err = uuid.Parse(killer); err != nil {
			return nil, fmt.Errorf("scan history: killer id: %w", err)
		}
		e.Pearl.CreatedAt = time.UnixMilli(createdAt).UTC()
		e.Pearl.FreeReason = pearl.FreeReason(reason)
		e.FreedAt = time.UnixMilli(freedAt).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *DB) savePearl(ctx context.Context, p pearl.Pearl) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO pearls (player_id, player_name, killer_id, killer_name, health, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET
			player_name = excluded.player_name,
			killer_id   = excluded.killer_id,
			killer_name = excluded.killer_name,
			health      = excluded.health,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at
	`, p.PlayerID.String(), p.PlayerName, p.KillerID.String(), p.KillerName,
		p.Health, p.CreatedAt.UnixMilli(), now)
	if err != nil {
		return fmt.Errorf("save pearl: %w", err)
	}
	return nil
}

func (db *DB) archivePearl(ctx context.Context, p pearl.Pearl) error {
	now := time.Now().UnixMilli()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive pearl: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pearls WHERE player_id = ?`, p.PlayerID.String()); err != nil {
		return fmt.Errorf("archive pearl: delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pearl_history (player_id, player_name, killer_id, killer_name, health, free_reason, created_at, freed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.PlayerID.String(), p.PlayerName, p.KillerID.String(), p.KillerName,
		p.Health, string(p.FreeReason), p.CreatedAt.UnixMilli(), now); err != nil {
		return fmt.Errorf("archive pearl: history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive pearl: commit: %w", err)
	}
	return nil
}

func scanPearl(rows *sql.Rows) (pearl.Pearl, error) {
	var (
		p                pearl.Pearl
		playerID, killer string
		createdAt        int64
	)
	if err := rows.Scan(&playerID, &p.PlayerName, &killer, &p.KillerName, &p.Health, &createdAt); err != nil {
		return pearl.Pearl{}, err
	}
	var err error
	if p.PlayerID, err = uuid.Parse(playerID); err != nil {
		return pearl.Pearl{}, fmt.Errorf("player id: %w", err)
	}
	if p.KillerID, err = uuid.Parse(killer); err != nil {
		return pearl.Pearl{}, fmt.Errorf("killer id: %w", err)
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return p, nil
}
