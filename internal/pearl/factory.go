package pearl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Factory builds new pearls. It has no side effects.
type Factory struct {
	now func() time.Time
}

// NewFactory returns a Factory stamping creation times with now.
// A nil clock falls back to time.Now.
func NewFactory(now func() time.Time) *Factory {
	if now == nil {
		now = time.Now
	}
	return &Factory{now: now}
}

// Create builds a pearl for the exiled player with the given starting health.
// Creation time is kept at millisecond precision, matching what storage keeps.
func (f *Factory) Create(exiledID uuid.UUID, exiledName string, killerID uuid.UUID, killerName string, health int) (Pearl, error) {
	if exiledID == uuid.Nil {
		return Pearl{}, fmt.Errorf("create pearl: exiled player id required: %w", ErrInvalidArgument)
	}
	if killerID == uuid.Nil {
		return Pearl{}, fmt.Errorf("create pearl: killer id required: %w", ErrInvalidArgument)
	}
	if health < 0 {
		return Pearl{}, fmt.Errorf("create pearl: negative health %d: %w", health, ErrInvalidArgument)
	}
	return Pearl{
		PlayerID:   exiledID,
		PlayerName: exiledName,
		KillerID:   killerID,
		KillerName: killerName,
		Health:     health,
		CreatedAt:  f.now().UTC().Truncate(time.Millisecond),
	}, nil
}
