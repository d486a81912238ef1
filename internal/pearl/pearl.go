package pearl

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidArgument is returned when a required identity or value is missing.
// Callers should not retry; the request itself is wrong.
var ErrInvalidArgument = errors.New("invalid argument")

// FreeReason records why a pearl was released.
type FreeReason string

const (
	FreeReasonNone              FreeReason = ""
	FreeReasonFreedByPlayer     FreeReason = "freed_by_player"
	FreeReasonHealthDecay       FreeReason = "health_decay"
	FreeReasonPearlDestroyed    FreeReason = "pearl_destroyed"
	FreeReasonForceFreed        FreeReason = "force_freed_by_admin"
	FreeReasonSummonedAndKilled FreeReason = "summoned_and_killed"
	FreeReasonFreedOffline      FreeReason = "freed_offline"
	FreeReasonOther             FreeReason = "other"
)

var freeReasons = map[FreeReason]bool{
	FreeReasonFreedByPlayer:     true,
	FreeReasonHealthDecay:       true,
	FreeReasonPearlDestroyed:    true,
	FreeReasonForceFreed:        true,
	FreeReasonSummonedAndKilled: true,
	FreeReasonFreedOffline:      true,
	FreeReasonOther:             true,
}

// Valid reports whether r is a known release reason. The empty reason is not valid.
func (r FreeReason) Valid() bool {
	return freeReasons[r]
}

// ParseFreeReason maps user input onto a FreeReason.
func ParseFreeReason(s string) (FreeReason, bool) {
	r := FreeReason(s)
	return r, r.Valid()
}

// Pearl binds an exiled player to a token. It is a value: the registry stores
// its own copy and hands out copies, so holding a Pearl never aliases live state.
type Pearl struct {
	PlayerID   uuid.UUID  `json:"player_id"`
	PlayerName string     `json:"player_name"`
	KillerID   uuid.UUID  `json:"killer_id"`
	KillerName string     `json:"killer_name"`
	Health     int        `json:"health"`
	FreeReason FreeReason `json:"free_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Decayed returns a copy of p with health reduced by amount, floored at zero.
func (p Pearl) Decayed(amount int) Pearl {
	p.Health -= amount
	if p.Health < 0 {
		p.Health = 0
	}
	return p
}

// Freed returns a copy of p stamped with the release reason.
func (p Pearl) Freed(reason FreeReason) Pearl {
	p.FreeReason = reason
	return p
}

// Exhausted reports whether the pearl has no health left.
func (p Pearl) Exhausted() bool {
	return p.Health <= 0
}
