package hooks

import (
	"github.com/google/uuid"
)

// Event is the JSON the game server plugin sends on stdin to hook handlers.
// Different events populate different subsets.
type Event struct {
	PlayerID   uuid.UUID `json:"player_id"`
	PlayerName string    `json:"player_name,omitempty"`

	// kill
	KillerID   uuid.UUID `json:"killer_id"`
	KillerName string    `json:"killer_name,omitempty"`

	// destroy
	Reason string `json:"reason,omitempty"`
}
