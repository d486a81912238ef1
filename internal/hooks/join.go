package hooks

import (
	"fmt"

	"github.com/google/uuid"
)

// handleJoin records the joining player's name and reports whether they are
// currently exiled.
func handleJoin(client *Client, input *Event) (Output, error) {
	if input.PlayerID == uuid.Nil {
		return Output{}, fmt.Errorf("join: player_id required")
	}
	if err := rememberName(client, input.PlayerID, input.PlayerName); err != nil {
		return Output{}, err
	}

	p, err := fetchPearl(client, input.PlayerID)
	if err != nil {
		return Output{}, err
	}
	return Output{Exiled: p != nil, Pearl: p}, nil
}
