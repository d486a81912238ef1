package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// handleKill exiles the killed player. A conflict (already exiled or vetoed)
// is a normal outcome and is reported in the output, not as an error.
func handleKill(client *Client, input *Event) (Output, error) {
	if input.PlayerID == uuid.Nil || input.KillerID == uuid.Nil {
		return Output{}, fmt.Errorf("kill: player_id and killer_id required")
	}

	// Names first so the new pearl carries them
	if err := rememberName(client, input.PlayerID, input.PlayerName); err != nil {
		return Output{}, err
	}
	if err := rememberName(client, input.KillerID, input.KillerName); err != nil {
		return Output{}, err
	}

	body, _ := json.Marshal(map[string]uuid.UUID{
		"exiled_id": input.PlayerID,
		"killer_id": input.KillerID,
	})
	data, err := client.Post("/api/pearls", body)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			p, err := fetchPearl(client, input.PlayerID)
			if err != nil {
				return Output{}, fmt.Errorf("kill: %s; look up pearl: %w", errorNote(se.Body), err)
			}
			return Output{Exiled: p != nil, Pearl: p, Note: errorNote(se.Body)}, nil
		}
		return Output{}, err
	}

	var p pearl.Pearl
	if err := json.Unmarshal(data, &p); err != nil {
		return Output{}, fmt.Errorf("decode pearl: %w", err)
	}
	return Output{Exiled: true, Pearl: &p}, nil
}

func rememberName(client *Client, id uuid.UUID, name string) error {
	if name == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"name": name})
	if _, err := client.Put("/api/players/"+id.String(), body); err != nil {
		return fmt.Errorf("record player name: %w", err)
	}
	return nil
}

// fetchPearl returns the player's active pearl, or nil if they are free.
func fetchPearl(client *Client, id uuid.UUID) (*pearl.Pearl, error) {
	data, err := client.Get("/api/pearls/" + id.String())
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	var p pearl.Pearl
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode pearl: %w", err)
	}
	return &p, nil
}

func errorNote(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return string(body)
	}
	return resp.Error
}
