package hooks

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// handleDestroy frees the player whose pearl was destroyed in the world.
func handleDestroy(client *Client, input *Event) (Output, error) {
	if input.PlayerID == uuid.Nil {
		return Output{}, fmt.Errorf("destroy: player_id required")
	}

	reason := pearl.FreeReasonPearlDestroyed
	if input.Reason != "" {
		parsed, ok := pearl.ParseFreeReason(input.Reason)
		if !ok {
			return Output{}, fmt.Errorf("destroy: unknown reason %q", input.Reason)
		}
		reason = parsed
	}

	params := url.Values{}
	params.Set("reason", string(reason))
	_, err := client.Delete("/api/pearls/" + input.PlayerID.String() + "?" + params.Encode())
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusConflict || se.Code == http.StatusNotFound) {
			return Output{Exiled: se.Code == http.StatusConflict, Note: errorNote(se.Body)}, nil
		}
		return Output{}, err
	}
	return Output{Freed: true}, nil
}
