package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

func (s *Server) handleListPearls(w http.ResponseWriter, r *http.Request) {
	var pearls []pearl.Pearl
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		pearls = s.engine.SearchByName(prefix)
	} else {
		pearls = s.engine.Pearls()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pearls": pearls,
		"count":  len(pearls),
	})
}

func (s *Server) handleGetPearl(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(chi.URLParam(r, "player"))
	if !ok {
		writeError(w, http.StatusNotFound, "player is not exiled")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExiledID uuid.UUID `json:"exiled_id"`
		KillerID uuid.UUID `json:"killer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	p, err := s.engine.Exile(r.Context(), req.ExiledID, req.KillerID)
	if err != nil {
		if errors.Is(err, pearl.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		if s.engine.IsExiled(req.ExiledID) {
			writeError(w, http.StatusConflict, "player is already exiled")
		} else {
			writeError(w, http.StatusConflict, "exile was vetoed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleFree(w http.ResponseWriter, r *http.Request) {
	reason := pearl.FreeReasonForceFreed
	if raw := r.URL.Query().Get("reason"); raw != "" {
		parsed, ok := pearl.ParseFreeReason(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown free reason: "+raw)
			return
		}
		reason = parsed
	}

	p, ok := s.lookup(chi.URLParam(r, "player"))
	if !ok {
		writeError(w, http.StatusNotFound, "player is not exiled")
		return
	}

	freed, err := s.engine.Free(r.Context(), &p, reason)
	if err != nil {
		if errors.Is(err, pearl.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !freed {
		if s.engine.IsExiled(p.PlayerID) {
			writeError(w, http.StatusConflict, "release was vetoed")
		} else {
			writeError(w, http.StatusNotFound, "player is not exiled")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"freed":     true,
		"player_id": p.PlayerID,
		"reason":    reason,
	})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DecayTick(r.Context()))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Load(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("reload: failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pearls": len(s.engine.Pearls())})
}

// lookup resolves a path segment holding either a player uuid or a name.
func (s *Server) lookup(player string) (pearl.Pearl, bool) {
	if id, err := uuid.Parse(player); err == nil {
		return s.engine.Pearl(id)
	}
	return s.engine.PearlByName(player)
}
