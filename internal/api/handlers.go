package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"duel-arena/internal/match"
	"duel-arena/internal/render"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"matches": h.matches.Count(),
	})
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.weapons.All())
}

func (h *routerHandlers) handleGetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.rules.Config())
}

func (h *routerHandlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	live := h.matches.List()
	views := make([]match.View, 0, len(live))
	for _, m := range live {
		views = append(views, m.Snapshot())
	}
	writeJSON(w, views)
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupMatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, m.Snapshot())
}

// handleMatchFrame renders the current state of a match as a PNG.
// ?scale= downsizes it, within [render.MinScale, render.MaxScale].
func (h *routerHandlers) handleMatchFrame(w http.ResponseWriter, r *http.Request) {
	scale := render.MaxScale
	if raw := r.URL.Query().Get("scale"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < render.MinScale || v > render.MaxScale {
			writeError(w, render.ErrBadScale.Error(), http.StatusBadRequest)
			return
		}
		scale = v
	}

	m, ok := h.lookupMatch(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := render.PNG(w, m.Snapshot(), scale); err != nil {
		h.log.Warn("render frame failed", zap.String("match", m.ID()), zap.Error(err))
	}
}

func (h *routerHandlers) lookupMatch(w http.ResponseWriter, r *http.Request) (*match.Match, bool) {
	m, err := h.matches.Get(chi.URLParam(r, "id"))
	if errors.Is(err, match.ErrUnknownMatch) {
		writeError(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		writeError(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	writeJSON(w, map[string]any{
		"total":   h.board.Len(),
		"entries": h.board.Top(limit),
	})
}

func (h *routerHandlers) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		writeError(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "name")
	entry, ok := h.board.Lookup(name)
	if !ok {
		writeError(w, "profile not found", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
