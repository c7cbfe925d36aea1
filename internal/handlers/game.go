// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dwarveslive/unit-card-battles/internal/game"
)

// ServeHTTP parses routes under /game and redirects to the appropriate
// controller. The WebSocket flow lives in game_ws.go.
func (s *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/game/create" && r.Method == http.MethodPost {
		s.handleCreateGame(w, r)
		return
	}
	http.Error(w, "unsupported route, use /game/ws/{id} for websockets", http.StatusNotFound)
}

// handleCreateGame creates a standalone in-memory game with the default
// ruleset, mainly for debugging. Regular matches are spawned from rooms.
func (s *GameServer) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	g := game.NewGame(game.DefaultConfig())
	s.GameStore.AddGame(g)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"game_id": g.ID,
	})
}
