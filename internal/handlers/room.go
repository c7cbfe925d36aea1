// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/auth"
	"github.com/dwarveslive/unit-card-battles/internal/room"
)

var validRoomTypes = map[string]bool{
	"private": true,
	"public":  true,
}

// CreateRoomHandler creates an ephemeral in-memory room. No DB writes; the
// OnEmpty callback removes the room once the last user leaves.
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractCookieToken(cookie, "auth_token")

		userIDStr, err := auth.AuthenticateJWT(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			http.Error(w, "invalid user id format in token", http.StatusBadRequest)
			return
		}

		newRoom := room.NewRoomWithDefaults(userID)

		if err := json.NewDecoder(r.Body).Decode(newRoom); err != nil && err.Error() != "EOF" {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}

		if newRoom.Type != "" && !validRoomTypes[newRoom.Type] {
			http.Error(w, "invalid room type", http.StatusBadRequest)
			return
		}

		newRoom.OnEmpty = func(roomID uuid.UUID) {
			gs.RoomStore.DeleteRoom(roomID)
		}

		gs.RoomStore.AddRoom(newRoom)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(newRoom)
	}
}

// ListRoomsHandler returns the in-memory room store, mainly for dashboards
// and debugging.
func ListRoomsHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractTokenFromCookie(cookie)
		if _, err := auth.AuthenticateJWT(token); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		rooms := gs.RoomStore.GetRooms()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rooms)
	}
}

func extractTokenFromCookie(cookie string) string {
	parts := strings.Split(cookie, "auth_token=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
