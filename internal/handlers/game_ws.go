// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dwarveslive/unit-card-battles/internal/game"
	"github.com/dwarveslive/unit-card-battles/internal/models"
)

// GameMessage is the envelope for incoming WebSocket messages during a match.
type GameMessage struct {
	Type string `json:"type"`

	// Payload carries the action-specific fields (cardId, unitId, cardIds,
	// targetPlayerId, fromDiscard, choice, and so on).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// gameActionTypes lists every action the engine accepts over the wire.
var gameActionTypes = map[string]bool{
	"action_draw":             true,
	"action_play_unit":        true,
	"action_choose":           true,
	"action_attack":           true,
	"action_defend":           true,
	"action_reinforce":        true,
	"action_kidnap":           true,
	"action_skip_kidnap":      true,
	"action_discard":          true,
	"action_activate_ability": true,
	"action_effect_choice":    true,
	"action_end_turn":         true,
}

// GameWSHandler upgrades the HTTP connection to WebSocket for a specific game
// instance. It authenticates the user, verifies they belong to the game,
// registers the connection, and then starts the read loop to handle incoming
// game messages.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract game ID from URL path: /game/ws/{game_id}
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}

		g, ok := gs.GameStore.GetGame(gameID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		if g.GameOver {
			http.Error(w, "Game has already ended", http.StatusGone)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client for game %s connected with invalid subprotocol: %s", gameID, c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'game' subprotocol.")
			return
		}
		logger.Infof("WebSocket connection established for game %s from %s", gameID, r.RemoteAddr)

		// Authenticate user, potentially creating an ephemeral guest user.
		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed for game %s: %v", gameID, err)
			c.Close(websocket.StatusPolicyViolation, "Authentication failed.")
			return
		}
		logger.Infof("User %s authenticated for game %s", userID, gameID)

		// Verify the authenticated user is a player in this specific game.
		isPlayerInGame := false
		g.Mu.Lock()
		for _, p := range g.Players {
			if p.ID == userID {
				isPlayerInGame = true
				break
			}
		}
		g.Mu.Unlock()
		if !isPlayerInGame {
			logger.Warnf("User %s is not a player in game %s. Closing connection.", userID, gameID)
			c.Close(websocket.StatusPolicyViolation, "You are not a player in this game.")
			return
		}

		// Register broadcast functions if they haven't been set up yet for
		// this game instance.
		g.Mu.Lock()
		if g.BroadcastFn == nil {
			g.BroadcastFn = createBroadcastFunc(g, logger)
		}
		if g.BroadcastToPlayerFn == nil {
			g.BroadcastToPlayerFn = createBroadcastToPlayerFunc(g, logger)
		}
		g.Mu.Unlock()

		// Rebind the connection and push a fresh snapshot to the client.
		g.HandleReconnect(userID, c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readGameMessages(ctx, c, g, userID, logger)

		// Cleanup after readGameMessages returns.
		logger.Infof("Player %s WebSocket read loop exited for game %s.", userID, gameID)
		g.HandleDisconnect(userID)
		logger.Infof("Player %s cleanup complete for game %s.", userID, gameID)
	}
}

// createBroadcastFunc returns a function suitable for Game.BroadcastFn.
// It marshals the event and sends it asynchronously to all connected players.
// The engine invokes it with the game lock already held, so it must not
// touch g.Mu: it snapshots the connected players inline and hands the
// writes to a goroutine.
func createBroadcastFunc(g *game.Game, logger *logrus.Logger) func(ev game.GameEvent) {
	return func(ev game.GameEvent) {
		playersToSend := []*models.Player{}
		for _, p := range g.Players {
			if p.Connected && p.Conn != nil {
				playersToSend = append(playersToSend, p)
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for game %s: %v", ev.Type, g.ID, err)
			return
		}

		// Send asynchronously.
		go func(players []*models.Player, data []byte, gameID uuid.UUID) {
			for _, pl := range players {
				if pl.Conn != nil {
					ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
					err := pl.Conn.Write(ctx, websocket.MessageText, data)
					cancel()
					if err != nil {
						logger.Warnf("Failed to write broadcast message to player %s in game %s: %v", pl.ID, gameID, err)
					}
				}
			}
		}(playersToSend, msgBytes, g.ID)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for Game.BroadcastToPlayerFn.
// It finds the target player, marshals the event, and sends it asynchronously.
// Like the broadcast closure, it runs under the game lock and must not
// re-acquire g.Mu.
func createBroadcastToPlayerFunc(g *game.Game, logger *logrus.Logger) func(targetPlayerID uuid.UUID, ev game.GameEvent) {
	return func(targetPlayerID uuid.UUID, ev game.GameEvent) {
		var targetConn *websocket.Conn
		for _, pl := range g.Players {
			if pl.ID == targetPlayerID {
				if pl.Connected && pl.Conn != nil {
					targetConn = pl.Conn
				}
				break
			}
		}

		if targetConn == nil {
			return
		}
		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for player %s in game %s: %v", ev.Type, targetPlayerID, g.ID, err)
			return
		}
		// Send asynchronously.
		go func(conn *websocket.Conn, data []byte, playerID uuid.UUID, gameID uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to player %s in game %s: %v", playerID, gameID, err)
			}
		}(targetConn, msgBytes, targetPlayerID, g.ID)
	}
}

// readGameMessages continuously reads messages from a client's WebSocket
// connection, unmarshals them, and routes them to the engine's action handler.
// It operates within the connection's context and exits upon error or
// cancellation.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.Game, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in game %s.", userID, g.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in game %s.", userID, g.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for user %s in game %s: %v (Status: %d)", userID, g.ID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s in game %s. Ignoring.", msgType, userID, g.ID)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s in game %s: %v. Data: %s", userID, g.ID, err, string(data))
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received action '%s' from user %s in game %s.", msg.Type, userID, g.ID)

		// Acquire game lock before accessing or modifying game state.
		g.Mu.Lock()

		if g.GameOver {
			logger.Warnf("Game %s is over. Ignoring action '%s' from user %s.", g.ID, msg.Type, userID)
			g.Mu.Unlock()
			continue
		}

		switch {
		case gameActionTypes[msg.Type]:
			gameAction := models.GameAction{
				ActionType: msg.Type,
				Payload:    msg.Payload,
			}
			if gameAction.Payload == nil {
				gameAction.Payload = make(map[string]interface{})
			}
			// Call the main action handler (assumes lock is held).
			g.HandlePlayerAction(userID, gameAction)

		case msg.Type == "ping":
			// Respond to ping immediately without holding the lock for the write.
			g.Mu.Unlock()
			logger.Tracef("Received ping from user %s, sending pong.", userID)
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
			g.Mu.Lock()

		default:
			logger.Warnf("Unknown action type '%s' from user %s in game %s.", msg.Type, userID, g.ID)
			sendWsError(ctx, c, fmt.Sprintf("Unknown action type: %s", msg.Type))
		}

		g.Mu.Unlock()

		select {
		case <-ctx.Done():
			logger.Infof("Context canceled after processing message for user %s in game %s.", userID, g.ID)
			return
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Write(writeCtx, websocket.MessageText, msgBytes)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		} else if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
