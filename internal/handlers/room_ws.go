// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dwarveslive/unit-card-battles/internal/room"
)

// RoomWSHandler sets up the ephemeral in-memory room WS flow: join, chat,
// ready states, rule updates, and match start.
func RoomWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_id", http.StatusBadRequest)
			return
		}
		roomUUID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid room_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		userUUID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed for room %s: %v", roomUUID, err)
			c.Close(websocket.StatusPolicyViolation, "Authentication failed.")
			return
		}

		rm, exists := gs.RoomStore.GetRoom(roomUUID)
		if !exists {
			c.Close(InvalidRoomIDError, "room does not exist")
			return
		}

		rm.Mu.Lock()
		_, isInvitedOrPresent := rm.Users[userUUID]
		roomType := rm.Type
		rm.Mu.Unlock()

		if roomType == "private" && !isInvitedOrPresent {
			c.Close(websocket.StatusPolicyViolation, "user not invited to private room")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &room.Connection{
			UserID:  userUUID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 10),
			IsHost:  rm.HostUserID == userUUID,
		}

		if err := rm.AddConnection(userUUID, conn); err != nil {
			logger.Warnf("failed AddConnection: %v", err)
			c.Close(websocket.StatusPolicyViolation, fmt.Sprintf("AddConnection error: %v", err))
			cancel()
			return
		}

		logger.Infof("User %v (%s) connected to room %v", userUUID, remoteAddr, roomUUID)

		go roomWritePump(ctx, c, conn, logger)

		roomReadPump(ctx, c, gs, rm, conn, logger)

		logger.Infof("User %v read pump exited for room %v, cleaning up", userUUID, roomUUID)
		rm.RemoveUser(userUUID)
	}
}

// roomReadPump handles incoming messages from the room websocket. It acquires
// the room lock before dispatching each message.
func roomReadPump(ctx context.Context, c *websocket.Conn, gs *GameServer, rm *room.Room, conn *room.Connection, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("Room %s: WebSocket closed normally for user %v.", rm.ID, conn.UserID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("Room %s: Read error for user %v: %v", rm.ID, conn.UserID, err)
			}
			return
		}

		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("Room %s: invalid json from user %v: %v", rm.ID, conn.UserID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		lockReleasedByHandler := false
		shouldStartCountdown := false

		rm.Mu.Lock()

		// Drop messages from stale connection instances.
		currentConn, stillConnected := rm.Connections[conn.UserID]
		if !stillConnected || currentConn != conn {
			rm.Mu.Unlock()
			continue
		}

		handleRoomMessage(packet, gs, rm, conn, logger, &shouldStartCountdown, func() {
			rm.Mu.Unlock()
			lockReleasedByHandler = true
		})

		if !lockReleasedByHandler {
			rm.Mu.Unlock()
		}

		if shouldStartCountdown {
			rm.StartCountdown(10, func(r *room.Room) {
				logger.Infof("Room %s: auto-start countdown finished.", r.ID)
				startRoomGame(gs, r, logger)
			})
		}
	}
}

// handleRoomMessage interprets the "type" field for ephemeral room logic.
// Assumes the room lock is HELD by the caller. unlockCallback releases the
// lock early for operations that must run without it.
func handleRoomMessage(packet map[string]interface{}, gs *GameServer, rm *room.Room, senderConn *room.Connection, logger *logrus.Logger, shouldStartCountdown *bool, unlockCallback func()) {
	action, _ := packet["type"].(string)

	switch action {
	case "ready":
		if rm.MarkUserReadyUnsafe(senderConn.UserID) {
			*shouldStartCountdown = true
		}
	case "unready":
		rm.MarkUserUnreadyUnsafe(senderConn.UserID)
	case "invite":
		userIDStr, _ := packet["userID"].(string)
		userToAdd, err := uuid.Parse(userIDStr)
		if err != nil {
			senderConn.WriteError("Invalid userID format for invite")
			return
		}
		rm.InviteUser(userToAdd)
	case "leave_room":
		userID := senderConn.UserID
		unlockCallback()
		rm.RemoveUser(userID)
		return
	case "chat":
		msg, _ := packet["msg"].(string)
		if msg != "" {
			rm.BroadcastChatUnsafe(senderConn, msg)
		}
	case "update_rules":
		if !senderConn.IsHost {
			senderConn.WriteError("Only the host can update rules")
			return
		}
		if err := rm.UpdateRulesUnsafe(packet); err != nil {
			logger.Warnf("Room %s: rules update rejected: %v", rm.ID, err)
			senderConn.WriteError("Failed to apply rule updates.")
		}
	case "start_game":
		if !senderConn.IsHost {
			senderConn.WriteError("Only the host can force start")
			return
		}
		if rm.InGame {
			senderConn.WriteError("Game already in progress")
			return
		}
		if !rm.AreAllReadyUnsafe() {
			senderConn.WriteError("Not all users are ready")
			return
		}
		rm.CancelCountdownUnsafe()

		unlockCallback()
		startRoomGame(gs, rm, logger)

	default:
		senderConn.WriteError(fmt.Sprintf("Unknown action type: %s", action))
	}
}

// startRoomGame spawns the match for a room and broadcasts game_start.
// Must be called WITHOUT the room lock held.
func startRoomGame(gs *GameServer, rm *room.Room, logger *logrus.Logger) {
	rm.Mu.Lock()
	if rm.InGame {
		rm.Mu.Unlock()
		return
	}
	roomID := rm.ID
	cfg := rm.Rules
	players := rm.GetConnectionsUnsafe()
	rm.Mu.Unlock()

	g := gs.CreateGameInstance(context.Background(), roomID, cfg, players)
	if g == nil {
		logger.Errorf("Room %s: failed to create game instance.", roomID)
		return
	}
	logger.Infof("Room %s: game instance %s created.", roomID, g.ID)

	rm.Mu.Lock()
	if rm.InGame {
		// Lost a race against another start; drop the duplicate instance.
		gs.GameStore.DeleteGame(g.ID)
		rm.Mu.Unlock()
		return
	}
	rm.InGame = true
	rm.GameID = g.ID
	rm.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "game_start",
		"game_id": g.ID.String(),
	})
	rm.Mu.Unlock()
}

// roomWritePump drains a connection's outgoing channel onto the websocket and
// keeps the connection alive with periodic pings.
func roomWritePump(ctx context.Context, c *websocket.Conn, conn *room.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	defer func() {
		_ = c.Close(websocket.StatusGoingAway, "write pump stopping")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Room: failed to marshal outgoing msg for user %v: %v", conn.UserID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Room: failed to write to websocket for user %v: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Room: ping to user %v failed: %v, assuming disconnect", conn.UserID, err)
				return
			}
		}
	}
}
