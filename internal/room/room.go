// internal/room/room.go
package room

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/database"
	"github.com/dwarveslive/unit-card-battles/internal/game"
)

// Room is an ephemeral pre-match staging area: users gather, chat, toggle
// ready states, and the host tunes the ruleset before a match starts.
type Room struct {
	ID         uuid.UUID `json:"id"`
	HostUserID uuid.UUID `json:"hostUserID"`
	Type       string    `json:"type"` // "private" or "public"

	// Users maps userID -> whether they've joined (true) or only been invited (false).
	Users map[uuid.UUID]bool `json:"-"`

	// Connections holds the live WebSocket presences for joined users.
	Connections map[uuid.UUID]*Connection `json:"-"`
	// ReadyStates holds userID -> "is ready".
	ReadyStates map[uuid.UUID]bool `json:"-"`

	InGame bool      `json:"inGame"`
	GameID uuid.UUID `json:"gameId,omitempty"`

	CountdownTimer *time.Timer `json:"-"`

	// Rules is the match configuration handed to the engine at start.
	Rules game.Config `json:"rules"`

	Settings Settings `json:"settings"`

	// OnEmpty is called when the last user leaves, typically wired to
	// store deletion by whoever created the room.
	OnEmpty func(roomID uuid.UUID) `json:"-"`

	Mu sync.Mutex
}

// Connection is a single user's presence in the room.
type Connection struct {
	UserID   uuid.UUID
	Username string
	Cancel   func()
	OutChan  chan map[string]interface{}
	IsHost   bool
}

// Write pushes a message onto the user's OutChan non-blockingly. Logs if dropped.
func (conn *Connection) Write(msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("room connection: OutChan for user %s closed or full, dropped message type '%s'", conn.UserID, msgType)
	}
}

// WriteError is a convenience to send an error object.
func (conn *Connection) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Settings holds behavior specific to the room itself rather than the match.
type Settings struct {
	AutoStart bool `json:"autoStart"`
}

// NewRoomWithDefaults creates an ephemeral room with the standard ruleset.
func NewRoomWithDefaults(hostID uuid.UUID) *Room {
	roomID, _ := uuid.NewRandom()
	return &Room{
		ID:          roomID,
		HostUserID:  hostID,
		Type:        "private",
		Users:       make(map[uuid.UUID]bool),
		Connections: make(map[uuid.UUID]*Connection),
		ReadyStates: make(map[uuid.UUID]bool),
		Rules:       game.DefaultConfig(),
		Settings:    Settings{AutoStart: true},
	}
}

// InviteUser marks a user as invited. Assumes lock is held.
func (r *Room) InviteUser(userID uuid.UUID) {
	if _, exists := r.Users[userID]; !exists {
		r.Users[userID] = false
		r.BroadcastAllUnsafe(map[string]interface{}{
			"type":      "room_invite",
			"invitedID": userID.String(),
		})
	}
}

// AddConnection registers a live connection for a user, fetching their
// username and resetting their ready state. Acquires the lock.
func (r *Room) AddConnection(userID uuid.UUID, conn *Connection) error {
	r.Mu.Lock()

	joined, exists := r.Users[userID]
	if !exists {
		if r.Type != "private" {
			r.Users[userID] = true
		} else {
			r.Mu.Unlock()
			return fmt.Errorf("user %s not invited to the private room %s", userID, r.ID)
		}
	} else if joined {
		// Rejoin replaces any stale connection.
		if oldConn, ok := r.Connections[userID]; ok && oldConn != conn {
			close(oldConn.OutChan)
			if oldConn.Cancel != nil {
				oldConn.Cancel()
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	user, err := database.GetUserByID(ctx, userID)
	cancel()
	if err != nil {
		conn.Username = fmt.Sprintf("Guest_%s", userID.String()[:4])
	} else {
		conn.Username = user.Username
	}

	r.Connections[userID] = conn
	r.ReadyStates[userID] = false
	r.Users[userID] = true

	statePayload := r.getRoomStatePayloadUnsafe(userID)
	joinPayload := r.getJoinPayloadUnsafe(userID)

	r.Mu.Unlock()

	// Send initial state and broadcast join after releasing the lock.
	go func() {
		conn.Write(statePayload)
		r.Mu.Lock()
		r.BroadcastAllUnsafe(joinPayload)
		r.Mu.Unlock()
	}()

	return nil
}

// RemoveUser drops a user's presence. If the room empties, OnEmpty fires.
// Acquires the lock.
func (r *Room) RemoveUser(userID uuid.UUID) {
	r.Mu.Lock()

	conn, connExists := r.Connections[userID]
	if !connExists {
		delete(r.Users, userID)
		r.Mu.Unlock()
		return
	}

	go func(ch chan map[string]interface{}, cancelFunc func()) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("room %s: recovered closing OutChan for user %s: %v", r.ID, userID, rec)
			}
		}()
		close(ch)
		if cancelFunc != nil {
			cancelFunc()
		}
	}(conn.OutChan, conn.Cancel)

	delete(r.Users, userID)
	delete(r.Connections, userID)
	delete(r.ReadyStates, userID)

	leavePayload := r.getLeavePayloadUnsafe(userID, conn.Username)
	isEmpty := len(r.Connections) == 0
	onEmptyCallback := r.OnEmpty
	r.CancelCountdownUnsafe()
	r.BroadcastAllUnsafe(leavePayload)

	r.Mu.Unlock()

	if isEmpty && onEmptyCallback != nil {
		onEmptyCallback(r.ID)
	}
}

// StartCountdownUnsafe begins an auto-start countdown. Assumes lock is held.
// Returns false if a countdown is already running or the room cannot start.
func (r *Room) StartCountdownUnsafe(seconds int, callback func(*Room)) bool {
	if r.InGame || r.CountdownTimer != nil {
		return false
	}
	if len(r.Connections) < 2 {
		return false
	}

	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":    "room_countdown_start",
		"seconds": seconds,
	})

	var timer *time.Timer
	timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		r.Mu.Lock()
		// A stale timer may fire after cancellation.
		if r.CountdownTimer == timer {
			r.CountdownTimer = nil
			r.Mu.Unlock()
			callback(r)
		} else {
			r.Mu.Unlock()
		}
	})
	r.CountdownTimer = timer
	return true
}

// StartCountdown begins a countdown. Acquires the lock.
func (r *Room) StartCountdown(seconds int, callback func(*Room)) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.StartCountdownUnsafe(seconds, callback)
}

// CancelCountdownUnsafe stops any running countdown. Assumes lock is held.
func (r *Room) CancelCountdownUnsafe() {
	if r.CountdownTimer == nil {
		return
	}
	if r.CountdownTimer.Stop() {
		r.BroadcastAllUnsafe(map[string]interface{}{
			"type": "room_countdown_cancel",
		})
	}
	r.CountdownTimer = nil
}

// MarkUserReadyUnsafe sets a user's ready state to true. Assumes lock is
// held. Returns true when an auto-start countdown should begin.
func (r *Room) MarkUserReadyUnsafe(userID uuid.UUID) bool {
	conn, ok := r.Connections[userID]
	if !ok || r.ReadyStates[userID] {
		return false
	}
	r.ReadyStates[userID] = true
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "ready_update",
		"user_id":  userID.String(),
		"username": conn.Username,
		"is_ready": true,
	})
	return r.AreAllReadyUnsafe() && r.Settings.AutoStart && !r.InGame
}

// MarkUserUnreadyUnsafe sets a user's ready state to false and cancels any
// running countdown. Assumes lock is held.
func (r *Room) MarkUserUnreadyUnsafe(userID uuid.UUID) {
	conn, ok := r.Connections[userID]
	if !ok || !r.ReadyStates[userID] {
		return
	}
	r.ReadyStates[userID] = false
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "ready_update",
		"user_id":  userID.String(),
		"username": conn.Username,
		"is_ready": false,
	})
	r.CancelCountdownUnsafe()
}

// AreAllReadyUnsafe reports whether every connected user is ready. Assumes
// lock is held. A single user is never "all ready".
func (r *Room) AreAllReadyUnsafe() bool {
	if len(r.Connections) < 2 {
		return false
	}
	for userID := range r.Connections {
		if !r.ReadyStates[userID] {
			return false
		}
	}
	return true
}

// BroadcastAllUnsafe sends a message to every connected user. Assumes lock is
// held; Connection.Write never blocks.
func (r *Room) BroadcastAllUnsafe(msg map[string]interface{}) {
	for _, conn := range r.Connections {
		conn.Write(msg)
	}
}

// BroadcastChatUnsafe relays a chat message from a sender. Assumes lock is held.
func (r *Room) BroadcastChatUnsafe(senderConn *Connection, msg string) {
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "chat",
		"user_id":  senderConn.UserID.String(),
		"username": senderConn.Username,
		"msg":      msg,
		"ts":       time.Now().Unix(),
	})
}

// UpdateRulesUnsafe applies partial rule and settings overrides, then
// broadcasts the merged result. Assumes lock is held.
func (r *Room) UpdateRulesUnsafe(overrides map[string]interface{}) error {
	if rulesData, ok := overrides["rules"].(map[string]interface{}); ok {
		if err := r.Rules.Update(rulesData); err != nil {
			return err
		}
	}
	if settingsData, ok := overrides["settings"].(map[string]interface{}); ok {
		if autoStart, ok := settingsData["autoStart"].(bool); ok {
			r.Settings.AutoStart = autoStart
		}
	}
	r.BroadcastAllUnsafe(map[string]interface{}{
		"type":     "room_rules_updated",
		"rules":    r.Rules,
		"settings": r.Settings,
	})
	return nil
}

// GetStatusPayloadUnsafe summarizes current users. Assumes lock is held.
func (r *Room) GetStatusPayloadUnsafe() map[string]interface{} {
	users := []map[string]interface{}{}
	for userID, conn := range r.Connections {
		users = append(users, map[string]interface{}{
			"id":       userID.String(),
			"username": conn.Username,
			"is_host":  conn.IsHost,
			"is_ready": r.ReadyStates[userID],
		})
	}
	return map[string]interface{}{"users": users}
}

// getRoomStatePayloadUnsafe builds the full state message sent to a user on
// join. Assumes lock is held.
func (r *Room) getRoomStatePayloadUnsafe(userID uuid.UUID) map[string]interface{} {
	isHost := false
	if conn, ok := r.Connections[userID]; ok {
		isHost = conn.IsHost
	}
	gameIDStr := ""
	if r.GameID != uuid.Nil {
		gameIDStr = r.GameID.String()
	}
	return map[string]interface{}{
		"type":         "room_state",
		"room_id":      r.ID.String(),
		"host_id":      r.HostUserID.String(),
		"your_id":      userID.String(),
		"your_is_host": isHost,
		"room_type":    r.Type,
		"in_game":      r.InGame,
		"game_id":      gameIDStr,
		"rules":        r.Rules,
		"settings":     r.Settings,
		"room_status":  r.GetStatusPayloadUnsafe(),
	}
}

func (r *Room) getJoinPayloadUnsafe(userID uuid.UUID) map[string]interface{} {
	isHost := false
	username := "Unknown"
	if conn, ok := r.Connections[userID]; ok {
		isHost = conn.IsHost
		username = conn.Username
	}
	return map[string]interface{}{
		"type":        "room_update",
		"user_join":   userID.String(),
		"username":    username,
		"is_host":     isHost,
		"room_status": r.GetStatusPayloadUnsafe(),
	}
}

func (r *Room) getLeavePayloadUnsafe(userID uuid.UUID, username string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "room_update",
		"user_left":   userID.String(),
		"username":    username,
		"room_status": r.GetStatusPayloadUnsafe(),
	}
}

// GetConnectionsUnsafe snapshots the live connections. Assumes lock is held.
func (r *Room) GetConnectionsUnsafe() []*Connection {
	conns := make([]*Connection, 0, len(r.Connections))
	for _, conn := range r.Connections {
		conns = append(conns, conn)
	}
	return conns
}
