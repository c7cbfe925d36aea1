// internal/handlers/game_server.go
package handlers

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/dwarveslive/unit-card-battles/internal/game"
	"github.com/dwarveslive/unit-card-battles/internal/models"
	"github.com/dwarveslive/unit-card-battles/internal/room"
)

// GameServer is a high-level struct that holds the room and game stores and
// can spawn new matches from rooms.
type GameServer struct {
	Mutex     sync.Mutex
	RoomStore *room.Store
	GameStore *game.GameStore
}

func NewGameServer() *GameServer {
	return &GameServer{
		RoomStore: room.NewStore(),
		GameStore: game.NewGameStore(),
	}
}

// CreateGameInstance builds an in-memory game from a room's connected users
// and starts it. Called without the room lock held; the room is updated by
// the caller once the game id is known.
func (gs *GameServer) CreateGameInstance(ctx context.Context, roomID uuid.UUID, cfg game.Config, playersToStart []*room.Connection) *game.Game {
	if len(playersToStart) < 2 {
		log.Warnf("room %s: cannot start game, not enough players (%d)", roomID, len(playersToStart))
		return nil
	}

	g := game.NewGame(cfg)
	g.RoomID = roomID

	for _, conn := range playersToStart {
		g.AddPlayer(&models.Player{
			ID:        conn.UserID,
			Name:      conn.Username,
			Connected: true,
			Hand:      []*models.Card{},
			User: &models.User{
				ID:       conn.UserID,
				Username: conn.Username,
			},
		})
	}

	// Report results back to the room when the match finishes.
	g.OnGameEnd = func(endedRoomID uuid.UUID, winner uuid.UUID, scores map[uuid.UUID]int) {
		roomInstance, exists := gs.RoomStore.GetRoom(endedRoomID)
		if !exists {
			gs.GameStore.DeleteGame(g.ID)
			return
		}

		roomInstance.Mu.Lock()
		roomInstance.InGame = false
		roomInstance.GameID = uuid.Nil
		for uid := range roomInstance.Connections {
			roomInstance.ReadyStates[uid] = false
		}

		scoreMap := map[string]int{}
		for pid, sc := range scores {
			scoreMap[pid.String()] = sc
		}
		roomInstance.BroadcastAllUnsafe(map[string]interface{}{
			"type":        "game_results",
			"winner":      winner.String(),
			"scores":      scoreMap,
			"room_status": roomInstance.GetStatusPayloadUnsafe(),
		})
		roomInstance.Mu.Unlock()

		gs.GameStore.DeleteGame(g.ID)
	}

	gs.GameStore.AddGame(g)

	if err := g.Start(); err != nil {
		log.Errorf("room %s: failed to start game %s: %v", roomID, g.ID, err)
		gs.GameStore.DeleteGame(g.ID)
		return nil
	}
	return g
}
