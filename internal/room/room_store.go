// internal/room/room_store.go
package room

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Store manages active ephemeral rooms in memory with thread-safe access.
type Store struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[uuid.UUID]*Room),
	}
}

// AddRoom adds a new room to the store. Configure the room's OnEmpty callback
// before adding it so the store cleans up when the last user leaves.
func (s *Store) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		log.Printf("room store: attempted to add room %s which already exists", r.ID)
		return
	}
	s.rooms[r.ID] = r
}

// DeleteRoom removes a room from the store by its ID.
func (s *Store) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// GetRooms returns a copy of the map of active rooms, for listing endpoints.
func (s *Store) GetRooms() map[uuid.UUID]*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomsCopy := make(map[uuid.UUID]*Room, len(s.rooms))
	for k, v := range s.rooms {
		roomsCopy[k] = v
	}
	return roomsCopy
}
