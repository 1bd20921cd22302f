package room

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Registry is the process-wide store of rooms keyed by room code.
type Registry struct {
	rooms map[string]*Room
	mu    sync.RWMutex

	clock   clockwork.Clock
	newCode func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		clock:   clock,
		newCode: newRoomCode,
	}
}

// Create stores a new empty room owned by creatorName and returns it.
func (r *Registry) Create(creatorName string) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := r.newCode()
	for {
		if _, taken := r.rooms[code]; !taken {
			break
		}
		log.Debug().Str("room_id", code).Msg("room code collision, regenerating")
		code = r.newCode()
	}

	room := newRoom(code, creatorName, r.clock.Now())
	r.rooms[code] = room
	return room
}

// Get returns the room with the given id.
func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	return room, exists
}

// Delete removes a room, stopping its countdown first.
func (r *Registry) Delete(roomID string) bool {
	r.mu.Lock()
	room, exists := r.rooms[roomID]
	if exists {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if !exists {
		return false
	}

	room.mu.Lock()
	room.retire()
	room.mu.Unlock()
	return true
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns a snapshot of all rooms.
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
