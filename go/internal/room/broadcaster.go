package room

import "github.com/mcdev12/planningpoker/go/internal/room/events"

// Broadcaster hands room events to the transport for delivery to the room
// group. Implementations must not block.
type Broadcaster interface {
	// BroadcastToRoom sends the event to every member of the room group.
	BroadcastToRoom(roomID string, event *events.Event)
	// BroadcastToRoomExcept sends the event to every member except connectionID.
	BroadcastToRoomExcept(roomID, connectionID string, event *events.Event)
}
