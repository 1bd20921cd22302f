package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/planningpoker/go/internal/models"
)

// EventType names an outbound room event.
type EventType string

const (
	EventTypeParticipantJoined EventType = "participant-joined"
	EventTypeParticipantLeft   EventType = "participant-left"
	EventTypeVoteReceived      EventType = "vote-received"
	EventTypeVotesRevealed     EventType = "votes-revealed"
	EventTypeVotesReset        EventType = "votes-reset"
	EventTypeStoryUpdated      EventType = "story-updated"
	EventTypeTimerStarted      EventType = "timer-started"
	EventTypeTimerTick         EventType = "timer-tick"
	EventTypeTimerEnded        EventType = "timer-ended"
	EventTypeTimerStopped      EventType = "timer-stopped"
)

// Event is the envelope delivered to every member of a room group.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps payload in an event envelope.
func New(roomID string, eventType EventType, at time.Time, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParticipantJoinedPayload is sent to existing members when someone joins.
type ParticipantJoinedPayload struct {
	Participant models.Participant `json:"participant"`
	RoomState   models.PublicView  `json:"room_state"`
}

// ParticipantLeftPayload is sent to the remaining members when someone leaves.
type ParticipantLeftPayload struct {
	ParticipantID string            `json:"participant_id"`
	Name          string            `json:"name"`
	RoomState     models.PublicView `json:"room_state"`
}

// VoteReceivedPayload announces that a participant voted. Card values in
// RoomState stay masked until the room is revealed.
type VoteReceivedPayload struct {
	ParticipantID string            `json:"participant_id"`
	RoomState     models.PublicView `json:"room_state"`
}

// RoomStatePayload carries the room view for votes-revealed and votes-reset.
type RoomStatePayload struct {
	RoomState models.PublicView `json:"room_state"`
}

// StoryUpdatedPayload carries the new story.
type StoryUpdatedPayload struct {
	Story models.Story `json:"story"`
}

// TimerStartedPayload carries the countdown window.
type TimerStartedPayload struct {
	EndTime  time.Time `json:"end_time"`
	Duration int       `json:"duration"`
}

// TimerTickPayload carries the whole seconds left on the countdown.
type TimerTickPayload struct {
	Remaining int `json:"remaining"`
}

// EmptyPayload is used by timer-ended and timer-stopped.
type EmptyPayload struct{}

// Decode unmarshals the event data into out.
func (e *Event) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
