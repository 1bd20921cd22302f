package room

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

// Config holds the room lifecycle settings.
type Config struct {
	GracePeriod  time.Duration
	TickInterval time.Duration
}

// DefaultConfig returns the default room lifecycle settings.
func DefaultConfig() Config {
	return Config{
		GracePeriod:  DefaultGracePeriod,
		TickInterval: time.Second,
	}
}

// App applies client actions to rooms and fans the results out through the
// broadcaster. Every action on a room runs under that room's lock.
type App struct {
	registry    *Registry
	cleanup     *CleanupScheduler
	broadcaster Broadcaster
	clock       clockwork.Clock
	config      Config

	// Set by Shutdown; no countdown or cleanup starts afterwards.
	closed atomic.Bool
}

// NewApp creates a new App.
func NewApp(registry *Registry, broadcaster Broadcaster, clock clockwork.Clock, config Config) *App {
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	return &App{
		registry:    registry,
		cleanup:     NewCleanupScheduler(clock, config.GracePeriod),
		broadcaster: broadcaster,
		clock:       clock,
		config:      config,
	}
}

// CreateRoom creates an empty room and returns its code.
func (a *App) CreateRoom(creatorName string) string {
	room := a.registry.Create(creatorName)

	log.Info().
		Str("room_id", room.ID).
		Str("creator", creatorName).
		Msg("room created")

	return room.ID
}

// JoinRoom adds the connection to the room, cancelling a pending cleanup.
// The joiner gets the view as the return value; everyone else gets
// participant-joined.
func (a *App) JoinRoom(roomID, connectionID, name string) (models.PublicView, error) {
	return a.JoinRoomThen(roomID, connectionID, name, nil)
}

// JoinRoomThen is JoinRoom with a hook. onJoined runs under the room lock
// after participant-joined is emitted and before any later event for the
// room, so the caller can admit the connection to its broadcast group and
// queue the reply in event order. It must not call back into the App.
func (a *App) JoinRoomThen(roomID, connectionID, name string, onJoined func(models.PublicView)) (models.PublicView, error) {
	room, err := a.lookup(roomID)
	if err != nil {
		return models.PublicView{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	// Lost the race with cleanup.
	if room.deleted {
		return models.PublicView{}, ErrRoomNotFound
	}

	a.cleanup.Cancel(roomID)

	participant := models.Participant{
		ID:       connectionID,
		Name:     name,
		JoinedAt: a.clock.Now(),
	}
	room.addParticipant(participant)
	view := room.publicView()

	a.emitExcept(room.ID, connectionID, events.EventTypeParticipantJoined, events.ParticipantJoinedPayload{
		Participant: participant,
		RoomState:   view,
	})
	if onJoined != nil {
		onJoined(view)
	}

	log.Info().
		Str("room_id", roomID).
		Str("connection_id", connectionID).
		Str("name", name).
		Int("participants", len(room.participants)).
		Msg("participant joined")

	return view, nil
}

// LeaveRoom removes the connection from the room. An emptied room is handed
// to the cleanup scheduler rather than deleted.
func (a *App) LeaveRoom(roomID, connectionID string) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}

	participant, removed := room.removeParticipant(connectionID)
	if !removed {
		return ErrNotParticipant
	}

	a.emitExcept(room.ID, connectionID, events.EventTypeParticipantLeft, events.ParticipantLeftPayload{
		ParticipantID: connectionID,
		Name:          participant.Name,
		RoomState:     room.publicView(),
	})

	log.Info().
		Str("room_id", roomID).
		Str("connection_id", connectionID).
		Str("name", participant.Name).
		Int("participants", len(room.participants)).
		Msg("participant left")

	if len(room.participants) == 0 {
		a.cleanup.Schedule(roomID, func() { a.expire(roomID) })
	}
	return nil
}

// SubmitVote records a hidden vote. Votes are refused once the room is revealed.
func (a *App) SubmitVote(roomID, connectionID string, card models.Card) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	switch {
	case room.deleted:
		return ErrRoomNotFound
	case room.revealed:
		return ErrInvalidState
	case !card.IsValid():
		return ErrInvalidCard
	}
	if _, member := room.participants[connectionID]; !member {
		return ErrNotParticipant
	}

	room.votes[connectionID] = card

	a.emit(room.ID, events.EventTypeVoteReceived, events.VoteReceivedPayload{
		ParticipantID: connectionID,
		RoomState:     room.publicView(),
	})

	log.Debug().
		Str("room_id", roomID).
		Str("connection_id", connectionID).
		Msg("vote received")
	return nil
}

// RevealVotes exposes every vote. Only the creator may reveal.
func (a *App) RevealVotes(roomID, requesterName string) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}
	if !room.isCreator(requesterName) {
		log.Info().
			Str("room_id", roomID).
			Str("name", requesterName).
			Msg("non-creator tried to reveal votes")
		return ErrUnauthorized
	}

	room.revealed = true
	room.stopTimer()

	a.emit(room.ID, events.EventTypeVotesRevealed, events.RoomStatePayload{
		RoomState: room.publicView(),
	})

	log.Info().Str("room_id", roomID).Str("name", requesterName).Msg("votes revealed")
	return nil
}

// ResetVotes clears every vote and hides the room again. Only the creator may reset.
func (a *App) ResetVotes(roomID, requesterName string) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}
	if !room.isCreator(requesterName) {
		log.Info().
			Str("room_id", roomID).
			Str("name", requesterName).
			Msg("non-creator tried to reset votes")
		return ErrUnauthorized
	}

	room.clearVotes()
	room.stopTimer()

	a.emit(room.ID, events.EventTypeVotesReset, events.RoomStatePayload{
		RoomState: room.publicView(),
	})

	log.Info().Str("room_id", roomID).Msg("votes reset")
	return nil
}

// UpdateStory overwrites the story. Any participant may edit it.
func (a *App) UpdateStory(roomID, title, description string) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}

	room.story = models.Story{Title: title, Description: description}

	a.emit(room.ID, events.EventTypeStoryUpdated, events.StoryUpdatedPayload{Story: room.story})
	return nil
}

// RoomView returns the public view of a room.
func (a *App) RoomView(roomID string) (models.PublicView, error) {
	room, err := a.lookup(roomID)
	if err != nil {
		return models.PublicView{}, err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return models.PublicView{}, ErrRoomNotFound
	}
	return room.publicView(), nil
}

// RoomCount returns the number of live rooms.
func (a *App) RoomCount() int {
	return a.registry.Len()
}

// Shutdown stops every countdown and pending cleanup. Later leaves and
// timer starts no longer schedule anything.
func (a *App) Shutdown() {
	a.closed.Store(true)
	a.cleanup.CancelAll()

	for _, room := range a.registry.Rooms() {
		room.mu.Lock()
		if room.stopTimer() {
			log.Debug().Str("room_id", room.ID).Msg("stopped countdown on shutdown")
		}
		room.mu.Unlock()
	}

	log.Info().Int("rooms", a.registry.Len()).Msg("room app shut down")
}

// expire deletes a room whose grace period ran out, unless someone joined
// while the cleanup was firing.
func (a *App) expire(roomID string) {
	room, exists := a.registry.Get(roomID)
	if !exists {
		return
	}

	room.mu.Lock()
	if len(room.participants) > 0 {
		room.mu.Unlock()
		log.Debug().Str("room_id", roomID).Msg("room repopulated before cleanup, keeping it")
		return
	}
	room.retire()
	room.mu.Unlock()

	a.registry.Delete(roomID)
	log.Info().Str("room_id", roomID).Msg("room deleted after grace period")
}

func (a *App) lookup(roomID string) (*Room, error) {
	room, exists := a.registry.Get(roomID)
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (a *App) emit(roomID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(roomID, eventType, a.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build event")
		return
	}
	a.broadcaster.BroadcastToRoom(roomID, event)
}

func (a *App) emitExcept(roomID, connectionID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(roomID, eventType, a.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build event")
		return
	}
	a.broadcaster.BroadcastToRoomExcept(roomID, connectionID, event)
}
