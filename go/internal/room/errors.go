package room

import "errors"

var (
	// ErrRoomNotFound is returned when a room id is unknown or the room was cleaned up.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUnauthorized is returned when a non-creator tries to reveal or reset.
	ErrUnauthorized = errors.New("only the room creator can perform this action")
	// ErrInvalidState is returned when a vote arrives after the reveal.
	ErrInvalidState = errors.New("votes are already revealed")
	// ErrNotParticipant is returned when a connection is not a member of the room.
	ErrNotParticipant = errors.New("participant not found in room")
	// ErrInvalidCard is returned for card values outside the deck.
	ErrInvalidCard = errors.New("invalid card value")
	// ErrInvalidDuration is returned for non-positive timer durations.
	ErrInvalidDuration = errors.New("timer duration must be positive")
	// ErrClosed is returned for timer starts after Shutdown.
	ErrClosed = errors.New("room app is shut down")
)
