package models

import (
	"time"
)

// Card is a planning poker card value.
type Card string

// NoVote marks a participant who has not picked a card this round.
const NoVote Card = ""

// CardValues is the fixed, ordered deck offered to every room.
var CardValues = []Card{"1", "2", "3", "5", "8", "13", "21", "?"}

// IsValid reports whether the card belongs to the deck.
func (c Card) IsValid() bool {
	for _, v := range CardValues {
		if c == v {
			return true
		}
	}
	return false
}

// Participant is a named member of a room, addressed by its connection id.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Story is the free-form item currently being estimated.
type Story struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TimerWindow describes a running countdown.
type TimerWindow struct {
	EndTime  time.Time `json:"end_time"`
	Duration int       `json:"duration"` // seconds
}
