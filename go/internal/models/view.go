package models

import (
	"encoding/json"
	"fmt"
)

// VoteView is a single participant's vote as seen by the room.
// Before reveal only Voted is meaningful and Value is always empty.
type VoteView struct {
	Voted    bool
	Value    Card
	Revealed bool
}

// MaskedVote builds the pre-reveal view of a vote.
func MaskedVote(c Card) VoteView {
	return VoteView{Voted: c != NoVote}
}

// RevealedVote builds the post-reveal view of a vote.
func RevealedVote(c Card) VoteView {
	return VoteView{Voted: c != NoVote, Value: c, Revealed: true}
}

// MarshalJSON encodes a masked vote as a boolean and a revealed vote as its
// card value, or null when the participant never voted.
func (v VoteView) MarshalJSON() ([]byte, error) {
	if !v.Revealed {
		return json.Marshal(v.Voted)
	}
	if v.Value == NoVote {
		return []byte("null"), nil
	}
	return json.Marshal(string(v.Value))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *VoteView) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case bool:
		*v = VoteView{Voted: val}
	case nil:
		*v = VoteView{Revealed: true}
	case string:
		*v = RevealedVote(Card(val))
	default:
		return fmt.Errorf("unexpected vote value %v", raw)
	}
	return nil
}

// PublicView is the externally visible snapshot of a room.
type PublicView struct {
	RoomID       string              `json:"room_id"`
	CreatorName  string              `json:"creator_name"`
	Participants []Participant       `json:"participants"`
	Votes        map[string]VoteView `json:"votes"`
	Revealed     bool                `json:"revealed"`
	Story        Story               `json:"story"`
	Timer        *TimerWindow        `json:"timer"`
	CardValues   []Card              `json:"card_values"`
	Summary      *Summary            `json:"summary,omitempty"`
}
