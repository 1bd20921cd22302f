package room

import (
	"github.com/mcdev12/planningpoker/go/internal/models"
)

// publicView derives the externally visible snapshot. Card values are only
// copied into the view once the room is revealed. Caller must hold r.mu.
func (r *Room) publicView() models.PublicView {
	view := models.PublicView{
		RoomID:       r.ID,
		CreatorName:  r.CreatorName,
		Participants: make([]models.Participant, 0, len(r.order)),
		Votes:        make(map[string]models.VoteView, len(r.votes)),
		Revealed:     r.revealed,
		Story:        r.story,
		CardValues:   append([]models.Card(nil), models.CardValues...),
	}

	for _, id := range r.order {
		view.Participants = append(view.Participants, r.participants[id])
	}

	for id, card := range r.votes {
		if r.revealed {
			view.Votes[id] = models.RevealedVote(card)
		} else {
			view.Votes[id] = models.MaskedVote(card)
		}
	}

	if r.timer != nil {
		window := r.timer.window
		view.Timer = &window
	}

	if r.revealed {
		cards := make([]models.Card, 0, len(r.order))
		for _, id := range r.order {
			cards = append(cards, r.votes[id])
		}
		summary := models.Summarize(cards)
		view.Summary = &summary
	}

	return view
}

// PublicView returns the current public view of the room.
func (r *Room) PublicView() models.PublicView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publicView()
}
