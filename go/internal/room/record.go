package room

import (
	"sync"
	"time"

	"github.com/mcdev12/planningpoker/go/internal/models"
)

// Room is the state machine for one voting session. Every field below mu is
// guarded by it; actions, countdown ticks and cleanup all take the lock.
type Room struct {
	ID          string
	CreatorName string
	CreatedAt   time.Time

	mu           sync.Mutex
	participants map[string]models.Participant
	order        []string // connection ids in join order
	votes        map[string]models.Card
	revealed     bool
	story        models.Story
	timer        *countdown
	deleted      bool
}

func newRoom(id, creatorName string, now time.Time) *Room {
	return &Room{
		ID:           id,
		CreatorName:  creatorName,
		CreatedAt:    now,
		participants: make(map[string]models.Participant),
		votes:        make(map[string]models.Card),
	}
}

func (r *Room) isCreator(name string) bool {
	return name == r.CreatorName
}

// addParticipant inserts or renames a participant and clears their vote.
// A rejoining connection keeps its place in the display order.
func (r *Room) addParticipant(p models.Participant) {
	if _, exists := r.participants[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.participants[p.ID] = p
	r.votes[p.ID] = models.NoVote
}

func (r *Room) removeParticipant(connectionID string) (models.Participant, bool) {
	p, exists := r.participants[connectionID]
	if !exists {
		return models.Participant{}, false
	}
	delete(r.participants, connectionID)
	delete(r.votes, connectionID)
	for i, id := range r.order {
		if id == connectionID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (r *Room) clearVotes() {
	for id := range r.votes {
		r.votes[id] = models.NoVote
	}
	r.revealed = false
}

// stopTimer cancels the running countdown, if any, and reports whether one was running.
func (r *Room) stopTimer() bool {
	if r.timer == nil {
		return false
	}
	r.timer.cancel()
	r.timer = nil
	return true
}

// retire marks the room as deleted so that actions racing with deletion
// observe it as missing.
func (r *Room) retire() {
	r.stopTimer()
	r.deleted = true
}

// Votes returns a copy of the votes map keyed by connection id.
func (r *Room) Votes() map[string]models.Card {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.Card, len(r.votes))
	for id, v := range r.votes {
		out[id] = v
	}
	return out
}

// Revealed reports whether votes are currently revealed.
func (r *Room) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}

// TimerRunning reports whether a countdown is active.
func (r *Room) TimerRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}
