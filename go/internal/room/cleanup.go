package room

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultGracePeriod is how long an empty room survives before deletion.
const DefaultGracePeriod = 5 * time.Minute

// CleanupScheduler holds one deferred deletion per empty room. It is kept
// apart from the registry so a rejoin can cancel by room id alone.
type CleanupScheduler struct {
	clock clockwork.Clock
	grace time.Duration

	pending map[string]clockwork.Timer
	closed  bool
	mu      sync.Mutex
}

// NewCleanupScheduler creates a scheduler that fires grace after Schedule.
func NewCleanupScheduler(clock clockwork.Clock, grace time.Duration) *CleanupScheduler {
	return &CleanupScheduler{
		clock:   clock,
		grace:   grace,
		pending: make(map[string]clockwork.Timer),
	}
}

// Schedule arranges for fn to run after the grace period unless Cancel is
// called first. A second Schedule for the same room replaces the first.
// After CancelAll nothing is scheduled.
func (s *CleanupScheduler) Schedule(roomID string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Debug().Str("room_id", roomID).Msg("scheduler closed, cleanup not scheduled")
		return
	}

	if existing, exists := s.pending[roomID]; exists {
		existing.Stop()
	}

	var timer clockwork.Timer
	timer = s.clock.AfterFunc(s.grace, func() {
		s.mu.Lock()
		current, exists := s.pending[roomID]
		stale := !exists || current != timer
		if !stale {
			delete(s.pending, roomID)
		}
		s.mu.Unlock()

		if stale {
			log.Debug().Str("room_id", roomID).Msg("skipping superseded cleanup")
			return
		}
		fn()
	})
	s.pending[roomID] = timer

	log.Info().
		Str("room_id", roomID).
		Dur("grace_period", s.grace).
		Msg("room is empty, cleanup scheduled")
}

// Cancel drops the pending cleanup for a room. Cancelling a missing or
// already fired cleanup is a no-op.
func (s *CleanupScheduler) Cancel(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, exists := s.pending[roomID]
	if !exists {
		return false
	}
	timer.Stop()
	delete(s.pending, roomID)

	log.Info().Str("room_id", roomID).Msg("cancelled room cleanup")
	return true
}

// Pending reports whether a cleanup is scheduled for the room.
func (s *CleanupScheduler) Pending(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.pending[roomID]
	return exists
}

// CancelAll drops every pending cleanup and closes the scheduler.
func (s *CleanupScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for roomID, timer := range s.pending {
		timer.Stop()
		log.Debug().Str("room_id", roomID).Msg("cancelled cleanup on shutdown")
	}
	s.pending = make(map[string]clockwork.Timer)
}
