package room

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

// countdown is a running room timer. It is owned by the room and only
// touched under the room lock, except for the ticker channel read by run.
type countdown struct {
	window models.TimerWindow
	ticker clockwork.Ticker
	done   chan struct{}
}

func (c *countdown) cancel() {
	c.ticker.Stop()
	close(c.done)
}

// remainingSeconds rounds the time left up to whole seconds, never below zero.
func remainingSeconds(endTime, now time.Time) int {
	left := endTime.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// StartTimer starts a countdown of durationSeconds, replacing any countdown
// already running in the room. Every member sees timer-started followed by a
// timer-tick each interval until timer-ended.
func (a *App) StartTimer(roomID string, durationSeconds int) error {
	if durationSeconds <= 0 {
		return ErrInvalidDuration
	}

	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}
	if a.closed.Load() {
		return ErrClosed
	}

	if room.stopTimer() {
		log.Debug().Str("room_id", roomID).Msg("replaced running countdown")
	}

	now := a.clock.Now()
	cd := &countdown{
		window: models.TimerWindow{
			EndTime:  now.Add(time.Duration(durationSeconds) * time.Second),
			Duration: durationSeconds,
		},
		ticker: a.clock.NewTicker(a.config.TickInterval),
		done:   make(chan struct{}),
	}
	room.timer = cd

	a.emit(room.ID, events.EventTypeTimerStarted, events.TimerStartedPayload{
		EndTime:  cd.window.EndTime,
		Duration: cd.window.Duration,
	})

	// First tick goes out immediately so every member starts from the same number.
	a.tick(room, cd)
	if room.timer == cd {
		go a.runCountdown(room, cd)
	}

	log.Info().
		Str("room_id", roomID).
		Int("duration_sec", durationSeconds).
		Time("end_time", cd.window.EndTime).
		Msg("countdown started")

	return nil
}

// StopTimer cancels the running countdown. It is a no-op when none is running.
func (a *App) StopTimer(roomID string) error {
	room, err := a.lookup(roomID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return ErrRoomNotFound
	}
	if !room.stopTimer() {
		return nil
	}

	a.emit(room.ID, events.EventTypeTimerStopped, events.EmptyPayload{})
	log.Info().Str("room_id", roomID).Msg("countdown stopped")
	return nil
}

// runCountdown waits for ticker wakeups until the countdown is cancelled or expires.
func (a *App) runCountdown(room *Room, cd *countdown) {
	for {
		select {
		case <-cd.done:
			return
		case <-cd.ticker.Chan():
			room.mu.Lock()
			// A reveal, reset, stop or replacement may have won the lock first.
			if room.timer != cd {
				room.mu.Unlock()
				return
			}
			a.tick(room, cd)
			finished := room.timer != cd
			room.mu.Unlock()

			if finished {
				return
			}
		}
	}
}

// tick emits the remaining time and ends the countdown once it reaches zero.
// Caller must hold room.mu.
func (a *App) tick(room *Room, cd *countdown) {
	remaining := remainingSeconds(cd.window.EndTime, a.clock.Now())
	a.emit(room.ID, events.EventTypeTimerTick, events.TimerTickPayload{Remaining: remaining})

	if remaining > 0 {
		return
	}

	room.stopTimer()
	a.emit(room.ID, events.EventTypeTimerEnded, events.EmptyPayload{})
	log.Info().Str("room_id", room.ID).Msg("countdown ended")
}
