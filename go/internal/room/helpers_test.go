package room

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

type recordedEvent struct {
	roomID string
	except string
	event  *events.Event
}

// recorder is a Broadcaster that keeps every event in order.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
	ch     chan recordedEvent
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan recordedEvent, 1024)}
}

func (r *recorder) BroadcastToRoom(roomID string, event *events.Event) {
	r.record(recordedEvent{roomID: roomID, event: event})
}

func (r *recorder) BroadcastToRoomExcept(roomID, connectionID string, event *events.Event) {
	r.record(recordedEvent{roomID: roomID, except: connectionID, event: event})
}

func (r *recorder) record(e recordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.ch <- e
}

// next waits for the next recorded event.
func (r *recorder) next(t *testing.T) recordedEvent {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return recordedEvent{}
	}
}

// expectNone fails if an event arrives within a short window.
func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Fatalf("unexpected event %s", e.event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// drain discards everything recorded so far.
func (r *recorder) drain() {
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	app      *App
	registry *Registry
	clock    *clockwork.FakeClock
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := NewRegistry(clock)
	rec := newRecorder()
	app := NewApp(registry, rec, clock, DefaultConfig())
	t.Cleanup(app.Shutdown)
	return &fixture{app: app, registry: registry, clock: clock, rec: rec}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}
