package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func assertKeysMatch(t *testing.T, room *Room) {
	t.Helper()
	room.mu.Lock()
	defer room.mu.Unlock()
	if got, want := keys(room.votes), keys(room.participants); !reflect.DeepEqual(got, want) {
		t.Fatalf("votes keys %v != participants keys %v", got, want)
	}
	if len(room.order) != len(room.participants) {
		t.Fatalf("order has %d entries, participants %d", len(room.order), len(room.participants))
	}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)

	roomID := f.app.CreateRoom("Alice")
	if len(roomID) != roomCodeLength {
		t.Fatalf("expected %d character room id, got %q", roomCodeLength, roomID)
	}

	room, ok := f.registry.Get(roomID)
	if !ok {
		t.Fatal("room not stored")
	}
	view := room.PublicView()
	if view.CreatorName != "Alice" || len(view.Participants) != 0 || view.Revealed || view.Timer != nil {
		t.Fatalf("unexpected initial view: %+v", view)
	}
	if view.Story != (models.Story{}) {
		t.Fatalf("expected blank story, got %+v", view.Story)
	}
	if f.rec.count() != 0 {
		t.Fatal("create should not broadcast")
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.JoinRoom("ZZZZZZZZ", "conn-1", "Bob")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if f.registry.Len() != 0 {
		t.Fatal("join must not create a room")
	}
	f.rec.expectNone(t)
}

func TestJoinAndLeaveKeepVotesInSync(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	room, _ := f.registry.Get(roomID)

	view, err := f.app.JoinRoom(roomID, "a", "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(view.Participants) != 1 || view.Votes["a"].Voted {
		t.Fatalf("unexpected view after join: %+v", view)
	}
	assertKeysMatch(t, room)

	joined := f.rec.next(t)
	if joined.event.Type != events.EventTypeParticipantJoined || joined.except != "a" {
		t.Fatalf("expected participant-joined excluding joiner, got %s except %q", joined.event.Type, joined.except)
	}

	if _, err := f.app.JoinRoom(roomID, "b", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.app.JoinRoom(roomID, "c", "Carol"); err != nil {
		t.Fatalf("join: %v", err)
	}
	assertKeysMatch(t, room)

	if err := f.app.LeaveRoom(roomID, "b"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	assertKeysMatch(t, room)

	view = room.PublicView()
	names := []string{}
	for _, p := range view.Participants {
		names = append(names, p.Name)
	}
	if !reflect.DeepEqual(names, []string{"Alice", "Carol"}) {
		t.Fatalf("expected join order preserved, got %v", names)
	}

	if err := f.app.LeaveRoom(roomID, "b"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant on second leave, got %v", err)
	}
}

func TestLeaveBroadcastsParticipantLeft(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "a", "Alice")
	f.app.JoinRoom(roomID, "b", "Bob")
	f.rec.drain()

	if err := f.app.LeaveRoom(roomID, "b"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	left := f.rec.next(t)
	if left.event.Type != events.EventTypeParticipantLeft {
		t.Fatalf("expected participant-left, got %s", left.event.Type)
	}
	var payload events.ParticipantLeftPayload
	if err := left.event.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.ParticipantID != "b" || payload.Name != "Bob" || len(payload.RoomState.Participants) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestVotesAreMaskedUntilReveal(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "a", "Alice")
	f.app.JoinRoom(roomID, "b", "Bob")
	f.rec.drain()

	if err := f.app.SubmitVote(roomID, "b", "5"); err != nil {
		t.Fatalf("vote: %v", err)
	}

	received := f.rec.next(t)
	if received.event.Type != events.EventTypeVoteReceived {
		t.Fatalf("expected vote-received, got %s", received.event.Type)
	}
	var payload events.VoteReceivedPayload
	if err := received.event.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.ParticipantID != "b" {
		t.Fatalf("expected voter b, got %q", payload.ParticipantID)
	}
	if vote := payload.RoomState.Votes["b"]; !vote.Voted || vote.Revealed || vote.Value != models.NoVote {
		t.Fatalf("vote should be masked, got %+v", vote)
	}
	if vote := payload.RoomState.Votes["a"]; vote.Voted {
		t.Fatalf("a has not voted, got %+v", vote)
	}

	var raw struct {
		RoomState struct {
			Votes map[string]interface{} `json:"votes"`
		} `json:"room_state"`
	}
	if err := json.Unmarshal(received.event.Data, &raw); err != nil {
		t.Fatal(err)
	}
	for id, v := range raw.RoomState.Votes {
		if _, isBool := v.(bool); !isBool {
			t.Fatalf("vote for %s leaked as %v", id, v)
		}
	}
}

func TestRevealAndResetScenario(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	room, _ := f.registry.Get(roomID)
	f.app.JoinRoom(roomID, "alice-conn", "Alice")
	f.app.JoinRoom(roomID, "bob-conn", "Bob")

	if err := f.app.SubmitVote(roomID, "bob-conn", "5"); err != nil {
		t.Fatal(err)
	}
	if err := f.app.SubmitVote(roomID, "alice-conn", "8"); err != nil {
		t.Fatal(err)
	}
	f.rec.drain()

	if err := f.app.RevealVotes(roomID, "Alice"); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	revealed := f.rec.next(t)
	if revealed.event.Type != events.EventTypeVotesRevealed {
		t.Fatalf("expected votes-revealed, got %s", revealed.event.Type)
	}
	var payload events.RoomStatePayload
	if err := revealed.event.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	view := payload.RoomState
	if !view.Revealed {
		t.Fatal("expected revealed view")
	}
	if view.Votes["bob-conn"].Value != "5" || view.Votes["alice-conn"].Value != "8" {
		t.Fatalf("unexpected revealed votes: %+v", view.Votes)
	}
	if view.Summary == nil || view.Summary.Average == nil || *view.Summary.Average != 6.5 {
		t.Fatalf("expected average 6.5, got %+v", view.Summary)
	}
	if view.Summary.Consensus != "No consensus" {
		t.Fatalf("expected no consensus, got %q", view.Summary.Consensus)
	}

	if err := f.app.ResetVotes(roomID, "Alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	reset := f.rec.next(t)
	if reset.event.Type != events.EventTypeVotesReset {
		t.Fatalf("expected votes-reset, got %s", reset.event.Type)
	}
	for id, v := range room.Votes() {
		if v != models.NoVote {
			t.Fatalf("vote for %s not cleared: %q", id, v)
		}
	}
	if room.Revealed() {
		t.Fatal("expected hidden after reset")
	}
}

func TestRevealExposesMissingVotes(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "a", "Alice")
	f.app.JoinRoom(roomID, "b", "Bob")
	f.app.SubmitVote(roomID, "a", "3")

	if err := f.app.RevealVotes(roomID, "Alice"); err != nil {
		t.Fatal(err)
	}
	view, _ := f.app.RoomView(roomID)
	if v := view.Votes["b"]; !v.Revealed || v.Voted || v.Value != models.NoVote {
		t.Fatalf("expected revealed no-vote for b, got %+v", v)
	}
	if v := view.Votes["a"]; v.Value != "3" {
		t.Fatalf("expected 3 for a, got %+v", v)
	}
}

func TestVoteAfterRevealIsIgnored(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	room, _ := f.registry.Get(roomID)
	f.app.JoinRoom(roomID, "a", "Alice")
	f.app.SubmitVote(roomID, "a", "2")
	f.app.RevealVotes(roomID, "Alice")
	f.rec.drain()

	before := room.Votes()
	if err := f.app.SubmitVote(roomID, "a", "13"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if !reflect.DeepEqual(before, room.Votes()) || !room.Revealed() {
		t.Fatal("vote after reveal changed state")
	}
	f.rec.expectNone(t)
}

func TestNonCreatorCannotRevealOrReset(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	room, _ := f.registry.Get(roomID)
	f.app.JoinRoom(roomID, "a", "Alice")
	f.app.JoinRoom(roomID, "b", "Bob")
	f.app.SubmitVote(roomID, "a", "5")
	f.rec.drain()

	before := room.PublicView()

	if err := f.app.RevealVotes(roomID, "Bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.app.ResetVotes(roomID, "Bob"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if after := room.PublicView(); !reflect.DeepEqual(before, after) {
		t.Fatalf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
	f.rec.expectNone(t)
}

func TestSubmitVoteValidation(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "a", "Alice")

	tests := []struct {
		name   string
		roomID string
		conn   string
		card   models.Card
		want   error
	}{
		{name: "missing room", roomID: "NOPE1234", conn: "a", card: "5", want: ErrRoomNotFound},
		{name: "not a member", roomID: roomID, conn: "x", card: "5", want: ErrNotParticipant},
		{name: "unknown card", roomID: roomID, conn: "a", card: "4", want: ErrInvalidCard},
		{name: "empty card", roomID: roomID, conn: "a", card: models.NoVote, want: ErrInvalidCard},
		{name: "question mark", roomID: roomID, conn: "a", card: "?", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.app.SubmitVote(tt.roomID, tt.conn, tt.card)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestUpdateStoryBroadcastsToEveryone(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "a", "Alice")
	f.rec.drain()

	if err := f.app.UpdateStory(roomID, "Login page", "OAuth flow"); err != nil {
		t.Fatal(err)
	}
	e := f.rec.next(t)
	if e.event.Type != events.EventTypeStoryUpdated || e.except != "" {
		t.Fatalf("expected story-updated to everyone, got %s except %q", e.event.Type, e.except)
	}
	var payload events.StoryUpdatedPayload
	if err := e.event.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Story.Title != "Login page" || payload.Story.Description != "OAuth flow" {
		t.Fatalf("unexpected story %+v", payload.Story)
	}
}

func TestActionsOnMissingRoomAreNoOps(t *testing.T) {
	f := newFixture(t)

	checks := map[string]error{
		"vote":   f.app.SubmitVote("MISSING1", "a", "5"),
		"reveal": f.app.RevealVotes("MISSING1", "Alice"),
		"reset":  f.app.ResetVotes("MISSING1", "Alice"),
		"story":  f.app.UpdateStory("MISSING1", "t", "d"),
		"start":  f.app.StartTimer("MISSING1", 10),
		"stop":   f.app.StopTimer("MISSING1"),
		"leave":  f.app.LeaveRoom("MISSING1", "a"),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("%s: expected ErrRoomNotFound, got %v", name, err)
		}
	}
	f.rec.expectNone(t)
}

func TestConcurrentVotesInSameRoom(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	room, _ := f.registry.Get(roomID)

	const voters = 50
	conns := make([]string, voters)
	for i := range conns {
		conns[i] = fmt.Sprintf("conn-%02d", i)
		if _, err := f.app.JoinRoom(roomID, conns[i], conns[i]); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(conn string, card models.Card) {
			defer wg.Done()
			if err := f.app.SubmitVote(roomID, conn, card); err != nil {
				t.Errorf("vote %s: %v", conn, err)
			}
		}(conn, models.CardValues[i%len(models.CardValues)])
	}
	wg.Wait()

	votes := room.Votes()
	if len(votes) != voters {
		t.Fatalf("expected %d votes, got %d", voters, len(votes))
	}
	for i, conn := range conns {
		if want := models.CardValues[i%len(models.CardValues)]; votes[conn] != want {
			t.Fatalf("vote for %s = %q, want %q", conn, votes[conn], want)
		}
	}
	assertKeysMatch(t, room)
}

func TestJoinRoomThenRunsHookAfterJoinEvent(t *testing.T) {
	f := newFixture(t)
	roomID := f.app.CreateRoom("Alice")
	f.app.JoinRoom(roomID, "conn-alice", "Alice")

	calls := 0
	view, err := f.app.JoinRoomThen(roomID, "conn-bob", "Bob", func(v models.PublicView) {
		calls++
		if f.rec.count() != 1 {
			t.Errorf("hook ran before participant-joined was emitted")
		}
		if len(v.Participants) != 2 {
			t.Errorf("hook view has %d participants, want 2", len(v.Participants))
		}
	})
	if err != nil {
		t.Fatalf("JoinRoomThen: %v", err)
	}
	if calls != 1 {
		t.Fatalf("hook called %d times, want 1", calls)
	}
	if len(view.Participants) != 2 {
		t.Errorf("returned view has %d participants", len(view.Participants))
	}

	_, err = f.app.JoinRoomThen("ZZZZZZZZ", "conn-carol", "Carol", func(models.PublicView) {
		t.Error("hook ran for an unknown room")
	})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}
