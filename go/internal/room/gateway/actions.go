package gateway

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/room"
)

// Action is the wire name of an inbound client action.
type Action string

const (
	ActionCreateRoom  Action = "create-room"
	ActionJoinRoom    Action = "join-room"
	ActionSubmitVote  Action = "submit-vote"
	ActionRevealVotes Action = "reveal-votes"
	ActionResetVotes  Action = "reset-votes"
	ActionUpdateStory Action = "update-story"
	ActionStartTimer  Action = "start-timer"
	ActionStopTimer   Action = "stop-timer"
)

// ClientMessage is an inbound frame.
type ClientMessage struct {
	ID     string          `json:"id"`
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ReplyMessage answers a create or join request.
type ReplyMessage struct {
	Type    string      `json:"type"`
	ReplyTo string      `json:"reply_to"`
	Data    interface{} `json:"data"`
}

const replyType = "reply"

type CreateRoomRequest struct {
	CreatorName string `json:"creator_name"`
}

type CreateRoomReply struct {
	Success bool   `json:"success"`
	RoomID  string `json:"room_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

type JoinRoomReply struct {
	Success   bool               `json:"success"`
	RoomState *models.PublicView `json:"room_state,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type SubmitVoteRequest struct {
	CardValue models.Card `json:"card_value"`
}

type UpdateStoryRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type StartTimerRequest struct {
	Duration int `json:"duration"`
	// Accepted as an alias for Duration.
	DurationSeconds int `json:"durationSeconds,omitempty"`
}

func (r StartTimerRequest) seconds() int {
	if r.Duration != 0 {
		return r.Duration
	}
	return r.DurationSeconds
}

// Reply error texts shown to clients.
const (
	errTextRoomNotFound = "Room not found"
	errTextInvalidName  = "Name is required"
	errTextBadRequest   = "Invalid request"
)

// ActionRouter applies client actions to the room app. It is the
// ActionHandler installed on the connection manager.
type ActionRouter struct {
	app   *room.App
	group *ConnectionManager
}

// NewActionRouter creates a router over app and the connection groups.
func NewActionRouter(app *room.App, group *ConnectionManager) *ActionRouter {
	return &ActionRouter{app: app, group: group}
}

// HandleMessage decodes a frame and dispatches it. Failures never escape:
// create and join answer with success false, everything else is logged.
func (ar *ActionRouter) HandleMessage(conn *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("ignoring malformed client message")
		return
	}

	var err error
	switch msg.Action {
	case ActionCreateRoom:
		ar.handleCreateRoom(conn, msg)
		return
	case ActionJoinRoom:
		ar.handleJoinRoom(conn, msg)
		return
	case ActionSubmitVote:
		err = ar.handleSubmitVote(conn, msg)
	case ActionRevealVotes:
		roomID, name := ar.group.Membership(conn)
		err = ar.app.RevealVotes(roomID, name)
	case ActionResetVotes:
		roomID, name := ar.group.Membership(conn)
		err = ar.app.ResetVotes(roomID, name)
	case ActionUpdateStory:
		err = ar.handleUpdateStory(conn, msg)
	case ActionStartTimer:
		err = ar.handleStartTimer(conn, msg)
	case ActionStopTimer:
		roomID, _ := ar.group.Membership(conn)
		err = ar.app.StopTimer(roomID)
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("action", string(msg.Action)).
			Msg("unknown action")
		return
	}

	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Str("action", string(msg.Action)).
			Msg("action ignored")
	}
}

// HandleDisconnect removes the connection from the room it joined, if any.
func (ar *ActionRouter) HandleDisconnect(conn *Connection) {
	roomID, _ := ar.group.Membership(conn)
	if roomID == "" {
		return
	}
	ar.group.LeaveRoomGroup(conn)
	if err := ar.app.LeaveRoom(roomID, conn.ID); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Str("room_id", roomID).
			Msg("leave on disconnect ignored")
	}
}

func (ar *ActionRouter) handleCreateRoom(conn *Connection, msg ClientMessage) {
	var req CreateRoomRequest
	if err := decodeData(msg.Data, &req); err != nil {
		ar.reply(conn, msg.ID, CreateRoomReply{Error: errTextBadRequest})
		return
	}
	name := strings.TrimSpace(req.CreatorName)
	if name == "" {
		ar.reply(conn, msg.ID, CreateRoomReply{Error: errTextInvalidName})
		return
	}

	roomID := ar.app.CreateRoom(name)
	ar.reply(conn, msg.ID, CreateRoomReply{Success: true, RoomID: roomID})
}

func (ar *ActionRouter) handleJoinRoom(conn *Connection, msg ClientMessage) {
	var req JoinRoomRequest
	if err := decodeData(msg.Data, &req); err != nil {
		ar.reply(conn, msg.ID, JoinRoomReply{Error: errTextBadRequest})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		ar.reply(conn, msg.ID, JoinRoomReply{Error: errTextInvalidName})
		return
	}
	roomID := strings.ToUpper(strings.TrimSpace(req.RoomID))

	// Joining a second room leaves the first, but only once the second is
	// known to exist.
	if previous, _ := ar.group.Membership(conn); previous != "" && previous != roomID {
		if _, err := ar.app.RoomView(roomID); err != nil {
			ar.replyJoinError(conn, msg.ID, err)
			return
		}
		ar.HandleDisconnect(conn)
	}

	// Group entry and the reply happen under the room lock, so the joiner
	// gets exactly the events emitted after its join, each after the reply.
	_, err := ar.app.JoinRoomThen(roomID, conn.ID, name, func(view models.PublicView) {
		ar.group.JoinRoomGroup(conn, roomID, name)
		ar.reply(conn, msg.ID, JoinRoomReply{Success: true, RoomState: &view})
	})
	if err != nil {
		ar.replyJoinError(conn, msg.ID, err)
	}
}

func (ar *ActionRouter) replyJoinError(conn *Connection, requestID string, err error) {
	text := errTextBadRequest
	if errors.Is(err, room.ErrRoomNotFound) {
		text = errTextRoomNotFound
	}
	ar.reply(conn, requestID, JoinRoomReply{Error: text})
}

func (ar *ActionRouter) handleSubmitVote(conn *Connection, msg ClientMessage) error {
	var req SubmitVoteRequest
	if err := decodeData(msg.Data, &req); err != nil {
		return err
	}
	roomID, _ := ar.group.Membership(conn)
	return ar.app.SubmitVote(roomID, conn.ID, req.CardValue)
}

func (ar *ActionRouter) handleUpdateStory(conn *Connection, msg ClientMessage) error {
	var req UpdateStoryRequest
	if err := decodeData(msg.Data, &req); err != nil {
		return err
	}
	roomID, _ := ar.group.Membership(conn)
	return ar.app.UpdateStory(roomID, req.Title, req.Description)
}

func (ar *ActionRouter) handleStartTimer(conn *Connection, msg ClientMessage) error {
	var req StartTimerRequest
	if err := decodeData(msg.Data, &req); err != nil {
		return err
	}
	roomID, _ := ar.group.Membership(conn)
	return ar.app.StartTimer(roomID, req.seconds())
}

func (ar *ActionRouter) reply(conn *Connection, requestID string, data interface{}) {
	ar.group.SendReply(conn, ReplyMessage{Type: replyType, ReplyTo: requestID, Data: data})
}

// decodeData tolerates a missing data object.
func decodeData(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}
