package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/planningpoker/go/internal/room"
)

type testServer struct {
	srv      *httptest.Server
	service  *Service
	registry *room.Registry
	clock    *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	clock := clockwork.NewFakeClock()
	registry := room.NewRegistry(clock)
	service, err := NewService(DefaultConfig(), registry, clock)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	mux := http.NewServeMux()
	service.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.Start(ctx)
	}()

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &testServer{srv: srv, service: service, registry: registry, clock: clock}
}

// frame is either a reply or an event.
type frame struct {
	Type    string          `json:"type"`
	ReplyTo string          `json:"reply_to"`
	RoomID  string          `json:"room_id"`
	Data    json.RawMessage `json:"data"`
}

type testClient struct {
	t     *testing.T
	conn  *websocket.Conn
	seq   atomic.Int64
	frame chan frame
}

func (ts *testServer) dial(t *testing.T) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}

	c := &testClient{t: t, conn: conn, frame: make(chan frame, 256)}
	go func() {
		defer close(c.frame)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			c.frame <- f
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return c
}

// send writes an action frame and returns its request id.
func (c *testClient) send(action Action, data interface{}) string {
	c.t.Helper()

	id := fmt.Sprintf("req-%d", c.seq.Add(1))
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s data: %v", action, err)
	}
	if err := c.conn.WriteJSON(ClientMessage{ID: id, Action: action, Data: raw}); err != nil {
		c.t.Fatalf("write %s: %v", action, err)
	}
	return id
}

// waitFor returns the first frame of the given type, skipping others.
func (c *testClient) waitFor(frameType string) frame {
	c.t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-c.frame:
			if !ok {
				c.t.Fatalf("connection closed waiting for %s", frameType)
			}
			if f.Type == frameType {
				return f
			}
		case <-timeout:
			c.t.Fatalf("timed out waiting for %s", frameType)
		}
	}
}

func (c *testClient) reply(requestID string, out interface{}) {
	c.t.Helper()

	f := c.waitFor(replyType)
	if f.ReplyTo != requestID {
		c.t.Fatalf("reply_to = %q, want %q", f.ReplyTo, requestID)
	}
	if err := json.Unmarshal(f.Data, out); err != nil {
		c.t.Fatalf("decode reply: %v", err)
	}
}

func (c *testClient) createRoom(name string) string {
	c.t.Helper()

	id := c.send(ActionCreateRoom, CreateRoomRequest{CreatorName: name})
	var resp CreateRoomReply
	c.reply(id, &resp)
	if !resp.Success || resp.RoomID == "" {
		c.t.Fatalf("create-room reply = %+v", resp)
	}
	return resp.RoomID
}

func (c *testClient) joinRoom(roomID, name string) JoinRoomReply {
	c.t.Helper()

	id := c.send(ActionJoinRoom, JoinRoomRequest{RoomID: roomID, Name: name})
	var resp JoinRoomReply
	c.reply(id, &resp)
	return resp
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
