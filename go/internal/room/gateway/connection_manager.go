package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

// ActionHandler processes inbound client frames for a connection.
type ActionHandler interface {
	HandleMessage(conn *Connection, message []byte)
	HandleDisconnect(conn *Connection)
}

// ConnectionManager owns every websocket connection and the room groups
// they belong to. It implements room.Broadcaster.
type ConnectionManager struct {
	connections map[*Connection]bool
	// Room groups keyed by room id
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  ActionHandler

	broadcastCh chan BroadcastMessage
}

// Connection is a single client websocket.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	// Group membership, guarded by Manager.mu
	roomID string
	name   string

	sendMu sync.Mutex
	closed bool
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is a queued delivery. Targets are fixed when the message
// is queued, so a connection that joins later never sees it.
type BroadcastMessage struct {
	RoomID  string
	Event   *events.Event
	Reply   *ReplyMessage
	Targets []*Connection
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8192, // story descriptions can be long
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		connections:     make(map[*Connection]bool),
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetActionHandler installs the handler for inbound frames. Call before Start.
func (cm *ConnectionManager) SetActionHandler(handler ActionHandler) {
	cm.handler = handler
}

// Start processes queued broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket connection.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true
}

// unregisterConnection removes a connection and its group membership and
// closes its send channel. Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if _, exists := cm.connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn)
	cm.removeFromRoomLocked(conn)
	cm.mu.Unlock()

	conn.sendMu.Lock()
	conn.closed = true
	close(conn.Send)
	conn.sendMu.Unlock()

	log.Info().Str("connection_id", conn.ID).Msg("connection unregistered")
}

// JoinRoomGroup moves the connection into a room group under a display name.
func (cm *ConnectionManager) JoinRoomGroup(conn *Connection, roomID, name string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.removeFromRoomLocked(conn)
	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true
	conn.roomID = roomID
	conn.name = name

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Int("group_size", len(cm.roomConnections[roomID])).
		Msg("connection joined room group")
}

// LeaveRoomGroup removes the connection from its room group.
func (cm *ConnectionManager) LeaveRoomGroup(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeFromRoomLocked(conn)
}

func (cm *ConnectionManager) removeFromRoomLocked(conn *Connection) {
	if conn.roomID == "" {
		return
	}
	if group, exists := cm.roomConnections[conn.roomID]; exists {
		delete(group, conn)
		if len(group) == 0 {
			delete(cm.roomConnections, conn.roomID)
		}
	}
	conn.roomID = ""
	conn.name = ""
}

// Membership returns the room and display name the connection joined with.
func (cm *ConnectionManager) Membership(conn *Connection) (roomID, name string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return conn.roomID, conn.name
}

// BroadcastToRoom queues an event for every current member of the room group.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *events.Event) {
	cm.BroadcastToRoomExcept(roomID, "", event)
}

// BroadcastToRoomExcept queues an event for every current member but one.
// An empty connectionID excludes nobody.
func (cm *ConnectionManager) BroadcastToRoomExcept(roomID, connectionID string, event *events.Event) {
	cm.mu.RLock()
	group := cm.roomConnections[roomID]
	targets := make([]*Connection, 0, len(group))
	for conn := range group {
		if connectionID != "" && conn.ID == connectionID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	cm.enqueue(BroadcastMessage{RoomID: roomID, Event: event, Targets: targets})
}

// SendReply queues a reply for one connection behind every event already
// queued for it.
func (cm *ConnectionManager) SendReply(conn *Connection, reply ReplyMessage) {
	cm.enqueue(BroadcastMessage{Reply: &reply, Targets: []*Connection{conn}})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		event := log.Warn().Str("room_id", message.RoomID)
		if message.Event != nil {
			event = event.Str("event_type", string(message.Event.Type))
		}
		event.Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var payload interface{} = message.Event
	if message.Reply != nil {
		payload = message.Reply
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound message")
		return
	}

	for _, conn := range message.Targets {
		if !conn.trySend(data) {
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			conn.Conn.Close()
		}
	}

	if message.Event != nil {
		log.Debug().
			Str("event_type", string(message.Event.Type)).
			Str("room_id", message.RoomID).
			Int("connections", len(message.Targets)).
			Msg("event broadcasted")
	}
}

// CloseAll closes every websocket. Their read pumps then unregister them
// and report the disconnect.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
	log.Info().Int("connections", len(conns)).Msg("closed all connections")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveRooms:      len(cm.roomConnections),
		RoomConnections:  make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, group := range cm.roomConnections {
		stats.RoomConnections[roomID] = len(group)
	}
	return stats
}

// ConnectionStats is a snapshot of connection counts.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// trySend queues data without blocking. It reports false when the buffer
// is full; sends after close are dropped silently.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client frames until the socket closes, then reports the
// disconnect to the action handler.
func (c *Connection) readPump() {
	defer func() {
		if c.Manager.handler != nil {
			c.Manager.handler.HandleDisconnect(c)
		}
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
