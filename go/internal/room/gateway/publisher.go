package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/room"
	"github.com/mcdev12/planningpoker/go/internal/room/events"
)

// NATSConfig configures the event mirror. An empty URL disables it.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns a disabled mirror with the default subject prefix.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		SubjectPrefix: "poker.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// eventPublisher is the subset of *nats.Conn the mirror uses.
type eventPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher mirrors every room event onto NATS at
// <prefix>.<room id>.<event type>. It implements room.Broadcaster.
type NATSPublisher struct {
	nc     *nats.Conn
	pub    eventPublisher
	prefix string
}

// NewNATSPublisher connects to NATS.
func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.Name("planningpoker"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("NATS event mirror connected")

	return &NATSPublisher{nc: nc, pub: nc, prefix: config.SubjectPrefix}, nil
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(roomID string, eventType events.EventType) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, roomID, eventType)
}

// BroadcastToRoom publishes the event. Publish only buffers locally, so
// this never blocks on the network.
func (p *NATSPublisher) BroadcastToRoom(roomID string, event *events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for NATS")
		return
	}
	subject := p.Subject(roomID, event.Type)
	if err := p.pub.Publish(subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Msg("failed to publish event")
	}
}

// BroadcastToRoomExcept publishes the event. Exclusions only apply to
// socket delivery.
func (p *NATSPublisher) BroadcastToRoomExcept(roomID, _ string, event *events.Event) {
	p.BroadcastToRoom(roomID, event)
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Fanout delivers every event to each broadcaster in order.
type Fanout []room.Broadcaster

func (f Fanout) BroadcastToRoom(roomID string, event *events.Event) {
	for _, b := range f {
		b.BroadcastToRoom(roomID, event)
	}
}

func (f Fanout) BroadcastToRoomExcept(roomID, connectionID string, event *events.Event) {
	for _, b := range f {
		b.BroadcastToRoomExcept(roomID, connectionID, event)
	}
}
