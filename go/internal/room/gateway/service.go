package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/planningpoker/go/internal/room"
)

// Service is the room gateway: websocket connections, action routing and
// event fan-out around a room.App.
type Service struct {
	app               *room.App
	connectionManager *ConnectionManager
	router            *ActionRouter
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	publisher         *NATSPublisher
}

// Config holds configuration for the room gateway.
type Config struct {
	ConnectionConfig ConnectionConfig
	Rooms            room.Config
	NATS             NATSConfig
}

// DefaultConfig returns default configuration for the room gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Rooms:            room.DefaultConfig(),
		NATS:             DefaultNATSConfig(),
	}
}

// NewService wires the gateway around registry. NATS is only dialled when
// config.NATS.URL is set.
func NewService(config Config, registry *room.Registry, clock clockwork.Clock) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	var broadcaster room.Broadcaster = connectionManager
	var publisher *NATSPublisher
	if config.NATS.URL != "" {
		p, err := NewNATSPublisher(config.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = p
		broadcaster = Fanout{connectionManager, publisher}
	}

	app := room.NewApp(registry, broadcaster, clock, config.Rooms)
	router := NewActionRouter(app, connectionManager)
	connectionManager.SetActionHandler(router)

	return &Service{
		app:               app,
		connectionManager: connectionManager,
		router:            router,
		wsHandler:         NewWebSocketHandler(connectionManager, app.RoomCount),
		stateHandler:      NewStateHandler(app),
		publisher:         publisher,
	}, nil
}

// Start runs the gateway until ctx is cancelled, then stops it.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop closes every websocket, cancels every countdown and pending cleanup
// and closes the NATS mirror.
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	s.app.Shutdown()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}

	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the websocket and state HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// App exposes the room application the gateway drives.
func (s *Service) App() *room.App {
	return s.app
}

// GetStats returns statistics about the gateway service.
func (s *Service) GetStats() StatsResponse {
	return StatsResponse{
		ConnectionStats: s.connectionManager.GetConnectionStats(),
		Rooms:           s.app.RoomCount(),
	}
}
