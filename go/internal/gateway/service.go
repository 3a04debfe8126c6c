package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/tapchain/go/internal/chainsync"
	"github.com/mcdev12/tapchain/go/internal/journal"
	"github.com/mcdev12/tapchain/go/internal/leaderboard"
	"github.com/mcdev12/tapchain/go/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Chain is the chain-sync controller as seen by the UI.
type Chain interface {
	Snapshot() chainsync.Snapshot
	Leaderboard() []leaderboard.Entry
	Sync(ctx context.Context) error
	Provision(ctx context.Context) error
	Refresh(ctx context.Context) error
	ClearError()
	Subscribe(fn func(chainsync.Snapshot))
}

// Game is the local session and its submissions.
type Game interface {
	State() session.State
	Start(ctx context.Context) bool
	Tap() bool
	Stop() bool
	Reset() bool
	Observe(fn func(session.State))
	Submission(ctx context.Context, sessionID uuid.UUID) (*journal.Entry, error)
}

// Auth is the host login session. It is optional.
type Auth interface {
	Login()
	Logout()
}

// View is the full state the UI renders.
type View struct {
	Chain   chainsync.Snapshot `json:"chain"`
	Session session.State      `json:"session"`
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	Connection     ConnectionConfig
	// Registry receives the gateway collectors and is served on /metrics.
	// A private registry is used when nil.
	Registry *prometheus.Registry
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		Connection:     DefaultConnectionConfig(),
	}
}

// Service is the local UI bridge: REST commands, websocket push and the
// connect GatewayService.
type Service struct {
	config      Config
	chain       Chain
	game        Game
	auth        Auth
	connections *ConnectionManager
	metrics     *metrics
}

func NewService(config Config, chain Chain, game Game, auth Auth) *Service {
	s := &Service{
		config: config,
		chain:  chain,
		game:   game,
		auth:   auth,
	}
	s.connections = NewConnectionManager(config.Connection, s.handleCommand)
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(registry, s.connections)

	chain.Subscribe(func(snap chainsync.Snapshot) {
		s.connections.Broadcast(Message{Type: MessageChain, Data: snap})
	})
	game.Observe(func(st session.State) {
		s.connections.Broadcast(Message{Type: MessageSession, Data: st})
	})
	return s
}

func (s *Service) View() View {
	return View{Chain: s.chain.Snapshot(), Session: s.game.State()}
}

// Connections exposes the websocket pool.
func (s *Service) Connections() *ConnectionManager { return s.connections }

// Start runs the broadcast loop until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")
	s.connections.Start(ctx)
	log.Info().Msg("gateway service stopped")
}

// RegisterRoutes registers every gateway route on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSubmission)
	mux.HandleFunc("POST /api/session/{action}", s.handleSessionAction)
	mux.HandleFunc("POST /api/provision", s.handleProvision)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/error/clear", s.handleClearError)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	path, handler := NewGatewayServiceHandler(s)
	mux.Handle(path, handler)

	log.Info().Msg("gateway routes registered")
}

// sessionAction applies a session command and reports whether it changed
// anything. Unknown actions return ok false.
func (s *Service) sessionAction(ctx context.Context, action string) (changed, ok bool) {
	switch action {
	case "start":
		return s.game.Start(ctx), true
	case "tap":
		return s.game.Tap(), true
	case "stop":
		return s.game.Stop(), true
	case "reset":
		return s.game.Reset(), true
	}
	return false, false
}

func (s *Service) handleCommand(ctx context.Context, cmd Command) *Message {
	if cmd.Action == "state" {
		return &Message{Type: MessageState, Data: s.View()}
	}
	if _, ok := s.sessionAction(ctx, cmd.Action); !ok {
		return &Message{Type: MessageError, Data: "unknown action " + cmd.Action}
	}
	// Changes reach the client through the session broadcast.
	return nil
}
