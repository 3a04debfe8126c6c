package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/tapchain/go/internal/chainsync"
	"github.com/mcdev12/tapchain/go/internal/journal"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/session"
	"github.com/rs/zerolog/log"
)

type sessionResponse struct {
	Changed bool          `json:"changed"`
	Session session.State `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// statusFor maps controller errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chainsync.ErrNotConnected),
		errors.Is(err, chainsync.ErrInvalidState),
		errors.Is(err, chainsync.ErrOperationInFlight):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrProgram),
		errors.Is(err, ledger.ErrInvalidScore),
		errors.Is(err, ledger.ErrNotInitialized):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// handleState handles GET /api/state
func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.View())
}

// handleLeaderboard handles GET /api/leaderboard
func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Leaderboard())
}

// handleSubmission handles GET /api/sessions/{id}
func (s *Service) handleSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session id"})
		return
	}
	entry, err := s.game.Submission(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not journaled"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", id.String()).Msg("failed to read journal")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read journal"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleSessionAction handles POST /api/session/{start,tap,stop,reset}
func (s *Service) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	changed, ok := s.sessionAction(r.Context(), r.PathValue("action"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Changed: changed, Session: s.game.State()})
}

func (s *Service) handleProvision(w http.ResponseWriter, r *http.Request) {
	if err := s.chain.Provision(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.chain.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (s *Service) handleClearError(w http.ResponseWriter, r *http.Request) {
	s.chain.ClearError()
	writeJSON(w, http.StatusOK, s.View())
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, true)
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.authenticate(w, r, false)
}

func (s *Service) authenticate(w http.ResponseWriter, r *http.Request, login bool) {
	if s.auth == nil {
		http.NotFound(w, r)
		return
	}
	if login {
		s.auth.Login()
	} else {
		s.auth.Logout()
	}
	if err := s.chain.Sync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// handleWebSocket handles GET /ws
func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	greeting := &Message{Type: MessageState, Data: s.View()}
	if err := s.connections.UpgradeConnection(w, r, greeting); err != nil {
		// The upgrader has already replied to the client.
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
	}
}
