// Package journal records score submissions by session id so that a session
// is never submitted twice, even across restarts.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRecorded Status = "recorded"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

var ErrNotFound = errors.New("journal entry not found")

type Entry struct {
	SessionID uuid.UUID       `json:"session_id"`
	Identity  string          `json:"identity"`
	Score     int64           `json:"score"`
	Status    Status          `json:"status"`
	Signature string          `json:"signature,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Store interface {
	// Begin claims sessionID. It returns false if the session was already
	// journaled, in which case the caller must not submit it.
	Begin(ctx context.Context, sessionID uuid.UUID, identity string, score int64) (bool, error)
	// Complete stores the outcome of a claimed session.
	Complete(ctx context.Context, sessionID uuid.UUID, status Status, signature string, result json.RawMessage) error
	// Pending lists claimed sessions without an outcome, oldest first.
	Pending(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, sessionID uuid.UUID) (*Entry, error)
}
