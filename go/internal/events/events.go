package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published by the controller and the game coordinator.
const (
	TypeConnected          = "Connected"
	TypeDisconnected       = "Disconnected"
	TypePlayerProvisioned  = "PlayerProvisioned"
	TypeSessionStarted     = "SessionStarted"
	TypeSessionEnded       = "SessionEnded"
	TypeScoreRecorded      = "ScoreRecorded"
	TypeScoreRejected      = "ScoreRejected"
	TypeLeaderboardUpdated = "LeaderboardUpdated"
)

// Event is the envelope every publisher receives.
type Event struct {
	ID         uuid.UUID       `json:"eventId"`
	Type       string          `json:"eventType"`
	Identity   string          `json:"identity,omitempty"`
	OccurredAt time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New builds an event with a fresh id. payload is marshalled to JSON.
func New(eventType, identity string, at time.Time, payload any) (Event, error) {
	ev := Event{
		ID:         uuid.New(),
		Type:       eventType,
		Identity:   identity,
		OccurredAt: at.UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PlayerProvisionedPayload lists the transactions provisioning sent.
type PlayerProvisionedPayload struct {
	Signatures []string `json:"signatures"`
}

type SessionStartedPayload struct {
	SessionID string `json:"session_id"`
	Duration  int    `json:"duration"`
}

type SessionEndedPayload struct {
	SessionID string `json:"session_id"`
	Tally     int64  `json:"tally"`
	Reason    string `json:"reason"`
}

type ScoreRecordedPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Score     int64  `json:"score"`
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	HighScore uint64 `json:"high_score"`
}

type ScoreRejectedPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Score     int64  `json:"score"`
	Reason    string `json:"reason"`
}

type LeaderboardUpdatedPayload struct {
	Players  int `json:"players"`
	YourRank int `json:"your_rank,omitempty"`
}
