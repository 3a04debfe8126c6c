// Package game binds the local session to the ledger: every finished
// session with a positive tally is journaled and submitted exactly once.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tapchain/go/internal/chainsync"
	"github.com/mcdev12/tapchain/go/internal/events"
	"github.com/mcdev12/tapchain/go/internal/journal"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/session"
	"github.com/rs/zerolog/log"
)

// Recorder is what the coordinator needs from the chain-sync controller.
type Recorder interface {
	Identity() (ledger.Address, bool)
	RecordSession(ctx context.Context, sessionID string, score int64) (bool, error)
	Snapshot() chainsync.Snapshot
}

type Config struct {
	Duration     int
	TickInterval time.Duration
	// QueueSize bounds the finished sessions waiting for submission.
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		Duration:     session.DefaultDuration,
		TickInterval: session.DefaultTickInterval,
		QueueSize:    16,
	}
}

// Outcome is the journaled result of one submission.
type Outcome struct {
	Score     int64  `json:"score"`
	Recorded  bool   `json:"recorded"`
	HighScore uint64 `json:"high_score,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Coordinator struct {
	runner    *session.Runner
	recorder  Recorder
	journal   journal.Store
	publisher events.Publisher
	clock     clockwork.Clock

	results chan session.Result
	once    sync.Once
	done    chan struct{}
}

type Option func(*Coordinator)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.publisher = p }
}

func NewCoordinator(cfg Config, recorder Recorder, store journal.Store, opts ...Option) *Coordinator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	c := &Coordinator{
		recorder:  recorder,
		journal:   store,
		publisher: events.LogPublisher{},
		clock:     clockwork.NewRealClock(),
		results:   make(chan session.Result, cfg.QueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	machine := session.NewMachine(cfg.Duration, c.ended)
	c.runner = session.NewRunner(machine, c.clock, cfg.TickInterval)
	return c
}

func (c *Coordinator) State() session.State { return c.runner.State() }

// Observe forwards every session state change to fn.
func (c *Coordinator) Observe(fn func(session.State)) { c.runner.Observe(fn) }

func (c *Coordinator) Start(ctx context.Context) bool {
	if !c.runner.Start() {
		return false
	}
	st := c.runner.State()
	identity, _ := c.recorder.Identity()
	c.emit(ctx, events.TypeSessionStarted, identity, events.SessionStartedPayload{
		SessionID: st.SessionID.String(),
		Duration:  st.Remaining,
	})
	return true
}

func (c *Coordinator) Tap() bool { return c.runner.Tap() }

func (c *Coordinator) Stop() bool { return c.runner.Stop() }

func (c *Coordinator) Reset() bool { return c.runner.Reset() }

// ended runs on the ticker goroutine or the caller of Stop.
func (c *Coordinator) ended(res session.Result) {
	select {
	case c.results <- res:
	default:
		log.Error().
			Str("session_id", res.SessionID.String()).
			Int64("tally", res.Tally).
			Msg("submission queue full, dropping finished session")
	}
}

// Run submits finished sessions until ctx is done. Journal entries left
// pending by an earlier process are marked failed first: whether they
// reached the ledger is unknown, so they are never resubmitted.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })

	c.abandonPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-c.results:
			c.submit(ctx, res)
		}
	}
}

// Submission returns the journal entry of a finished session.
func (c *Coordinator) Submission(ctx context.Context, sessionID uuid.UUID) (*journal.Entry, error) {
	return c.journal.Get(ctx, sessionID)
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Close stops the session ticker.
func (c *Coordinator) Close() { c.runner.Close() }

func (c *Coordinator) abandonPending(ctx context.Context) {
	pending, err := c.journal.Pending(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list pending submissions")
		return
	}
	for _, e := range pending {
		raw, _ := json.Marshal(Outcome{Score: e.Score, Error: "interrupted before completion"})
		if err := c.journal.Complete(ctx, e.SessionID, journal.StatusFailed, "", raw); err != nil {
			log.Error().Err(err).Str("session_id", e.SessionID.String()).Msg("failed to close pending submission")
			continue
		}
		log.Warn().Str("session_id", e.SessionID.String()).Int64("score", e.Score).Msg("abandoned interrupted submission")
	}
}

func (c *Coordinator) submit(ctx context.Context, res session.Result) {
	identity, connected := c.recorder.Identity()
	c.emit(ctx, events.TypeSessionEnded, identity, events.SessionEndedPayload{
		SessionID: res.SessionID.String(),
		Tally:     res.Tally,
		Reason:    string(res.Reason),
	})

	logger := log.With().
		Str("session_id", res.SessionID.String()).
		Int64("tally", res.Tally).
		Logger()

	if res.Tally <= 0 {
		logger.Debug().Msg("empty session, nothing to record")
		return
	}
	if !connected {
		logger.Warn().Msg("no wallet connected, session not recorded")
		return
	}

	claimed, err := c.journal.Begin(ctx, res.SessionID, identity.String(), res.Tally)
	if err != nil {
		logger.Error().Err(err).Msg("failed to journal session, not submitting")
		return
	}
	if !claimed {
		logger.Warn().Msg("session already journaled, skipping")
		return
	}

	recorded, err := c.recorder.RecordSession(ctx, res.SessionID.String(), res.Tally)
	status, out := c.outcome(res, recorded, err)
	raw, merr := json.Marshal(out)
	if merr != nil {
		logger.Error().Err(merr).Msg("failed to marshal outcome")
	}
	var signature string
	if recorded {
		signature = c.recorder.Snapshot().LastSignature
	}
	// The submission already happened, so its outcome is stored even if ctx ended.
	if err := c.journal.Complete(context.WithoutCancel(ctx), res.SessionID, status, signature, raw); err != nil {
		logger.Error().Err(err).Msg("failed to complete journal entry")
		return
	}
	logger.Info().Str("status", string(status)).Msg("session submission finished")
}

func (c *Coordinator) outcome(res session.Result, recorded bool, err error) (journal.Status, Outcome) {
	out := Outcome{Score: res.Tally, Recorded: recorded}
	if p := c.recorder.Snapshot().Player; p != nil {
		out.HighScore = p.HighScore
	}
	switch {
	case recorded:
		return journal.StatusRecorded, out
	case err == nil:
		out.Error = "not accepted"
		return journal.StatusRejected, out
	}
	out.Error = err.Error()
	if errors.Is(err, ledger.ErrProgram) || errors.Is(err, ledger.ErrInvalidScore) || errors.Is(err, ledger.ErrNotInitialized) {
		return journal.StatusRejected, out
	}
	return journal.StatusFailed, out
}

func (c *Coordinator) emit(ctx context.Context, eventType string, identity ledger.Address, payload any) {
	var id string
	if !identity.IsZero() {
		id = identity.String()
	}
	ev, err := events.New(eventType, id, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
