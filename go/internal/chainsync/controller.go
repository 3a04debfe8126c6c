package chainsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tapchain/go/internal/events"
	"github.com/mcdev12/tapchain/go/internal/leaderboard"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/wallet"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Controller keeps a cached view of the ledger for the connected identity
// and serializes the mutating calls made on its behalf.
type Controller struct {
	ledger    Ledger
	session   SessionProvider
	publisher events.Publisher
	clock     clockwork.Clock
	config    Config
	wakeCh    chan struct{}

	mu           sync.RWMutex
	status       Status
	capability   *wallet.Capability
	generation   uint64
	global       *ledger.GlobalState
	player       *ledger.PlayerRecord
	players      []ledger.PlayerRecord
	playerExists bool
	loading      int
	err          error
	lastSig      ledger.Signature
	updatedAt    time.Time

	// Track in-flight mutations per identity
	inFlight   map[ledger.Address]bool
	inFlightMu sync.Mutex

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
}

type Option func(*Controller)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.config = cfg }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func NewController(l Ledger, session SessionProvider, opts ...Option) *Controller {
	c := &Controller{
		ledger:    l,
		session:   session,
		publisher: events.LogPublisher{},
		clock:     clockwork.NewRealClock(),
		config:    DefaultConfig(),
		wakeCh:    make(chan struct{}, 1),
		inFlight:  make(map[ledger.Address]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.LeaderboardSize <= 0 {
		c.config.LeaderboardSize = leaderboard.DefaultSize
	}
	return c
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify() {
	c.listenersMu.Lock()
	listeners := slices.Clone(c.listeners)
	c.listenersMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Identity returns the connected identity, if any.
func (c *Controller) Identity() (ledger.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.capability == nil {
		return ledger.Address{}, false
	}
	return c.capability.Address(), true
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Status:       c.status,
		GlobalState:  c.global,
		Player:       c.player,
		PlayerExists: c.playerExists,
		Leaderboard:  leaderboard.Project(c.players, c.config.LeaderboardSize),
		Stats:        leaderboard.Stats(c.player, c.players),
		Loading:      c.loading > 0,
		UpdatedAt:    c.updatedAt,
	}
	if c.capability != nil {
		snap.Identity = c.capability.Address().String()
		snap.WalletMode = c.capability.Mode().String()
	}
	if c.err != nil {
		snap.Error = c.err.Error()
	}
	if !c.lastSig.IsZero() {
		snap.LastSignature = c.lastSig.String()
	}
	return snap
}

// Leaderboard projects the cached player records.
func (c *Controller) Leaderboard() []leaderboard.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return leaderboard.Project(c.players, c.config.LeaderboardSize)
}

func (c *Controller) Stats() leaderboard.PlayerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return leaderboard.Stats(c.player, c.players)
}

func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Controller) ClearError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

// Sync reconciles the controller with the host session. A ready,
// authenticated session with at least one wallet yields a capability for
// its first wallet; anything else disconnects.
func (c *Controller) Sync(ctx context.Context) error {
	var candidate wallet.Wallet
	if c.session.Ready() && c.session.Authenticated() {
		if ws := c.session.Wallets(); len(ws) > 0 {
			candidate = ws[0]
		}
	}

	c.mu.RLock()
	current := c.capability
	status := c.status
	c.mu.RUnlock()

	if candidate == nil {
		if status != Disconnected || current != nil {
			c.disconnect(ctx, current)
		}
		return nil
	}
	if current != nil && current.Address() == candidate.PublicKey() {
		return nil
	}
	if current != nil {
		c.disconnect(ctx, current)
	}

	c.mu.Lock()
	c.status = Connecting
	c.mu.Unlock()
	c.notify()

	capability, err := wallet.NewCapability(candidate)
	if err != nil {
		c.mu.Lock()
		c.status = Disconnected
		c.err = err
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("connect wallet: %w", err)
	}

	c.mu.Lock()
	c.capability = capability
	c.status = Ready
	c.generation++
	c.mu.Unlock()

	identity := capability.Address()
	log.Info().
		Str("identity", identity.String()).
		Stringer("mode", capability.Mode()).
		Msg("wallet connected")
	c.emit(ctx, events.TypeConnected, identity, nil)
	c.notify()

	if err := c.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("identity", identity.String()).Msg("initial refresh failed")
	}
	return nil
}

func (c *Controller) disconnect(ctx context.Context, previous *wallet.Capability) {
	c.mu.Lock()
	c.status = Disconnected
	c.capability = nil
	c.generation++
	c.player = nil
	c.playerExists = false
	c.global = nil
	c.players = nil
	c.updatedAt = time.Time{}
	c.err = nil
	c.lastSig = ledger.Signature{}
	c.mu.Unlock()

	if previous != nil {
		log.Info().Str("identity", previous.Address().String()).Msg("wallet disconnected")
		c.emit(ctx, events.TypeDisconnected, previous.Address(), nil)
	}
	c.notify()
}

// ready returns the capability and the generation it belongs to.
func (c *Controller) ready() (*wallet.Capability, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != Ready || c.capability == nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidState, ErrNotConnected)
	}
	return c.capability, c.generation, nil
}

func (c *Controller) acquire(identity ledger.Address) bool {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	if c.inFlight[identity] {
		return false
	}
	c.inFlight[identity] = true
	return true
}

func (c *Controller) release(identity ledger.Address) {
	c.inFlightMu.Lock()
	delete(c.inFlight, identity)
	c.inFlightMu.Unlock()
}

func (c *Controller) startLoading() {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) stopLoading() {
	c.mu.Lock()
	c.loading--
	c.mu.Unlock()
	c.notify()
}

// fail records err on the snapshot if gen is still the live connection.
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.generation == gen {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.OperationTimeout)
}

// remoteErr maps an expired operation deadline to ErrRemoteUnavailable.
func remoteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ledger.ErrRemoteUnavailable) {
		return fmt.Errorf("%w: %w", ledger.ErrRemoteUnavailable, err)
	}
	return err
}

// EnsurePlayerExists reports whether the connected identity has a player record.
func (c *Controller) EnsurePlayerExists(ctx context.Context) (bool, error) {
	capability, gen, err := c.ready()
	if err != nil {
		return false, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	addr, err := c.ledger.PlayerAddress(capability.Address())
	if err != nil {
		c.fail(gen, err)
		return false, err
	}
	exists, err := c.ledger.Exists(ctx, addr)
	if err != nil {
		err = remoteErr(err)
		c.fail(gen, err)
		c.notify()
		return false, err
	}

	c.mu.Lock()
	if c.generation == gen {
		c.playerExists = exists
	}
	c.mu.Unlock()
	c.notify()
	return exists, nil
}

// Provision creates the global state and the player record, whichever is
// missing, with a single approval from the wallet.
func (c *Controller) Provision(ctx context.Context) error {
	capability, gen, err := c.ready()
	if err != nil {
		return err
	}
	identity := capability.Address()
	if !c.acquire(identity) {
		return ErrOperationInFlight
	}
	defer c.release(identity)

	c.startLoading()
	defer c.stopLoading()

	opCtx, cancel := c.withTimeout(ctx)
	refs, err := c.ledger.Provision(opCtx, capability)
	cancel()
	if err != nil {
		err = remoteErr(err)
		log.Error().Err(err).Str("identity", identity.String()).Msg("provisioning failed")
		c.fail(gen, err)
	} else if len(refs) > 0 {
		sigs := make([]string, len(refs))
		for i, ref := range refs {
			sigs[i] = ref.Signature.String()
		}
		c.mu.Lock()
		if c.generation == gen {
			c.lastSig = refs[len(refs)-1].Signature
		}
		c.mu.Unlock()
		log.Info().Str("identity", identity.String()).Int("transactions", len(refs)).Msg("player provisioned")
		c.emit(ctx, events.TypePlayerProvisioned, identity, events.PlayerProvisionedPayload{Signatures: sigs})
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("refresh after provisioning failed")
	}
	return err
}

// SetupGame is Provision under the name the game screen uses.
func (c *Controller) SetupGame(ctx context.Context) error {
	return c.Provision(ctx)
}

// RecordSession submits score for the connected identity. A non-positive
// score returns false without touching the network, as does an identity the
// cache knows has no player record. Any submission, whether it lands or not,
// is followed by a refresh.
func (c *Controller) RecordSession(ctx context.Context, sessionID string, score int64) (bool, error) {
	if score <= 0 {
		log.Debug().Int64("score", score).Msg("ignoring non-positive score")
		return false, nil
	}
	capability, gen, err := c.ready()
	if err != nil {
		return false, err
	}
	identity := capability.Address()

	// A cache that has loaded at least once and shows no player record is
	// trusted; the ledger would reject the submission anyway.
	c.mu.RLock()
	absent := !c.updatedAt.IsZero() && !c.playerExists
	c.mu.RUnlock()
	if absent {
		err := fmt.Errorf("%w: no player record for %s", ledger.ErrNotInitialized, identity)
		log.Warn().Str("identity", identity.String()).Int64("score", score).Msg("score submitted before player creation")
		c.fail(gen, err)
		c.emit(ctx, events.TypeScoreRejected, identity, events.ScoreRejectedPayload{
			SessionID: sessionID,
			Score:     score,
			Reason:    err.Error(),
		})
		c.notify()
		return false, err
	}

	if !c.acquire(identity) {
		return false, ErrOperationInFlight
	}
	defer c.release(identity)

	c.startLoading()
	defer c.stopLoading()

	opCtx, cancel := c.withTimeout(ctx)
	ref, err := c.ledger.SubmitScore(opCtx, capability, score)
	cancel()

	if err != nil {
		err = remoteErr(err)
		log.Error().Err(err).
			Str("identity", identity.String()).
			Int64("score", score).
			Msg("score submission failed")
		c.fail(gen, err)
		c.emit(ctx, events.TypeScoreRejected, identity, events.ScoreRejectedPayload{
			SessionID: sessionID,
			Score:     score,
			Reason:    err.Error(),
		})
	} else {
		c.mu.Lock()
		if c.generation == gen {
			c.lastSig = ref.Signature
		}
		c.mu.Unlock()
	}

	if rerr := c.Refresh(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("refresh after score submission failed")
	}
	if err != nil {
		return false, err
	}

	payload := events.ScoreRecordedPayload{
		SessionID: sessionID,
		Score:     score,
		Signature: ref.Signature.String(),
		Slot:      ref.Slot,
	}
	if p := c.Snapshot().Player; p != nil {
		payload.HighScore = p.HighScore
	}
	log.Info().
		Str("identity", identity.String()).
		Int64("score", score).
		Str("signature", ref.Signature.String()).
		Msg("score recorded")
	c.emit(ctx, events.TypeScoreRecorded, identity, payload)
	return true, nil
}

// Refresh re-reads the global state, the player record and the full player
// set in parallel. A failed read keeps the previously cached value.
func (c *Controller) Refresh(ctx context.Context) error {
	capability, gen, err := c.ready()
	if err != nil {
		return err
	}
	identity := capability.Address()

	c.startLoading()
	defer c.stopLoading()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		global     *ledger.GlobalState
		player     *ledger.PlayerRecord
		players    []ledger.PlayerRecord
		globalErr  error
		playerErr  error
		playersErr error
	)
	// A plain Group so one failed read does not cancel its siblings; each
	// result is applied on its own below.
	var g errgroup.Group
	g.Go(func() error {
		global, globalErr = c.ledger.ReadGlobalState(ctx)
		return globalErr
	})
	g.Go(func() error {
		player, playerErr = c.ledger.ReadPlayer(ctx, identity)
		return playerErr
	})
	g.Go(func() error {
		players, playersErr = c.ledger.ListPlayers(ctx)
		return playersErr
	})

	var readErr error
	if err := g.Wait(); err != nil {
		readErr = remoteErr(errors.Join(globalErr, playerErr, playersErr))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil
	}
	if globalErr == nil {
		c.global = global
	}
	if playerErr == nil {
		c.player = player
		c.playerExists = player != nil
	}
	if playersErr == nil {
		c.players = players
	}
	if readErr != nil {
		c.err = readErr
	} else {
		c.updatedAt = c.clock.Now()
	}
	total := len(c.players)
	rank, _ := leaderboard.RankOf(c.players, identity)
	c.mu.Unlock()

	if readErr != nil {
		log.Warn().Err(readErr).Str("identity", identity.String()).Msg("ledger refresh incomplete")
		return readErr
	}
	if playersErr == nil {
		c.emit(ctx, events.TypeLeaderboardUpdated, identity, events.LeaderboardUpdatedPayload{
			Players:  total,
			YourRank: rank,
		})
	}
	return nil
}

// Run polls the session and the ledger until ctx is done. Account
// notifications delivered through Wake cut the wait short.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		case <-c.wakeCh:
		}
		c.poll(ctx)
	}
}

func (c *Controller) poll(ctx context.Context) {
	if err := c.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("session sync failed")
		return
	}
	if c.Status() != Ready {
		return
	}
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Debug().Err(err).Msg("periodic refresh failed")
	}
}

// Wake schedules a refresh on the Run loop.
func (c *Controller) Wake() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// WatchAccounts wakes the Run loop whenever the global state account changes.
// It blocks until ctx is done or the subscription fails.
func (c *Controller) WatchAccounts(ctx context.Context, watcher ledger.AccountWatcher) error {
	addr := c.ledger.GlobalAddress()
	log.Info().Str("account", addr.String()).Msg("watching global state")
	return watcher.WatchAccount(ctx, addr, func(slot uint64) {
		log.Debug().Uint64("slot", slot).Msg("global state changed")
		c.Wake()
	})
}

func (c *Controller) emit(ctx context.Context, eventType string, identity ledger.Address, payload any) {
	ev, err := events.New(eventType, identity.String(), c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
