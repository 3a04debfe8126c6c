package ledger_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/ledger/localnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var programID = ledger.MustParseAddress("CTvpChrJqAhxAPQPMU2pJk8RcnzLwTJ5s7BJHftzS7vZ")

type keySigner struct {
	key        solana.PrivateKey
	addr       ledger.Address
	batchCalls int
}

func newSigner(fill byte) *keySigner {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	return &keySigner{key: key, addr: key.PublicKey()}
}

func (s *keySigner) Address() ledger.Address { return s.addr }

func (s *keySigner) SignTransaction(_ context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	return tx, tx.Sign(s.key)
}

func (s *keySigner) SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.Transaction, error) {
	s.batchCalls++
	for _, tx := range txs {
		if _, err := s.SignTransaction(ctx, tx); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func setup(t *testing.T) (*ledger.Client, *localnet.Validator, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	v, err := localnet.New(programID, localnet.WithClock(clock))
	require.NoError(t, err)
	c, err := ledger.NewClient(v, programID, ledger.WithClock(clock))
	require.NoError(t, err)
	return c, v, clock
}

func TestInitializeAndCreatePlayerAreIdempotent(t *testing.T) {
	ctx := context.Background()
	c, v, _ := setup(t)
	signer := newSigner(1)

	gs, err := c.ReadGlobalState(ctx)
	require.NoError(t, err)
	assert.Nil(t, gs)

	ref, err := c.InitializeGlobalState(ctx, signer)
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.NotZero(t, ref.Slot)

	ref, err = c.InitializeGlobalState(ctx, signer)
	require.NoError(t, err)
	assert.Nil(t, ref)

	ref, err = c.CreatePlayer(ctx, signer)
	require.NoError(t, err)
	require.NotNil(t, ref)

	ref, err = c.CreatePlayer(ctx, signer)
	require.NoError(t, err)
	assert.Nil(t, ref)

	assert.Equal(t, 2, v.Calls(localnet.MethodSendTransaction))

	gs, err = c.ReadGlobalState(ctx)
	require.NoError(t, err)
	require.NotNil(t, gs)
	assert.Equal(t, signer.Address(), gs.Authority)
	assert.Equal(t, uint64(1), gs.TotalPlayers)
	assert.Nil(t, gs.TopPlayer)

	exists, err := c.Exists(ctx, c.GlobalAddress())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreatePlayerBeforeInitialize(t *testing.T) {
	c, _, _ := setup(t)
	_, err := c.CreatePlayer(context.Background(), newSigner(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)
}

func TestProvisionSignsOnceAndSkipsSatisfiedSteps(t *testing.T) {
	ctx := context.Background()
	c, v, _ := setup(t)
	alice, bob := newSigner(1), newSigner(2)

	refs, err := c.Provision(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, 1, alice.batchCalls)

	refs, err = c.Provision(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, refs, 1)

	sends := v.Calls(localnet.MethodSendTransaction)
	refs, err = c.Provision(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, sends, v.Calls(localnet.MethodSendTransaction))

	gs, err := c.ReadGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gs.TotalPlayers)
}

func TestSubmitScore(t *testing.T) {
	ctx := context.Background()
	c, v, clock := setup(t)
	alice, bob := newSigner(1), newSigner(2)
	_, err := c.Provision(ctx, alice)
	require.NoError(t, err)
	_, err = c.Provision(ctx, bob)
	require.NoError(t, err)

	for _, score := range []int64{10, 30, 20} {
		clock.Advance(time.Minute)
		_, err := c.SubmitScore(ctx, alice, score)
		require.NoError(t, err)
	}
	_, err = c.SubmitScore(ctx, bob, 25)
	require.NoError(t, err)

	p, err := c.ReadPlayer(ctx, alice.Address())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, uint64(30), p.HighScore)
	assert.Equal(t, uint64(3), p.TotalGames)
	assert.Equal(t, clock.Now().Unix(), p.LastPlayed)

	gs, err := c.ReadGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), gs.TotalGames)
	assert.Equal(t, uint64(30), gs.TopScore)
	require.NotNil(t, gs.TopPlayer)
	assert.Equal(t, alice.Address(), *gs.TopPlayer)

	players, err := c.ListPlayers(ctx)
	require.NoError(t, err)
	assert.Len(t, players, 2)

	before := v.TotalCalls()
	for _, bad := range []int64{0, -5} {
		_, err = c.SubmitScore(ctx, alice, bad)
		assert.ErrorIs(t, err, ledger.ErrInvalidScore)
	}
	assert.Equal(t, before, v.TotalCalls())
}

func TestSubmitScoreWithoutPlayer(t *testing.T) {
	ctx := context.Background()
	c, _, _ := setup(t)
	alice := newSigner(1)
	_, err := c.InitializeGlobalState(ctx, alice)
	require.NoError(t, err)

	_, err = c.SubmitScore(ctx, alice, 5)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)

	p, err := c.ReadPlayer(ctx, alice.Address())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRemoteFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	c, v, _ := setup(t)
	outage := errors.New("connection refused")

	v.FailNext(localnet.MethodGetAccountInfo, ledgerUnavailable(outage))
	_, err := c.ReadGlobalState(ctx)
	assert.ErrorIs(t, err, ledger.ErrRemoteUnavailable)

	v.FailNext(localnet.MethodGetLatestBlockhash, ledgerUnavailable(outage))
	_, err = c.InitializeGlobalState(ctx, newSigner(1))
	assert.ErrorIs(t, err, ledger.ErrRemoteUnavailable)
	assert.Equal(t, 0, v.Calls(localnet.MethodSendTransaction))
}

func TestConfirmationTimesOut(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	v, err := localnet.New(programID, localnet.WithClock(clock))
	require.NoError(t, err)
	c, err := ledger.NewClient(&unconfirmed{Validator: v}, programID,
		ledger.WithClock(clock), ledger.WithConfirmation(2*time.Second, time.Second))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.InitializeGlobalState(ctx, newSigner(1))
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)
	}
	err = <-errCh
	assert.ErrorIs(t, err, ledger.ErrRemoteUnavailable)
}

// unconfirmed hides every signature status so confirmation never completes.
type unconfirmed struct {
	*localnet.Validator
}

func (u *unconfirmed) GetSignatureStatus(context.Context, ledger.Signature) (*ledger.SignatureStatus, error) {
	return nil, nil
}

func ledgerUnavailable(err error) error {
	return errors.Join(ledger.ErrRemoteUnavailable, err)
}
