package localnet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var programID = ledger.MustParseAddress("CTvpChrJqAhxAPQPMU2pJk8RcnzLwTJ5s7BJHftzS7vZ")

func newKey(fill byte) (solana.PrivateKey, ledger.Address) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	return key, key.PublicKey()
}

func sendSigned(t *testing.T, v *Validator, key solana.PrivateKey, payer ledger.Address, ixs ...ledger.Instruction) error {
	t.Helper()
	ctx := context.Background()
	bh, err := v.GetLatestBlockhash(ctx)
	require.NoError(t, err)
	tx, err := ledger.NewTransaction(payer, bh, ixs...)
	require.NoError(t, err)
	require.NoError(t, tx.Sign(key))
	_, err = v.SendTransaction(ctx, tx)
	return err
}

func TestProgramRules(t *testing.T) {
	v, err := New(programID)
	require.NoError(t, err)
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	key, authority := newKey(1)

	require.NoError(t, sendSigned(t, v, key, authority, p.Initialize(authority)))

	err = sendSigned(t, v, key, authority, p.Initialize(authority))
	var pe *ledger.ProgramError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ledger.CodeAccountAlreadyInUse, pe.Code)

	create, err := p.CreatePlayer(authority)
	require.NoError(t, err)
	require.NoError(t, sendSigned(t, v, key, authority, create))

	zero, err := p.SubmitScore(authority, 0)
	require.NoError(t, err)
	err = sendSigned(t, v, key, authority, zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidScore)

	// submitting for somebody else's player account breaks the seeds constraint
	_, stranger := newKey(2)
	other, err := p.SubmitScore(stranger, 5)
	require.NoError(t, err)
	other.AccountValues[2] = solana.Meta(authority).SIGNER()
	err = sendSigned(t, v, key, authority, other)
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ledger.CodeConstraintSeeds, pe.Code)
}

func TestTransactionsAreAtomic(t *testing.T) {
	v, err := New(programID)
	require.NoError(t, err)
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	key, authority := newKey(1)

	score, err := p.SubmitScore(authority, 5)
	require.NoError(t, err)
	// initialize succeeds, submit fails because the player is missing
	err = sendSigned(t, v, key, authority, p.Initialize(authority), score)
	assert.ErrorIs(t, err, ledger.ErrNotInitialized)

	global, _ := p.GlobalAddress()
	assert.Nil(t, v.Account(global))
}

func TestRejectsBadSignaturesAndStaleBlockhash(t *testing.T) {
	ctx := context.Background()
	v, err := New(programID)
	require.NoError(t, err)
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	_, authority := newKey(1)
	wrongKey, _ := newKey(2)

	bh, err := v.GetLatestBlockhash(ctx)
	require.NoError(t, err)
	tx, err := ledger.NewTransaction(authority, bh, p.Initialize(authority))
	require.NoError(t, err)
	_, err = v.SendTransaction(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sig, err := wrongKey.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, tx.AddSignature(authority, sig))

	_, err = v.SendTransaction(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrBadSignature)

	key, _ := newKey(1)
	stale, err := ledger.NewTransaction(authority, ledger.Hash{1}, p.Initialize(authority))
	require.NoError(t, err)
	require.NoError(t, stale.Sign(key))
	_, err = v.SendTransaction(ctx, stale)
	assert.ErrorIs(t, err, ErrBlockhashNotFound)
}

func TestFailureInjectionAndCounters(t *testing.T) {
	ctx := context.Background()
	v, err := New(programID)
	require.NoError(t, err)
	boom := errors.New("boom")

	v.FailNext(MethodGetAccountInfo, boom)
	_, err = v.GetAccountInfo(ctx, programID)
	assert.ErrorIs(t, err, boom)

	data, err := v.GetAccountInfo(ctx, programID)
	require.NoError(t, err)
	assert.Nil(t, data)

	assert.Equal(t, 2, v.Calls(MethodGetAccountInfo))
	assert.Equal(t, 2, v.TotalCalls())
}

func TestWatchAccount(t *testing.T) {
	v, err := New(programID)
	require.NoError(t, err)
	p, err := ledger.NewProgram(programID)
	require.NoError(t, err)
	key, authority := newKey(1)
	global, _ := p.GlobalAddress()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slots := make(chan uint64, 1)
	registered := make(chan struct{})
	go func() {
		_ = v.WatchAccount(ctx, global, func(slot uint64) { slots <- slot })
	}()
	go func() {
		// wait until the watcher is registered before writing
		for {
			v.mu.Lock()
			n := len(v.watchers[global])
			v.mu.Unlock()
			if n > 0 {
				close(registered)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	<-registered

	require.NoError(t, sendSigned(t, v, key, authority, p.Initialize(authority)))
	select {
	case slot := <-slots:
		assert.NotZero(t, slot)
	case <-ctx.Done():
		t.Fatal("no notification")
	}
}
