package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T, fill byte) (solana.PrivateKey, Address) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = fill
	}
	key := solana.PrivateKey(ed25519.NewKeyFromSeed(seed))
	return key, key.PublicKey()
}

func TestNewTransactionOrdersKeys(t *testing.T) {
	p, err := NewProgram(MustParseAddress(testProgramID))
	require.NoError(t, err)
	_, payer := newKey(t, 1)

	ix, err := p.CreatePlayer(payer)
	require.NoError(t, err)
	tx, err := NewTransaction(payer, Hash{9}, ix)
	require.NoError(t, err)

	player, _, err := p.PlayerAddress(payer)
	require.NoError(t, err)
	global, _ := p.GlobalAddress()

	msg := &tx.Message
	assert.Equal(t, solana.MessageHeader{
		NumRequiredSignatures:       1,
		NumReadonlySignedAccounts:   0,
		NumReadonlyUnsignedAccounts: 2,
	}, msg.Header)
	assert.Equal(t, solana.PublicKeySlice{payer, player, global, SystemProgramID, p.ID()}, msg.AccountKeys)
	require.Len(t, msg.Instructions, 1)
	assert.Equal(t, uint16(4), msg.Instructions[0].ProgramIDIndex)
	assert.Equal(t, []uint16{1, 2, 0, 3}, msg.Instructions[0].Accounts)

	assert.True(t, msg.IsWritableStatic(payer))
	assert.True(t, msg.IsWritableStatic(global))
	assert.False(t, msg.IsWritableStatic(SystemProgramID))
	assert.True(t, msg.IsSigner(payer))
	assert.False(t, msg.IsSigner(player))
	assert.Len(t, tx.Signatures, 1)
	assert.Equal(t, []Address{payer}, tx.Signers())
}

func TestReadonlySignerGroup(t *testing.T) {
	_, payer := newKey(t, 1)
	_, cosigner := newKey(t, 2)
	program := MustParseAddress(testProgramID)

	tx, err := NewTransaction(payer, Hash{}, solana.NewInstruction(program,
		solana.AccountMetaSlice{solana.Meta(cosigner).SIGNER()},
		[]byte{1},
	))
	require.NoError(t, err)
	assert.Equal(t, solana.MessageHeader{
		NumRequiredSignatures:       2,
		NumReadonlySignedAccounts:   1,
		NumReadonlyUnsignedAccounts: 1,
	}, tx.Message.Header)
	assert.Equal(t, []Address{payer, cosigner}, tx.Signers())
	assert.False(t, tx.Message.IsWritableStatic(cosigner))
	assert.Len(t, tx.Signatures, 2)
}

func TestSignMarshalDecode(t *testing.T) {
	p, err := NewProgram(MustParseAddress(testProgramID))
	require.NoError(t, err)
	key, payer := newKey(t, 7)

	ix, err := p.SubmitScore(payer, 5)
	require.NoError(t, err)
	tx, err := NewTransaction(payer, Hash{1, 2, 3}, ix)
	require.NoError(t, err)

	_, err = tx.MarshalBinary()
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.ErrorIs(t, tx.VerifySignatures(), ErrMissingSignature)

	require.NoError(t, tx.Sign(key))
	require.NoError(t, tx.VerifySignatures())
	assert.False(t, tx.ID().IsZero())

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(1), raw[0])

	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
	wantMsg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	gotMsg, err := decoded.Message.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, wantMsg, gotMsg)
	require.NoError(t, decoded.VerifySignatures())

	decoded.Message.RecentBlockhash[0] ^= 0xff
	assert.ErrorIs(t, decoded.VerifySignatures(), ErrBadSignature)

	_, err = DecodeTransaction(raw[:len(raw)-1])
	assert.ErrorIs(t, err, ErrMalformedTransaction)
	_, err = DecodeTransaction(append(raw, 0))
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestDecodeRejectsOutOfRangeIndexes(t *testing.T) {
	p, err := NewProgram(MustParseAddress(testProgramID))
	require.NoError(t, err)
	key, payer := newKey(t, 7)

	tx, err := NewTransaction(payer, Hash{4}, p.GetLeaderboardInfo())
	require.NoError(t, err)
	require.NoError(t, tx.Sign(key))

	tx.Message.Instructions[0].Accounts[0] = 9
	raw, err := tx.Transaction.MarshalBinary()
	require.NoError(t, err)
	_, err = DecodeTransaction(raw)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestAddSignature(t *testing.T) {
	key, payer := newKey(t, 3)
	_, stranger := newKey(t, 4)
	tx, err := NewTransaction(payer, Hash{5}, solana.NewInstruction(MustParseAddress(testProgramID), nil, []byte{0}))
	require.NoError(t, err)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	assert.ErrorIs(t, tx.AddSignature(stranger, sig), ErrNotSigner)
	require.NoError(t, tx.AddSignature(payer, sig))
	assert.Equal(t, sig, tx.ID())
	require.NoError(t, tx.VerifySignatures())
}

func TestSignRejectsForeignKey(t *testing.T) {
	_, payer := newKey(t, 1)
	other, _ := newKey(t, 2)
	tx, err := NewTransaction(payer, Hash{}, solana.NewInstruction(MustParseAddress(testProgramID), nil, nil))
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Sign(other), ErrNotSigner)
}

func TestNewTransactionNeedsInstructions(t *testing.T) {
	_, err := NewTransaction(Address{}, Hash{})
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}
