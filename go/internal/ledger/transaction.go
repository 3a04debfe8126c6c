package ledger

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrMissingSignature     = errors.New("missing signature")
	ErrBadSignature         = errors.New("signature verification failed")
	ErrNotSigner            = errors.New("address is not a required signer")
)

type (
	// Hash is a recent blockhash.
	Hash = solana.Hash
	// Signature is an ed25519 signature; the first one of a transaction is its id.
	Signature = solana.Signature
	// Instruction is one program call ready to be compiled into a message.
	Instruction = solana.Instruction
)

// Transaction is a legacy transaction with one signature slot per required
// signer. Unfilled slots hold the zero signature.
type Transaction struct {
	*solana.Transaction
}

// NewTransaction compiles instructions into a legacy message paid for by payer.
func NewTransaction(payer Address, blockhash Hash, instructions ...Instruction) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrMalformedTransaction)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}
	tx.Signatures = make([]Signature, tx.Message.Header.NumRequiredSignatures)
	return &Transaction{Transaction: tx}, nil
}

// DecodeTransaction parses a wire transaction and checks that every index in
// its message points at an account key.
func DecodeTransaction(b []byte) (*Transaction, error) {
	dec := bin.NewBinDecoder(b)
	tx, err := solana.TransactionFromDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}
	if dec.HasRemaining() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, dec.Remaining())
	}

	msg := &tx.Message
	keys := len(msg.AccountKeys)
	if int(msg.Header.NumRequiredSignatures) > keys {
		return nil, fmt.Errorf("%w: more signers than keys", ErrMalformedTransaction)
	}
	for _, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= keys {
			return nil, fmt.Errorf("%w: program index out of range", ErrMalformedTransaction)
		}
		for _, a := range ix.Accounts {
			if int(a) >= keys {
				return nil, fmt.Errorf("%w: account index out of range", ErrMalformedTransaction)
			}
		}
	}
	return &Transaction{Transaction: tx}, nil
}

// ID is the first signature, used to track the transaction.
func (t *Transaction) ID() Signature {
	if len(t.Signatures) == 0 {
		return Signature{}
	}
	return t.Signatures[0]
}

// Signers returns the addresses whose signatures the message requires.
func (t *Transaction) Signers() []Address {
	return t.Message.AccountKeys[:t.Message.Header.NumRequiredSignatures]
}

// AddSignature places sig in the slot that belongs to signer.
func (t *Transaction) AddSignature(signer Address, sig Signature) error {
	for i, k := range t.Signers() {
		if k == signer {
			t.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotSigner, signer)
}

// Sign signs the message with key, whose public half must be a required signer.
func (t *Transaction) Sign(key solana.PrivateKey) error {
	signer := key.PublicKey()
	if !t.IsSigner(signer) {
		return fmt.Errorf("%w: %s", ErrNotSigner, signer)
	}
	_, err := t.PartialSign(func(k solana.PublicKey) *solana.PrivateKey {
		if k == signer {
			return &key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedTransaction, err)
	}
	return nil
}

// VerifySignatures checks that every required signer has signed the message.
func (t *Transaction) VerifySignatures() error {
	signers := t.Signers()
	if len(t.Signatures) != len(signers) {
		return fmt.Errorf("%w: have %d signatures for %d signers", ErrMalformedTransaction, len(t.Signatures), len(signers))
	}
	for i, sig := range t.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSignature, signers[i])
		}
	}
	if err := t.Transaction.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return nil
}

// MarshalBinary encodes the wire transaction. Every signature slot must be filled.
func (t *Transaction) MarshalBinary() ([]byte, error) {
	if len(t.Signatures) != int(t.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("%w: signature count mismatch", ErrMalformedTransaction)
	}
	for i, sig := range t.Signatures {
		if sig.IsZero() {
			return nil, fmt.Errorf("%w: %s", ErrMissingSignature, t.Message.AccountKeys[i])
		}
	}
	return t.Transaction.MarshalBinary()
}
