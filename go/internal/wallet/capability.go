package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedWallet = errors.New("wallet cannot sign transactions")
	ErrInvalidKeypair    = errors.New("invalid keypair")
)

// Wallet is anything that exposes a public key. What else it can do is
// discovered once, when a Capability is built from it.
type Wallet interface {
	PublicKey() ledger.Address
}

// TransactionSigner signs a single transaction.
type TransactionSigner interface {
	SignTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error)
}

// BatchSigner signs several transactions in one request.
type BatchSigner interface {
	SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.Transaction, error)
}

// Mode records how batch signing is carried out.
type Mode int

const (
	// NativeBatch wallets sign batches themselves.
	NativeBatch Mode = iota + 1
	// SynthesizedBatch wallets only sign one at a time; batches are signed in order.
	SynthesizedBatch
)

func (m Mode) String() string {
	switch m {
	case NativeBatch:
		return "native_batch"
	case SynthesizedBatch:
		return "synthesized_batch"
	}
	return "unknown"
}

// Capability is a normalized signing identity. It satisfies ledger.Signer.
type Capability struct {
	address ledger.Address
	mode    Mode
	single  TransactionSigner
	batch   BatchSigner
}

var _ ledger.Signer = (*Capability)(nil)

// NewCapability resolves what w can do. A nil wallet yields a nil capability
// and no error: being disconnected is a normal state.
func NewCapability(w Wallet) (*Capability, error) {
	if w == nil {
		return nil, nil
	}

	c := &Capability{address: w.PublicKey()}
	single, hasSingle := w.(TransactionSigner)
	batch, hasBatch := w.(BatchSigner)

	switch {
	case hasBatch:
		c.mode = NativeBatch
		c.batch = batch
		if hasSingle {
			c.single = single
		}
	case hasSingle:
		c.mode = SynthesizedBatch
		c.single = single
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWallet, c.address)
	}

	log.Debug().
		Str("identity", c.address.String()).
		Stringer("mode", c.mode).
		Msg("wallet capability resolved")
	return c, nil
}

func (c *Capability) Address() ledger.Address { return c.address }

func (c *Capability) Mode() Mode { return c.mode }

func (c *Capability) SignTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	if c.single != nil {
		return c.single.SignTransaction(ctx, tx)
	}
	signed, err := c.batch.SignAllTransactions(ctx, []*ledger.Transaction{tx})
	if err != nil {
		return nil, err
	}
	if len(signed) != 1 {
		return nil, fmt.Errorf("wallet returned %d transactions for 1", len(signed))
	}
	return signed[0], nil
}

// SignAllTransactions returns the signed transactions in input order.
func (c *Capability) SignAllTransactions(ctx context.Context, txs []*ledger.Transaction) ([]*ledger.Transaction, error) {
	if c.mode == NativeBatch {
		return c.batch.SignAllTransactions(ctx, txs)
	}

	out := make([]*ledger.Transaction, len(txs))
	for i, tx := range txs {
		signed, err := c.single.SignTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("sign transaction %d of %d: %w", i+1, len(txs), err)
		}
		out[i] = signed
	}
	return out, nil
}
