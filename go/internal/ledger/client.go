package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	defaultConfirmTimeout = 30 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// Signer is a signing identity able to sign one or many transactions.
type Signer interface {
	Address() Address
	SignTransaction(ctx context.Context, tx *Transaction) (*Transaction, error)
	SignAllTransactions(ctx context.Context, txs []*Transaction) ([]*Transaction, error)
}

// TxRef identifies a confirmed transaction.
type TxRef struct {
	Signature Signature `json:"signature"`
	Slot      uint64    `json:"slot"`
}

// Client is a typed facade over the tap-to-win program.
type Client struct {
	rpc     RPC
	program *Program
	clock   clockwork.Clock

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

type Option func(*Client)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithConfirmation sets how long and how often signatures are polled.
func WithConfirmation(timeout, interval time.Duration) Option {
	return func(c *Client) {
		c.confirmTimeout = timeout
		c.pollInterval = interval
	}
}

func NewClient(rpc RPC, programID Address, opts ...Option) (*Client, error) {
	program, err := NewProgram(programID)
	if err != nil {
		return nil, err
	}
	c := &Client{
		rpc:            rpc,
		program:        program,
		clock:          clockwork.NewRealClock(),
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Program() *Program { return c.program }

func (c *Client) GlobalAddress() Address {
	addr, _ := c.program.GlobalAddress()
	return addr
}

func (c *Client) PlayerAddress(identity Address) (Address, error) {
	addr, _, err := c.program.PlayerAddress(identity)
	return addr, err
}

// Exists reports whether an account is present at addr.
func (c *Client) Exists(ctx context.Context, addr Address) (bool, error) {
	data, err := c.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", addr, err)
	}
	return data != nil, nil
}

// InitializeGlobalState returns nil without sending anything when the global
// record already exists.
func (c *Client) InitializeGlobalState(ctx context.Context, signer Signer) (*TxRef, error) {
	exists, err := c.Exists(ctx, c.GlobalAddress())
	if err != nil {
		return nil, err
	}
	if exists {
		log.Debug().Msg("game state already initialized")
		return nil, nil
	}
	return c.send(ctx, signer, c.program.Initialize(signer.Address()))
}

// CreatePlayer returns nil without sending anything when the signer's player
// record already exists.
func (c *Client) CreatePlayer(ctx context.Context, signer Signer) (*TxRef, error) {
	ix, err := c.program.CreatePlayer(signer.Address())
	if err != nil {
		return nil, err
	}
	exists, err := c.Exists(ctx, ix.AccountValues[0].PublicKey)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Debug().Str("identity", signer.Address().String()).Msg("player already exists")
		return nil, nil
	}
	return c.send(ctx, signer, ix)
}

// Provision creates whichever of the global and player records are missing.
// Both transactions are signed in one batch and sent in order, so a wallet
// prompts once. It returns the refs of the transactions actually sent.
func (c *Client) Provision(ctx context.Context, signer Signer) ([]TxRef, error) {
	var pending []Instruction

	globalExists, err := c.Exists(ctx, c.GlobalAddress())
	if err != nil {
		return nil, err
	}
	if !globalExists {
		pending = append(pending, c.program.Initialize(signer.Address()))
	}

	createIx, err := c.program.CreatePlayer(signer.Address())
	if err != nil {
		return nil, err
	}
	playerExists, err := c.Exists(ctx, createIx.AccountValues[0].PublicKey)
	if err != nil {
		return nil, err
	}
	if !playerExists {
		pending = append(pending, createIx)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}
	txs := make([]*Transaction, 0, len(pending))
	for _, ix := range pending {
		tx, err := NewTransaction(signer.Address(), blockhash, ix)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	signed, err := signer.SignAllTransactions(ctx, txs)
	if err != nil {
		return nil, fmt.Errorf("sign transactions: %w", err)
	}
	if len(signed) != len(txs) {
		return nil, fmt.Errorf("sign transactions: wallet returned %d of %d", len(signed), len(txs))
	}

	refs := make([]TxRef, 0, len(signed))
	for _, tx := range signed {
		ref, err := c.submit(ctx, tx)
		if err != nil {
			return refs, err
		}
		refs = append(refs, *ref)
	}
	return refs, nil
}

// SubmitScore records a finished game for the signer. Non-positive scores are
// rejected before any network call.
func (c *Client) SubmitScore(ctx context.Context, signer Signer, score int64) (*TxRef, error) {
	if score <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidScore, score)
	}
	ix, err := c.program.SubmitScore(signer.Address(), uint64(score))
	if err != nil {
		return nil, err
	}
	return c.send(ctx, signer, ix)
}

// ReadGlobalState returns nil when the game has not been initialized.
func (c *Client) ReadGlobalState(ctx context.Context) (*GlobalState, error) {
	data, err := c.rpc.GetAccountInfo(ctx, c.GlobalAddress())
	if err != nil {
		return nil, fmt.Errorf("read game state: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var gs GlobalState
	if err := gs.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &gs, nil
}

// ReadPlayer returns nil when identity has no player record.
func (c *Client) ReadPlayer(ctx context.Context, identity Address) (*PlayerRecord, error) {
	addr, err := c.PlayerAddress(identity)
	if err != nil {
		return nil, err
	}
	data, err := c.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read player %s: %w", identity, err)
	}
	if data == nil {
		return nil, nil
	}
	var p PlayerRecord
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlayers returns every player record in no particular order. Records
// that fail to decode are skipped.
func (c *Client) ListPlayers(ctx context.Context) ([]PlayerRecord, error) {
	accounts, err := c.rpc.GetProgramAccounts(ctx, c.program.ID(), PlayerDiscriminator)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]PlayerRecord, 0, len(accounts))
	for _, acct := range accounts {
		var p PlayerRecord
		if err := p.UnmarshalBinary(acct.Data); err != nil {
			log.Warn().Err(err).Str("account", acct.Address.String()).Msg("skipping undecodable player account")
			continue
		}
		players = append(players, p)
	}
	return players, nil
}

func (c *Client) send(ctx context.Context, signer Signer, ix Instruction) (*TxRef, error) {
	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}
	tx, err := NewTransaction(signer.Address(), blockhash, ix)
	if err != nil {
		return nil, err
	}
	signed, err := signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return c.submit(ctx, signed)
}

func (c *Client) submit(ctx context.Context, tx *Transaction) (*TxRef, error) {
	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	log.Debug().Str("signature", sig.String()).Msg("transaction sent")
	return c.confirm(ctx, sig)
}

// confirm polls the signature until it is confirmed, fails, or times out.
func (c *Client) confirm(ctx context.Context, sig Signature) (*TxRef, error) {
	deadline := c.clock.Now().Add(c.confirmTimeout)
	for {
		st, err := c.rpc.GetSignatureStatus(ctx, sig)
		if err != nil {
			return nil, fmt.Errorf("confirm %s: %w", sig, err)
		}
		if st != nil {
			if st.Err != nil {
				return nil, fmt.Errorf("transaction %s: %w", sig, st.Err)
			}
			if st.Confirmed {
				return &TxRef{Signature: sig, Slot: st.Slot}, nil
			}
		}
		if !c.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: transaction %s not confirmed after %s", ErrRemoteUnavailable, sig, c.confirmTimeout)
		}

		select {
		case <-ctx.Done():
			err := ctx.Err()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: confirm %s: %w", ErrRemoteUnavailable, sig, err)
			}
			return nil, err
		case <-c.clock.After(c.pollInterval):
		}
	}
}
