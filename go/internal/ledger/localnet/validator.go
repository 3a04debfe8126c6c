// Package localnet runs the tap-to-win program in process. It executes the
// same encoded transactions a cluster would, which makes it the ledger used
// by tests and by --localnet development runs.
package localnet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/rs/zerolog/log"
)

const (
	MethodGetAccountInfo     = "getAccountInfo"
	MethodGetProgramAccounts = "getProgramAccounts"
	MethodGetLatestBlockhash = "getLatestBlockhash"
	MethodSendTransaction    = "sendTransaction"
	MethodGetSignatureStatus = "getSignatureStatuses"
)

var ErrBlockhashNotFound = errors.New("blockhash not found")

// Validator is an in-memory ledger implementing ledger.RPC.
type Validator struct {
	program *ledger.Program
	clock   clockwork.Clock

	mu          sync.Mutex
	slot        uint64
	accounts    map[ledger.Address][]byte
	blockhashes map[ledger.Hash]bool
	statuses    map[ledger.Signature]*ledger.SignatureStatus
	calls       map[string]int
	failures    map[string][]error
	watchers    map[ledger.Address][]chan uint64
}

type Option func(*Validator)

func WithClock(clock clockwork.Clock) Option {
	return func(v *Validator) { v.clock = clock }
}

func New(programID ledger.Address, opts ...Option) (*Validator, error) {
	program, err := ledger.NewProgram(programID)
	if err != nil {
		return nil, err
	}
	v := &Validator{
		program:     program,
		clock:       clockwork.NewRealClock(),
		accounts:    make(map[ledger.Address][]byte),
		blockhashes: make(map[ledger.Hash]bool),
		statuses:    make(map[ledger.Signature]*ledger.SignatureStatus),
		calls:       make(map[string]int),
		failures:    make(map[string][]error),
		watchers:    make(map[ledger.Address][]chan uint64),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Calls returns how many times method has been invoked.
func (v *Validator) Calls(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[method]
}

// TotalCalls returns the number of invocations across all methods.
func (v *Validator) TotalCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		n += c
	}
	return n
}

// FailNext makes the next call of method return err instead of executing.
// Multiple injected errors are consumed in order.
func (v *Validator) FailNext(method string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[method] = append(v.failures[method], err)
}

// Account returns a copy of the raw account data at addr.
func (v *Validator) Account(addr ledger.Address) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	data, ok := v.accounts[addr]
	if !ok {
		return nil
	}
	return append([]byte(nil), data...)
}

// begin counts the call and pops an injected failure. Callers hold mu.
func (v *Validator) begin(method string) error {
	v.calls[method]++
	if queued := v.failures[method]; len(queued) > 0 {
		v.failures[method] = queued[1:]
		return queued[0]
	}
	return nil
}

func (v *Validator) GetAccountInfo(_ context.Context, addr ledger.Address) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.begin(MethodGetAccountInfo); err != nil {
		return nil, err
	}
	data, ok := v.accounts[addr]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (v *Validator) GetProgramAccounts(_ context.Context, programID ledger.Address, disc bin.TypeID) ([]ledger.ProgramAccount, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.begin(MethodGetProgramAccounts); err != nil {
		return nil, err
	}
	if programID != v.program.ID() {
		return nil, nil
	}
	var out []ledger.ProgramAccount
	for addr, data := range v.accounts {
		if len(data) >= 8 && bin.TypeID(data[:8]) == disc {
			out = append(out, ledger.ProgramAccount{Address: addr, Data: append([]byte(nil), data...)})
		}
	}
	return out, nil
}

// GetLatestBlockhash advances the slot and hands out a fresh blockhash.
func (v *Validator) GetLatestBlockhash(_ context.Context) (ledger.Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.begin(MethodGetLatestBlockhash); err != nil {
		return ledger.Hash{}, err
	}
	v.slot++
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], v.slot)
	h := ledger.Hash(sha256.Sum256(seed[:]))
	v.blockhashes[h] = true
	return h, nil
}

// SendTransaction encodes tx to its wire form, decodes it back, then verifies
// and executes it atomically. Execution failures are returned directly, like a
// failed preflight simulation.
func (v *Validator) SendTransaction(_ context.Context, sent *ledger.Transaction) (ledger.Signature, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.begin(MethodSendTransaction); err != nil {
		return ledger.Signature{}, err
	}

	raw, err := sent.MarshalBinary()
	if err != nil {
		return ledger.Signature{}, fmt.Errorf("%w: %w", ledger.ErrProgram, err)
	}
	tx, err := ledger.DecodeTransaction(raw)
	if err != nil {
		return ledger.Signature{}, fmt.Errorf("%w: %w", ledger.ErrProgram, err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return ledger.Signature{}, fmt.Errorf("%w: %w", ledger.ErrProgram, err)
	}
	if !v.blockhashes[tx.Message.RecentBlockhash] {
		return ledger.Signature{}, fmt.Errorf("%w: %w", ledger.ErrProgram, ErrBlockhashNotFound)
	}
	sig := tx.ID()
	if _, seen := v.statuses[sig]; seen {
		return ledger.Signature{}, fmt.Errorf("%w: transaction %s already processed", ledger.ErrProgram, sig)
	}

	v.slot++
	writes, err := v.execute(&tx.Message)
	if err != nil {
		log.Debug().Err(err).Str("signature", sig.String()).Msg("localnet transaction failed")
		return ledger.Signature{}, err
	}
	for addr, data := range writes {
		v.accounts[addr] = data
		v.notify(addr)
	}
	v.statuses[sig] = &ledger.SignatureStatus{Slot: v.slot, Confirmed: true}
	return sig, nil
}

func (v *Validator) GetSignatureStatus(_ context.Context, sig ledger.Signature) (*ledger.SignatureStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.begin(MethodGetSignatureStatus); err != nil {
		return nil, err
	}
	st, ok := v.statuses[sig]
	if !ok {
		return nil, nil
	}
	out := *st
	return &out, nil
}

// WatchAccount calls fn with the slot of every write to addr until ctx ends.
func (v *Validator) WatchAccount(ctx context.Context, addr ledger.Address, fn func(slot uint64)) error {
	ch := make(chan uint64, 16)
	v.mu.Lock()
	v.watchers[addr] = append(v.watchers[addr], ch)
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		list := v.watchers[addr]
		for i, c := range list {
			if c == ch {
				v.watchers[addr] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case slot := <-ch:
			fn(slot)
		}
	}
}

// notify must be called with mu held; slow watchers drop notifications.
func (v *Validator) notify(addr ledger.Address) {
	for _, ch := range v.watchers[addr] {
		select {
		case ch <- v.slot:
		default:
		}
	}
}
