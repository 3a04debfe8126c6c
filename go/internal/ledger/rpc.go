package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/mcdev12/tapchain/go/clients"
	"github.com/mcdev12/tapchain/go/clients/solana_rpc_client"
)

// ProgramAccount is one account owned by the program.
type ProgramAccount struct {
	Address Address
	Data    []byte
}

// SignatureStatus is the processing state of a submitted transaction.
type SignatureStatus struct {
	Slot      uint64
	Confirmed bool
	// Err is non-nil when the transaction executed and failed.
	Err error
}

// RPC is the node surface the client needs. Implementations map transport
// problems to ErrRemoteUnavailable and execution failures to ErrProgram.
type RPC interface {
	// GetAccountInfo returns nil data without error when the account is absent.
	GetAccountInfo(ctx context.Context, addr Address) ([]byte, error)
	GetProgramAccounts(ctx context.Context, programID Address, discriminator bin.TypeID) ([]ProgramAccount, error)
	GetLatestBlockhash(ctx context.Context) (Hash, error)
	SendTransaction(ctx context.Context, tx *Transaction) (Signature, error)
	// GetSignatureStatus returns nil when the signature is not yet known.
	GetSignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error)
}

// AccountWatcher delivers change notifications for an account.
type AccountWatcher interface {
	WatchAccount(ctx context.Context, addr Address, fn func(slot uint64)) error
}

// SolanaRPC adapts the JSON-RPC client to RPC.
type SolanaRPC struct {
	client     *solana_rpc_client.SolanaRPCClient
	subscriber *solana_rpc_client.Subscriber
}

func NewSolanaRPC(client *solana_rpc_client.SolanaRPCClient, subscriber *solana_rpc_client.Subscriber) *SolanaRPC {
	return &SolanaRPC{client: client, subscriber: subscriber}
}

func (s *SolanaRPC) GetAccountInfo(ctx context.Context, addr Address) ([]byte, error) {
	acct, err := s.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, mapRPCError(err)
	}
	if acct == nil {
		return nil, nil
	}
	return acct.Data.GetBinary(), nil
}

func (s *SolanaRPC) GetProgramAccounts(ctx context.Context, programID Address, disc bin.TypeID) ([]ProgramAccount, error) {
	keyed, err := s.client.GetProgramAccounts(ctx, programID, solana_rpc_client.MemcmpFilter(0, disc[:]))
	if err != nil {
		return nil, mapRPCError(err)
	}

	out := make([]ProgramAccount, 0, len(keyed))
	for _, k := range keyed {
		if k == nil || k.Account == nil {
			continue
		}
		out = append(out, ProgramAccount{Address: k.Pubkey, Data: k.Account.Data.GetBinary()})
	}
	return out, nil
}

func (s *SolanaRPC) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	bh, err := s.client.GetLatestBlockhash(ctx)
	if err != nil {
		return Hash{}, mapRPCError(err)
	}
	if bh.Blockhash.IsZero() {
		return Hash{}, fmt.Errorf("%w: empty blockhash", ErrRemoteUnavailable)
	}
	return bh.Blockhash, nil
}

func (s *SolanaRPC) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return Signature{}, err
	}
	sig, err := s.client.SendTransaction(ctx, raw)
	if err != nil {
		return Signature{}, mapRPCError(err)
	}
	return sig, nil
}

func (s *SolanaRPC) GetSignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error) {
	statuses, err := s.client.GetSignatureStatuses(ctx, sig)
	if err != nil {
		return nil, mapRPCError(err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return nil, nil
	}

	st := statuses[0]
	out := &SignatureStatus{Slot: st.Slot}
	if st.Err != nil {
		raw, err := json.Marshal(st.Err)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		}
		out.Err = ParseTransactionError(raw)
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		out.Confirmed = true
	}
	return out, nil
}

// WatchAccount blocks until ctx ends, calling fn on each account change.
func (s *SolanaRPC) WatchAccount(ctx context.Context, addr Address, fn func(slot uint64)) error {
	if s.subscriber == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := s.subscriber.AccountSubscribe(ctx, addr, fn); err != nil {
		return mapRPCError(err)
	}
	return nil
}

func mapRPCError(err error) error {
	var rpcErr *jsonrpc.RPCError
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &rpcErr):
		if txErr := solana_rpc_client.TransactionErr(err); txErr != nil {
			return ParseTransactionError(txErr)
		}
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	case errors.Is(err, clients.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	return err
}
