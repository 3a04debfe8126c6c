package solana_rpc_client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/mcdev12/tapchain/go/clients"
)

// SolanaRPCClient speaks Solana JSON-RPC 2.0 over the shared HTTP transport.
type SolanaRPCClient struct {
	*clients.BaseClient
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

func NewSolanaRPCClient(endpoint, commitment string) *SolanaRPCClient {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	base := clients.NewBaseClient(endpoint)
	base.SetHeader(JsonHeader, JsonContentType)

	return &SolanaRPCClient{
		BaseClient: base,
		rpc: rpc.NewWithCustomRPCClient(jsonrpc.NewClientWithOpts(base.BaseURL(), &jsonrpc.RPCClientOpts{
			HTTPClient: base,
		})),
		commitment: rpc.CommitmentType(commitment),
	}
}

// Commitment returns the commitment level attached to reads.
func (c *SolanaRPCClient) Commitment() rpc.CommitmentType {
	return c.commitment
}

// TransactionErr extracts the "err" member that preflight failures carry in
// the data of a node error. It returns nil for any other error.
func TransactionErr(err error) json.RawMessage {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return nil
	}
	data, ok := rpcErr.Data.(map[string]any)
	if !ok || data["err"] == nil {
		return nil
	}
	raw, mErr := json.Marshal(data["err"])
	if mErr != nil {
		return nil
	}
	return raw
}

// wrapErr marks everything except node errors and cancellation as a transport failure.
func wrapErr(op string, err error) error {
	var rpcErr *jsonrpc.RPCError
	switch {
	case errors.As(err, &rpcErr), errors.Is(err, clients.ErrTransport), errors.Is(err, context.Canceled):
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w: %w", op, clients.ErrTransport, err)
}
