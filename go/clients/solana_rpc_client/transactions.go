package solana_rpc_client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mcdev12/tapchain/go/clients"
)

func (c *SolanaRPCClient) GetLatestBlockhash(ctx context.Context) (*rpc.LatestBlockhashResult, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return nil, wrapErr("get latest blockhash", err)
	}
	if res == nil || res.Value == nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w: empty result", clients.ErrTransport)
	}
	return res.Value, nil
}

// SendTransaction submits a fully signed wire transaction and returns its signature.
func (c *SolanaRPCClient) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, wrapErr("send transaction", err)
	}
	return sig, nil
}

// GetSignatureStatuses returns one entry per signature; unknown signatures are nil.
func (c *SolanaRPCClient) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, false, signatures...)
	if errors.Is(err, rpc.ErrNotFound) {
		return make([]*rpc.SignatureStatusesResult, len(signatures)), nil
	}
	if err != nil {
		return nil, wrapErr("get signature statuses", err)
	}
	return res.Value, nil
}
