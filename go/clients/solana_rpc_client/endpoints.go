package solana_rpc_client

import "github.com/gagliardetto/solana-go/rpc"

const (
	// Commitment levels
	CommitmentProcessed = string(rpc.CommitmentProcessed)
	CommitmentConfirmed = string(rpc.CommitmentConfirmed)
	CommitmentFinalized = string(rpc.CommitmentFinalized)

	// Headers
	JsonHeader      = "Content-Type"
	JsonContentType = "application/json"
)
