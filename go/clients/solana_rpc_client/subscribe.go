package solana_rpc_client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/mcdev12/tapchain/go/clients"
	"github.com/rs/zerolog/log"
)

// Subscriber opens pubsub websocket subscriptions against a node.
type Subscriber struct {
	url        string
	commitment rpc.CommitmentType
	opts       *ws.Options
}

func NewSubscriber(wsURL, commitment string) *Subscriber {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &Subscriber{
		url:        wsURL,
		commitment: rpc.CommitmentType(commitment),
		opts: &ws.Options{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// AccountSubscribe blocks until ctx is cancelled or the connection fails,
// calling fn for every change notification of pubkey.
func (s *Subscriber) AccountSubscribe(ctx context.Context, pubkey solana.PublicKey, fn func(slot uint64)) error {
	client, err := ws.ConnectWithOptions(ctx, s.url, s.opts)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w: %w", s.url, clients.ErrTransport, err)
	}
	defer client.Close()

	sub, err := client.AccountSubscribe(pubkey, s.commitment)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w: %w", pubkey, clients.ErrTransport, err)
	}
	defer sub.Unsubscribe()
	log.Debug().Stringer("pubkey", pubkey).Msg("account subscription established")

	for {
		res, err := sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscription read failed: %w: %w", clients.ErrTransport, err)
		}
		fn(res.Context.Slot)
	}
}
