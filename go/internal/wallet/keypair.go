package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mcdev12/tapchain/go/internal/ledger"
)

// Keypair is a local ed25519 key. It only signs one transaction at a time.
type Keypair struct {
	key     solana.PrivateKey
	address ledger.Address
}

func NewKeypair(key solana.PrivateKey) (*Keypair, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeypair, err)
	}
	return &Keypair{key: key, address: key.PublicKey()}, nil
}

// NewKeypairFromSeed derives a keypair from a 32 byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidKeypair, len(seed))
	}
	return NewKeypair(solana.PrivateKey(ed25519.NewKeyFromSeed(seed)))
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return NewKeypair(key)
}

// LoadKeypair reads a CLI keypair file: a JSON array of the 64 secret key bytes.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFileBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidKeypair, path, err)
	}
	// the trailing half must be the public key of the seed
	if !ed25519.NewKeyFromSeed(key[:ed25519.SeedSize]).Equal(ed25519.PrivateKey(key)) {
		return nil, fmt.Errorf("%w: %s: public key does not match secret", ErrInvalidKeypair, path)
	}
	return NewKeypair(key)
}

// Save writes the keypair in the CLI JSON format.
func (k *Keypair) Save(path string) error {
	ints := make([]int, len(k.key))
	for i, b := range k.key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func (k *Keypair) PublicKey() ledger.Address { return k.address }

func (k *Keypair) SignTransaction(_ context.Context, tx *ledger.Transaction) (*ledger.Transaction, error) {
	if err := tx.Sign(k.key); err != nil {
		return nil, err
	}
	return tx, nil
}
