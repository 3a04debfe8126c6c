package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	AddressLength = solana.PublicKeyLength

	// GameStateSeed is the namespace tag of the singleton global record.
	GameStateSeed = "game_state"
	// PlayerSeed prefixes the owning identity in player record addresses.
	PlayerSeed = "player"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidSeeds   = errors.New("seeds produce an on-curve address")
	ErrSeedTooLong    = errors.New("seed exceeds 32 bytes")
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrNoViableBump   = errors.New("no viable bump seed")
)

// Address is a 32 byte account key, rendered in base58.
type Address = solana.PublicKey

// SystemProgramID is the all-zero address of the system program.
var SystemProgramID = solana.SystemProgramID

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	a, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %w", ErrInvalidAddress, s, err)
	}
	return a, nil
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsOnCurve reports whether b decodes to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	return solana.IsOnCurve(b)
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > solana.MaxSeeds {
		return fmt.Errorf("%w: %d", ErrTooManySeeds, len(seeds))
	}
	for _, seed := range seeds {
		if len(seed) > solana.MaxSeedLength {
			return fmt.Errorf("%w: %d", ErrSeedTooLong, len(seed))
		}
	}
	return nil
}

// CreateProgramAddress hashes seeds with the program id and rejects results
// that land on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, err
	}
	addr, err := solana.CreateProgramAddress(seeds, programID)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidSeeds, err)
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	// the bump is one more seed
	if err := checkSeeds(append(seeds[:len(seeds):len(seeds)], nil)); err != nil {
		return Address{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(seeds[:len(seeds):len(seeds)], programID)
	if err != nil {
		return Address{}, 0, fmt.Errorf("%w: %w", ErrNoViableBump, err)
	}
	return addr, bump, nil
}
