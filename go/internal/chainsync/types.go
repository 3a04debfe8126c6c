package chainsync

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/tapchain/go/internal/leaderboard"
	"github.com/mcdev12/tapchain/go/internal/ledger"
	"github.com/mcdev12/tapchain/go/internal/wallet"
)

var (
	// ErrNotConnected means there is no ready signing capability.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrInvalidState is returned by operations invoked in the wrong state.
	ErrInvalidState = errors.New("invalid controller state")
	// ErrOperationInFlight rejects a mutating call while another one runs for the same identity.
	ErrOperationInFlight = errors.New("operation already in flight")
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Ready
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// SessionProvider is the host authentication session.
type SessionProvider interface {
	Ready() bool
	Authenticated() bool
	Wallets() []wallet.Wallet
}

// Ledger is the remote ledger surface the controller drives.
type Ledger interface {
	GlobalAddress() ledger.Address
	PlayerAddress(identity ledger.Address) (ledger.Address, error)
	Exists(ctx context.Context, addr ledger.Address) (bool, error)
	Provision(ctx context.Context, signer ledger.Signer) ([]ledger.TxRef, error)
	SubmitScore(ctx context.Context, signer ledger.Signer, score int64) (*ledger.TxRef, error)
	ReadGlobalState(ctx context.Context) (*ledger.GlobalState, error)
	ReadPlayer(ctx context.Context, identity ledger.Address) (*ledger.PlayerRecord, error)
	ListPlayers(ctx context.Context) ([]ledger.PlayerRecord, error)
}

type Config struct {
	// OperationTimeout bounds every public operation.
	OperationTimeout time.Duration
	// RefreshInterval is how often Run re-reads the ledger.
	RefreshInterval time.Duration
	LeaderboardSize int
}

func DefaultConfig() Config {
	return Config{
		OperationTimeout: 30 * time.Second,
		RefreshInterval:  15 * time.Second,
		LeaderboardSize:  leaderboard.DefaultSize,
	}
}

// Snapshot is a consistent copy of the controller state for display.
type Snapshot struct {
	Status        Status                  `json:"status"`
	Identity      string                  `json:"identity,omitempty"`
	WalletMode    string                  `json:"walletMode,omitempty"`
	GlobalState   *ledger.GlobalState     `json:"globalState,omitempty"`
	Player        *ledger.PlayerRecord    `json:"player,omitempty"`
	PlayerExists  bool                    `json:"playerExists"`
	Leaderboard   []leaderboard.Entry     `json:"leaderboard"`
	Stats         leaderboard.PlayerStats `json:"stats"`
	Loading       bool                    `json:"loading"`
	Error         string                  `json:"error,omitempty"`
	LastSignature string                  `json:"lastSignature,omitempty"`
	UpdatedAt     time.Time               `json:"updatedAt,omitzero"`
}
