package ledger

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	initializeDiscriminator         = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "initialize")
	createPlayerDiscriminator       = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "create_player")
	submitScoreDiscriminator        = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "submit_score")
	getLeaderboardInfoDiscriminator = bin.SighashTypeID(bin.SIGHASH_GLOBAL_NAMESPACE, "get_leaderboard_info")
)

var ErrUnknownInstruction = errors.New("unknown instruction")

type InstructionKind int

const (
	InstructionInitialize InstructionKind = iota + 1
	InstructionCreatePlayer
	InstructionSubmitScore
	InstructionGetLeaderboardInfo
)

func (k InstructionKind) String() string {
	switch k {
	case InstructionInitialize:
		return "initialize"
	case InstructionCreatePlayer:
		return "create_player"
	case InstructionSubmitScore:
		return "submit_score"
	case InstructionGetLeaderboardInfo:
		return "get_leaderboard_info"
	}
	return "unknown"
}

// Program derives the tap-to-win addresses and builds its instructions.
type Program struct {
	id         Address
	global     Address
	globalBump uint8
}

func NewProgram(id Address) (*Program, error) {
	global, bump, err := FindProgramAddress([][]byte{[]byte(GameStateSeed)}, id)
	if err != nil {
		return nil, fmt.Errorf("derive game state address: %w", err)
	}
	return &Program{id: id, global: global, globalBump: bump}, nil
}

func (p *Program) ID() Address { return p.id }

// GlobalAddress returns the game_state address and its bump.
func (p *Program) GlobalAddress() (Address, uint8) {
	return p.global, p.globalBump
}

// PlayerAddress derives the player record address of identity.
func (p *Program) PlayerAddress(identity Address) (Address, uint8, error) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte(PlayerSeed), identity[:]}, p.id)
	if err != nil {
		return Address{}, 0, fmt.Errorf("derive player address for %s: %w", identity, err)
	}
	return addr, bump, nil
}

func (p *Program) Initialize(authority Address) *solana.GenericInstruction {
	return solana.NewInstruction(p.id, solana.AccountMetaSlice{
		solana.Meta(p.global).WRITE(),
		solana.Meta(authority).SIGNER().WRITE(),
		solana.Meta(SystemProgramID),
	}, initializeDiscriminator[:])
}

func (p *Program) CreatePlayer(authority Address) (*solana.GenericInstruction, error) {
	player, _, err := p.PlayerAddress(authority)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.id, solana.AccountMetaSlice{
		solana.Meta(player).WRITE(),
		solana.Meta(p.global).WRITE(),
		solana.Meta(authority).SIGNER().WRITE(),
		solana.Meta(SystemProgramID),
	}, createPlayerDiscriminator[:]), nil
}

func (p *Program) SubmitScore(authority Address, score uint64) (*solana.GenericInstruction, error) {
	player, _, err := p.PlayerAddress(authority)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 16))
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(submitScoreDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(score, bin.LE); err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.id, solana.AccountMetaSlice{
		solana.Meta(player).WRITE(),
		solana.Meta(p.global).WRITE(),
		solana.Meta(authority).SIGNER(),
	}, buf.Bytes()), nil
}

func (p *Program) GetLeaderboardInfo() *solana.GenericInstruction {
	return solana.NewInstruction(p.id, solana.AccountMetaSlice{
		solana.Meta(p.global),
	}, getLeaderboardInfoDiscriminator[:])
}

// DecodeInstruction identifies instruction data; score is set for submit_score.
func DecodeInstruction(data []byte) (kind InstructionKind, score uint64, err error) {
	dec := bin.NewBorshDecoder(data)
	disc, err := dec.ReadTypeID()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrUnknownInstruction, len(data))
	}
	switch disc {
	case initializeDiscriminator:
		return InstructionInitialize, 0, nil
	case createPlayerDiscriminator:
		return InstructionCreatePlayer, 0, nil
	case getLeaderboardInfoDiscriminator:
		return InstructionGetLeaderboardInfo, 0, nil
	case submitScoreDiscriminator:
		if dec.Remaining() != 8 {
			return 0, 0, fmt.Errorf("%w: submit_score takes 8 argument bytes", ErrUnknownInstruction)
		}
		score, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %w", ErrUnknownInstruction, err)
		}
		return InstructionSubmitScore, score, nil
	}
	return 0, 0, fmt.Errorf("%w: discriminator %s", ErrUnknownInstruction, bin.FormatDiscriminator(disc))
}
