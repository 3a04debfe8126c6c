package ledger

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
)

var (
	GameStateDiscriminator = bin.SighashTypeID(bin.SIGHASH_ACCOUNT_NAMESPACE, "GameState")
	PlayerDiscriminator    = bin.SighashTypeID(bin.SIGHASH_ACCOUNT_NAMESPACE, "Player")
)

const (
	// GameStateSize is the allocated size, which always reserves room for topPlayer.
	GameStateSize = 8 + 32 + 8 + 8 + 8 + (1 + 32) + 1
	PlayerSize    = 8 + 32 + 8 + 8 + 8 + 1
)

// GlobalState is the singleton game_state record.
type GlobalState struct {
	Authority    Address  `json:"authority"`
	TotalPlayers uint64   `json:"totalPlayers"`
	TotalGames   uint64   `json:"totalGames"`
	TopScore     uint64   `json:"topScore"`
	TopPlayer    *Address `json:"topPlayer,omitempty"`
	Bump         uint8    `json:"bump"`
}

// PlayerRecord is the per-identity player record.
type PlayerRecord struct {
	Wallet     Address `json:"wallet"`
	TotalGames uint64  `json:"totalGames"`
	HighScore  uint64  `json:"highScore"`
	LastPlayed int64   `json:"lastPlayed"`
	Bump       uint8   `json:"bump"`
}

// LastPlayedAt is zero when the player never submitted a score.
func (p *PlayerRecord) LastPlayedAt() time.Time {
	if p.LastPlayed == 0 {
		return time.Time{}
	}
	return time.Unix(p.LastPlayed, 0).UTC()
}

func (g GlobalState) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(GameStateDiscriminator[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(g.Authority[:], false); err != nil {
		return err
	}
	for _, v := range []uint64{g.TotalPlayers, g.TotalGames, g.TopScore} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	if err := enc.WriteOption(g.TopPlayer != nil); err != nil {
		return err
	}
	if g.TopPlayer != nil {
		if err := enc.WriteBytes(g.TopPlayer[:], false); err != nil {
			return err
		}
	}
	return enc.WriteUint8(g.Bump)
}

func (g *GlobalState) UnmarshalWithDecoder(dec *bin.Decoder) error {
	if err := expectDiscriminator(dec, GameStateDiscriminator); err != nil {
		return err
	}
	var out GlobalState
	if err := readAddress(dec, &out.Authority); err != nil {
		return err
	}
	for _, v := range []*uint64{&out.TotalPlayers, &out.TotalGames, &out.TopScore} {
		n, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return err
		}
		*v = n
	}
	tag, err := dec.ReadUint8()
	if err != nil {
		return err
	}
	switch tag {
	case 0:
	case 1:
		var top Address
		if err := readAddress(dec, &top); err != nil {
			return err
		}
		out.TopPlayer = &top
	default:
		return fmt.Errorf("bad option tag %d", tag)
	}
	if out.Bump, err = dec.ReadUint8(); err != nil {
		return err
	}
	*g = out
	return nil
}

// MarshalBinary pads the record to its allocated account size.
func (g *GlobalState) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, GameStateSize))
	if err := g.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("game state: %w", err)
	}
	return append(buf.Bytes(), make([]byte, GameStateSize-buf.Len())...), nil
}

func (g *GlobalState) UnmarshalBinary(data []byte) error {
	if err := g.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return fmt.Errorf("game state: %w: %w", ErrAccountDecode, err)
	}
	return nil
}

func (p PlayerRecord) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteBytes(PlayerDiscriminator[:], false); err != nil {
		return err
	}
	if err := enc.WriteBytes(p.Wallet[:], false); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.TotalGames, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.HighScore, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteInt64(p.LastPlayed, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint8(p.Bump)
}

func (p *PlayerRecord) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if err := expectDiscriminator(dec, PlayerDiscriminator); err != nil {
		return err
	}
	var out PlayerRecord
	if err := readAddress(dec, &out.Wallet); err != nil {
		return err
	}
	if out.TotalGames, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if out.HighScore, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if out.LastPlayed, err = dec.ReadInt64(bin.LE); err != nil {
		return err
	}
	if out.Bump, err = dec.ReadUint8(); err != nil {
		return err
	}
	*p = out
	return nil
}

func (p *PlayerRecord) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, PlayerSize))
	if err := p.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("player: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary allows trailing bytes after the record.
func (p *PlayerRecord) UnmarshalBinary(data []byte) error {
	if err := p.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return fmt.Errorf("player: %w: %w", ErrAccountDecode, err)
	}
	return nil
}

func expectDiscriminator(dec *bin.Decoder, want bin.TypeID) error {
	got, err := dec.ReadTypeID()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("discriminator mismatch: got %s", bin.FormatDiscriminator(got))
	}
	return nil
}

func readAddress(dec *bin.Decoder, a *Address) error {
	b, err := dec.ReadNBytes(AddressLength)
	if err != nil {
		return err
	}
	copy(a[:], b)
	return nil
}
