package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProgramID = "CTvpChrJqAhxAPQPMU2pJk8RcnzLwTJ5s7BJHftzS7vZ"

func sequentialAddress() Address {
	var a Address
	for i := range a {
		a[i] = byte(i + 1)
	}
	return a
}

func TestAddressBase58(t *testing.T) {
	assert.Equal(t, "11111111111111111111111111111111", SystemProgramID.String())
	assert.True(t, SystemProgramID.IsZero())

	a := sequentialAddress()
	assert.Equal(t, "4wBqpZM9xaSheZzJSMawUKKwhdpChKbZ5eu5ky4Vigw", a.String())

	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = ParseAddress("not-base58!")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ParseAddress("1111")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressText(t *testing.T) {
	a := sequentialAddress()
	text, err := a.MarshalText()
	require.NoError(t, err)

	var back Address
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, a, back)
}

func TestCreateProgramAddress(t *testing.T) {
	program := MustParseAddress("BPFLoader1111111111111111111111111111111111")
	seedKey := MustParseAddress("SeedPubey1111111111111111111111111111111111")

	tests := []struct {
		name  string
		seeds [][]byte
		want  string
	}{
		{"empty and one", [][]byte{{}, {1}}, "3gF2KMe9KiC6FNVBmfg9i267aMPvK37FewCip4eGBFcT"},
		{"unicode", [][]byte{[]byte("☉")}, "7ytmC1nT1xY4RfxCV2ZgyA7UakC93do5ZdyhdF3EtPj7"},
		{"two words", [][]byte{[]byte("Talking"), []byte("Squirrels")}, "HwRVBufQ4haG5XSgpspwKtNd3PC9GM9m1196uJW36vds"},
		{"pubkey seed", [][]byte{seedKey[:]}, "GUs5qLUfsEHkcMB9T38vjr18ypEhRuNWiePW2LoK4E3K"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := CreateProgramAddress(tt.seeds, program)
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}

func TestCreateProgramAddressLimits(t *testing.T) {
	program := MustParseAddress(testProgramID)

	_, err := CreateProgramAddress([][]byte{make([]byte, 33)}, program)
	assert.ErrorIs(t, err, ErrSeedTooLong)

	_, err = CreateProgramAddress(make([][]byte, 17), program)
	assert.ErrorIs(t, err, ErrTooManySeeds)

	// 16 seeds plus the bump is one too many
	_, _, err = FindProgramAddress(make([][]byte, 16), program)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestFindProgramAddress(t *testing.T) {
	p, err := NewProgram(MustParseAddress(testProgramID))
	require.NoError(t, err)

	global, bump := p.GlobalAddress()
	assert.Equal(t, "9svFzZUwNENZkgUBmdohuFosrgmiyRyTX5qUCpre2k7k", global.String())
	assert.Equal(t, uint8(255), bump)
	assert.False(t, IsOnCurve(global[:]))

	player, bump, err := p.PlayerAddress(sequentialAddress())
	require.NoError(t, err)
	assert.Equal(t, "HFaEKXDCcBjYbcA6bRnL5CtZinMcKjdyTgLa4UHyRw9Z", player.String())
	assert.Equal(t, uint8(254), bump)

	// the 255 candidate for this identity lands on the curve
	_, err = CreateProgramAddress([][]byte{[]byte(PlayerSeed), sequentialAddress().Bytes(), {255}}, p.ID())
	assert.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestPlayerAddressIsDeterministic(t *testing.T) {
	p, err := NewProgram(MustParseAddress(testProgramID))
	require.NoError(t, err)

	a, _, err := p.PlayerAddress(sequentialAddress())
	require.NoError(t, err)
	b, _, err := p.PlayerAddress(sequentialAddress())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, _, err := p.PlayerAddress(SystemProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}
