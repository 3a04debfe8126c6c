package localnet

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mcdev12/tapchain/go/internal/ledger"
)

// execution stages account writes so a failing instruction leaves no trace.
type execution struct {
	v      *Validator
	msg    *solana.Message
	writes map[ledger.Address][]byte
}

func (e *execution) load(addr ledger.Address) ([]byte, bool) {
	if data, ok := e.writes[addr]; ok {
		return data, true
	}
	data, ok := e.v.accounts[addr]
	return data, ok
}

// execute runs every instruction of msg and returns the resulting writes.
func (v *Validator) execute(msg *solana.Message) (map[ledger.Address][]byte, error) {
	e := &execution{v: v, msg: msg, writes: make(map[ledger.Address][]byte)}
	for i, ix := range msg.Instructions {
		if err := e.run(i, ix); err != nil {
			return nil, err
		}
	}
	return e.writes, nil
}

type ixAccount struct {
	addr     ledger.Address
	signer   bool
	writable bool
}

func (e *execution) run(index int, ix solana.CompiledInstruction) error {
	programID := e.msg.AccountKeys[ix.ProgramIDIndex]
	if programID != e.v.program.ID() {
		return fmt.Errorf("%w: instruction %d: unsupported program %s", ledger.ErrProgram, index, programID)
	}

	accounts := make([]ixAccount, len(ix.Accounts))
	for i, k := range ix.Accounts {
		addr := e.msg.AccountKeys[k]
		accounts[i] = ixAccount{
			addr:     addr,
			signer:   e.msg.IsSigner(addr),
			writable: e.msg.IsWritableStatic(addr),
		}
	}

	kind, score, err := ledger.DecodeInstruction(ix.Data)
	if err != nil {
		return fmt.Errorf("%w: instruction %d: %w", ledger.ErrProgram, index, err)
	}

	switch kind {
	case ledger.InstructionInitialize:
		return e.initialize(index, accounts)
	case ledger.InstructionCreatePlayer:
		return e.createPlayer(index, accounts)
	case ledger.InstructionSubmitScore:
		return e.submitScore(index, accounts, score)
	case ledger.InstructionGetLeaderboardInfo:
		return e.requireGameState(index, accounts, 0)
	}
	return fmt.Errorf("%w: instruction %d: %s", ledger.ErrProgram, index, kind)
}

func (e *execution) checkAccounts(index int, accounts []ixAccount, want int) error {
	if len(accounts) < want {
		return fmt.Errorf("%w: instruction %d: not enough account keys", ledger.ErrProgram, index)
	}
	return nil
}

func (e *execution) requireGameState(index int, accounts []ixAccount, pos int) error {
	if err := e.checkAccounts(index, accounts, pos+1); err != nil {
		return err
	}
	global, _ := e.v.program.GlobalAddress()
	if accounts[pos].addr != global {
		return ledger.NewProgramError(index, ledger.CodeConstraintSeeds)
	}
	if _, ok := e.load(global); !ok {
		return ledger.NewProgramError(index, ledger.CodeAccountNotInitialized)
	}
	return nil
}

func (e *execution) gameState() (*ledger.GlobalState, ledger.Address, error) {
	global, _ := e.v.program.GlobalAddress()
	data, _ := e.load(global)
	var gs ledger.GlobalState
	if err := gs.UnmarshalBinary(data); err != nil {
		return nil, global, err
	}
	return &gs, global, nil
}

func (e *execution) store(addr ledger.Address, rec interface{ MarshalBinary() ([]byte, error) }) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	e.writes[addr] = data
	return nil
}

func requireSigner(index int, acct ixAccount) error {
	if !acct.signer || !acct.writable {
		return fmt.Errorf("%w: instruction %d: %s must be a writable signer", ledger.ErrProgram, index, acct.addr)
	}
	return nil
}

// initialize: [game_state (w), authority (w, signer), system_program]
func (e *execution) initialize(index int, accounts []ixAccount) error {
	if err := e.checkAccounts(index, accounts, 3); err != nil {
		return err
	}
	if err := requireSigner(index, accounts[1]); err != nil {
		return err
	}
	global, bump := e.v.program.GlobalAddress()
	if accounts[0].addr != global {
		return ledger.NewProgramError(index, ledger.CodeConstraintSeeds)
	}
	if _, exists := e.load(global); exists {
		return ledger.NewProgramError(index, ledger.CodeAccountAlreadyInUse)
	}

	return e.store(global, &ledger.GlobalState{
		Authority: accounts[1].addr,
		Bump:      bump,
	})
}

// create_player: [player (w), game_state (w), authority (w, signer), system_program]
func (e *execution) createPlayer(index int, accounts []ixAccount) error {
	if err := e.checkAccounts(index, accounts, 4); err != nil {
		return err
	}
	if err := requireSigner(index, accounts[2]); err != nil {
		return err
	}
	authority := accounts[2].addr
	playerAddr, bump, err := e.v.program.PlayerAddress(authority)
	if err != nil {
		return err
	}
	if accounts[0].addr != playerAddr {
		return ledger.NewProgramError(index, ledger.CodeConstraintSeeds)
	}
	if err := e.requireGameState(index, accounts, 1); err != nil {
		return err
	}
	if _, exists := e.load(playerAddr); exists {
		return ledger.NewProgramError(index, ledger.CodeAccountAlreadyInUse)
	}

	gs, global, err := e.gameState()
	if err != nil {
		return err
	}
	gs.TotalPlayers++

	if err := e.store(playerAddr, &ledger.PlayerRecord{Wallet: authority, Bump: bump}); err != nil {
		return err
	}
	return e.store(global, gs)
}

// submit_score: [player (w), game_state (w), authority (signer)]
func (e *execution) submitScore(index int, accounts []ixAccount, score uint64) error {
	if err := e.checkAccounts(index, accounts, 3); err != nil {
		return err
	}
	if !accounts[2].signer {
		return fmt.Errorf("%w: instruction %d: authority must sign", ledger.ErrProgram, index)
	}
	authority := accounts[2].addr
	playerAddr, _, err := e.v.program.PlayerAddress(authority)
	if err != nil {
		return err
	}
	if accounts[0].addr != playerAddr {
		return ledger.NewProgramError(index, ledger.CodeConstraintSeeds)
	}
	if err := e.requireGameState(index, accounts, 1); err != nil {
		return err
	}
	data, exists := e.load(playerAddr)
	if !exists {
		return ledger.NewProgramError(index, ledger.CodeAccountNotInitialized)
	}
	if score == 0 {
		return ledger.NewProgramError(index, ledger.CodeInvalidScore)
	}

	var player ledger.PlayerRecord
	if err := player.UnmarshalBinary(data); err != nil {
		return err
	}
	player.TotalGames++
	player.HighScore = max(player.HighScore, score)
	player.LastPlayed = e.v.clock.Now().Unix()

	gs, global, err := e.gameState()
	if err != nil {
		return err
	}
	gs.TotalGames++
	if score > gs.TopScore {
		gs.TopScore = score
		top := authority
		gs.TopPlayer = &top
	}

	if err := e.store(playerAddr, &player); err != nil {
		return err
	}
	return e.store(global, gs)
}
