package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable covers transport failures and timeouts.
	ErrRemoteUnavailable = errors.New("remote ledger unavailable")
	// ErrNotInitialized means a required record has not been created yet.
	ErrNotInitialized = errors.New("ledger state not initialized")
	ErrInvalidScore   = errors.New("invalid score: must be greater than 0")
	ErrAccountDecode  = errors.New("account decode failed")
	// ErrProgram is matched by every error raised while executing a transaction.
	ErrProgram = errors.New("program error")
)

// Custom error codes surfaced by the program and the runtime around it.
const (
	CodeAccountAlreadyInUse   uint32 = 0
	CodeConstraintSeeds       uint32 = 2006
	CodeAccountNotInitialized uint32 = 3012
	CodeInvalidScore          uint32 = 6000
)

var programErrors = map[uint32]struct{ name, msg string }{
	CodeAccountAlreadyInUse:   {"AccountAlreadyInUse", "an account with the same address already exists"},
	CodeConstraintSeeds:       {"ConstraintSeeds", "A seeds constraint was violated"},
	CodeAccountNotInitialized: {"AccountNotInitialized", "The program expected this account to be already initialized"},
	CodeInvalidScore:          {"InvalidScore", "Score must be greater than 0."},
}

// ProgramError is a custom error code returned by an instruction.
type ProgramError struct {
	Instruction int
	Code        uint32
	Name        string
	Msg         string
}

func NewProgramError(instruction int, code uint32) *ProgramError {
	e := &ProgramError{Instruction: instruction, Code: code, Name: "Unknown"}
	if known, ok := programErrors[code]; ok {
		e.Name, e.Msg = known.name, known.msg
	}
	return e
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("instruction %d failed: custom program error %d (%s): %s", e.Instruction, e.Code, e.Name, e.Msg)
}

func (e *ProgramError) Is(target error) bool {
	switch target {
	case ErrProgram:
		return true
	case ErrInvalidScore:
		return e.Code == CodeInvalidScore
	case ErrNotInitialized:
		return e.Code == CodeAccountNotInitialized
	}
	return false
}

// ParseTransactionError converts the JSON "err" value of a failed transaction.
func ParseTransactionError(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var ixErr struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if err := json.Unmarshal(raw, &ixErr); err == nil && len(ixErr.InstructionError) == 2 {
		var idx int
		if err := json.Unmarshal(ixErr.InstructionError[0], &idx); err == nil {
			var custom struct {
				Custom *uint32 `json:"Custom"`
			}
			if err := json.Unmarshal(ixErr.InstructionError[1], &custom); err == nil && custom.Custom != nil {
				return NewProgramError(idx, *custom.Custom)
			}
			return fmt.Errorf("%w: instruction %d: %s", ErrProgram, idx, ixErr.InstructionError[1])
		}
	}

	return fmt.Errorf("%w: %s", ErrProgram, raw)
}
