// Package session runs the local timed tap game. It has no I/O and no
// error states.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultDuration is the session length in ticks.
const DefaultDuration = 30

type Phase int

const (
	Idle Phase = iota
	Playing
	Ended
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Ended:
		return "ended"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type EndReason string

const (
	EndTimeout EndReason = "timeout"
	EndStopped EndReason = "stopped"
)

// State is a snapshot of the machine.
type State struct {
	SessionID uuid.UUID `json:"sessionId"`
	Phase     Phase     `json:"phase"`
	Tally     int64     `json:"tally"`
	Remaining int       `json:"remaining"`
	Started   bool      `json:"started"`
	Ended     bool      `json:"ended"`
}

// Result is the outcome of a finished session.
type Result struct {
	SessionID uuid.UUID `json:"sessionId"`
	Tally     int64     `json:"tally"`
	Reason    EndReason `json:"reason"`
}

// Machine is the Idle -> Playing -> Ended state machine. Every method reports
// whether it changed anything; calls that do not apply are ignored.
type Machine struct {
	mu       sync.Mutex
	duration int
	state    State
	onEnd    func(Result)
}

// NewMachine creates an idle machine. onEnd, if set, runs once per session
// when it ends, outside the machine's lock.
func NewMachine(duration int, onEnd func(Result)) *Machine {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Machine{
		duration: duration,
		state:    State{Phase: Idle, Remaining: duration},
		onEnd:    onEnd,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Duration() int { return m.duration }

// Start begins a new session from Idle or Ended.
func (m *Machine) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase == Playing {
		return false
	}
	m.state = State{
		SessionID: uuid.New(),
		Phase:     Playing,
		Remaining: m.duration,
		Started:   true,
	}
	return true
}

// Tick consumes one unit of time; the session ends when none remain.
func (m *Machine) Tick() bool {
	return m.tick(nil)
}

// TickSession ticks only if id is still the running session, so a late tick
// from a previous session's timer is dropped.
func (m *Machine) TickSession(id uuid.UUID) bool {
	return m.tick(&id)
}

func (m *Machine) tick(id *uuid.UUID) bool {
	m.mu.Lock()
	if m.state.Phase != Playing || (id != nil && *id != m.state.SessionID) {
		m.mu.Unlock()
		return false
	}
	m.state.Remaining--
	if m.state.Remaining > 0 {
		m.mu.Unlock()
		return true
	}
	res := m.endLocked(EndTimeout)
	m.mu.Unlock()

	m.emit(res)
	return true
}

// RecordTap counts one tap while Playing.
func (m *Machine) RecordTap() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != Playing {
		return false
	}
	m.state.Tally++
	return true
}

// Stop ends a running session with its current tally.
func (m *Machine) Stop() bool {
	m.mu.Lock()
	if m.state.Phase != Playing {
		m.mu.Unlock()
		return false
	}
	res := m.endLocked(EndStopped)
	m.mu.Unlock()

	m.emit(res)
	return true
}

// Reset discards an ended session and returns to Idle.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Phase != Ended {
		return false
	}
	m.state = State{Phase: Idle, Remaining: m.duration}
	return true
}

func (m *Machine) endLocked(reason EndReason) Result {
	m.state.Phase = Ended
	m.state.Ended = true
	return Result{SessionID: m.state.SessionID, Tally: m.state.Tally, Reason: reason}
}

func (m *Machine) emit(res Result) {
	if m.onEnd != nil {
		m.onEnd(res)
	}
}
