package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval is one time unit.
const DefaultTickInterval = time.Second

// Runner drives a Machine from a ticker, one ticker per session.
type Runner struct {
	machine  *Machine
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup

	observeMu sync.Mutex
	observers []func(State)
}

func NewRunner(machine *Machine, clock clockwork.Clock, interval time.Duration) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Runner{machine: machine, clock: clock, interval: interval}
}

func (r *Runner) Machine() *Machine { return r.machine }

// Observe registers fn to receive the machine state after every change
// made through the runner, including ticks.
func (r *Runner) Observe(fn func(State)) {
	r.observeMu.Lock()
	defer r.observeMu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Runner) changed(ok bool) bool {
	if !ok {
		return false
	}
	r.observeMu.Lock()
	observers := append([]func(State){}, r.observers...)
	r.observeMu.Unlock()
	st := r.machine.State()
	for _, fn := range observers {
		fn(st)
	}
	return true
}

func (r *Runner) State() State { return r.machine.State() }

// Start begins a session and its ticker.
func (r *Runner) Start() bool {
	return r.changed(r.start())
}

func (r *Runner) start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.machine.Start() {
		return false
	}
	r.stopTickerLocked()

	id := r.machine.State().SessionID
	stop := make(chan struct{})
	r.stop = stop
	ticker := r.clock.NewTicker(r.interval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		r.loop(id, ticker, stop)
	}()

	log.Info().Str("session_id", id.String()).Int("duration", r.machine.Duration()).Msg("session started")
	return true
}

func (r *Runner) loop(id uuid.UUID, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !r.changed(r.machine.TickSession(id)) {
				return
			}
			if st := r.machine.State(); st.SessionID != id || st.Phase != Playing {
				return
			}
		}
	}
}

func (r *Runner) Tap() bool { return r.changed(r.machine.RecordTap()) }

// Stop ends the running session early.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	r.stopTickerLocked()
	ok := r.machine.Stop()
	r.mu.Unlock()
	return r.changed(ok)
}

func (r *Runner) Reset() bool {
	return r.changed(r.machine.Reset())
}

// Close stops any ticker and waits for it to exit.
func (r *Runner) Close() {
	r.mu.Lock()
	r.stopTickerLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) stopTickerLocked() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}
