package synthesizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

// Unit tracks one (symbol, timeframe) pair across synthesis cycles.
// Transitions are PENDING -> COMPUTING -> {READY, INSUFFICIENT_DATA,
// ERROR}; Reset returns the unit to PENDING for the next cycle. Any other
// transition is a programming error and is rejected.
type Unit struct {
	Symbol    string
	Timeframe types.Timeframe

	mu        sync.Mutex
	state     types.UnitState
	signal    *types.Signal
	lastErr   error
	updatedAt time.Time
}

// NewUnit creates a unit in the PENDING state.
func NewUnit(symbol string, tf types.Timeframe) *Unit {
	return &Unit{
		Symbol:    symbol,
		Timeframe: tf,
		state:     types.UnitPending,
		updatedAt: time.Now().UTC(),
	}
}

// State returns the current state.
func (u *Unit) State() types.UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Signal returns the last READY signal, or nil. A signal from a previous
// cycle stays readable while the unit recomputes.
func (u *Unit) Signal() *types.Signal {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.signal
}

// Err returns the error from the last ERROR transition, or nil.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// Begin moves PENDING -> COMPUTING.
func (u *Unit) Begin() error {
	return u.transition(types.UnitPending, types.UnitComputing, nil, nil)
}

// Ready moves COMPUTING -> READY and publishes the signal.
func (u *Unit) Ready(sig *types.Signal) error {
	return u.transition(types.UnitComputing, types.UnitReady, sig, nil)
}

// InsufficientData moves COMPUTING -> INSUFFICIENT_DATA. The previous
// signal, if any, is retained.
func (u *Unit) InsufficientData() error {
	return u.transition(types.UnitComputing, types.UnitInsufficientData, nil, nil)
}

// Fail moves COMPUTING -> ERROR, recording the cause.
func (u *Unit) Fail(err error) error {
	return u.transition(types.UnitComputing, types.UnitError, nil, err)
}

// Reset returns any terminal state to PENDING for the next cycle.
func (u *Unit) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != types.UnitComputing {
		u.state = types.UnitPending
		u.updatedAt = time.Now().UTC()
	}
}

func (u *Unit) transition(from, to types.UnitState, sig *types.Signal, cause error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != from {
		return fmt.Errorf("unit %s/%s: invalid transition %s -> %s", u.Symbol, u.Timeframe, u.state, to)
	}
	u.state = to
	u.updatedAt = time.Now().UTC()
	if sig != nil {
		u.signal = sig
	}
	u.lastErr = cause
	return nil
}
