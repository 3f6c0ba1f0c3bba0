// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package marketplace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raiku/slotmarket/pkg/config"
)

var (
	// ErrInvalidTransition is returned when a state transition is not in
	// the lifecycle table.
	ErrInvalidTransition = errors.New("marketplace: invalid slot transition")
	// ErrNoSuchSlot is returned when a slot number falls outside the window.
	ErrNoSuchSlot = errors.New("marketplace: no such slot")
)

// transitionTable lists every allowed from -> to edge from spec §4.1.
var transitionTable = map[Kind]map[Kind]bool{
	Available:  {JitAuction: true, AotAuction: true, Reserved: true, Expired: true},
	JitAuction: {Reserved: true, Expired: true},
	AotAuction: {Reserved: true, Expired: true},
	Reserved:   {Filled: true, Expired: true},
	Filled:     {},
	Expired:    {},
}

// allowed reports whether transitioning from `from` to `to` is permitted.
// Setting a slot to its own current state is never allowed (the table has
// no diagonal entries): every transition must be a genuine state change.
func allowed(from, to Kind) bool {
	edges, ok := transitionTable[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Marketplace owns the rolling window of slots [current, current+W) and
// enforces the slot lifecycle state machine. It is the only component
// permitted to mutate Slot values; callers read and request transitions
// through its contract.
type Marketplace struct {
	mu      sync.RWMutex
	current Number
	window  int
	slots   map[Number]*Slot
	cfg     config.Config
}

// New creates a Marketplace with a freshly admitted window starting at
// slot 0, every slot Available.
func New(cfg config.Config) *Marketplace {
	m := &Marketplace{
		window: cfg.SlotWindow,
		slots:  make(map[Number]*Slot, cfg.SlotWindow),
		cfg:    cfg,
	}
	for i := 0; i < cfg.SlotWindow; i++ {
		n := Number(i)
		m.slots[n] = m.newSlot(n)
	}
	return m
}

func (m *Marketplace) newSlot(n Number) *Slot {
	return &Slot{
		Number:        n,
		State:         AvailableState(),
		EstimatedTime: time.Now().Add(time.Duration(n) * m.cfg.SlotDuration),
		BaseFee:       m.cfg.BaseFee,
		CUAvailable:   m.cfg.CUPerSlot,
		CUUsed:        0,
	}
}

// Current returns the current slot number.
func (m *Marketplace) Current() Number {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Get returns a copy of the slot at n, or (Slot{}, false) if n is outside
// the tracked window.
func (m *Marketplace) Get(n Number) (Slot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.slots[n]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// Window returns a copy of every tracked slot, ordered by slot number
// starting at Current().
func (m *Marketplace) Window() []Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Slot, 0, m.window)
	for i := 0; i < m.window; i++ {
		n := m.current + Number(i)
		if s, ok := m.slots[n]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// SetState transitions slot n to newState, failing with
// ErrInvalidTransition if the edge isn't in the lifecycle table.
func (m *Marketplace) SetState(n Number, newState State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStateLocked(n, newState)
}

func (m *Marketplace) setStateLocked(n Number, newState State) error {
	s, ok := m.slots[n]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchSlot, n)
	}
	if !allowed(s.State.Kind, newState.Kind) {
		return fmt.Errorf("%w: slot %d %s -> %s", ErrInvalidTransition, n, s.State.Kind, newState.Kind)
	}
	s.State = newState
	return nil
}

// ReserveIdempotent applies Reserved{winner,tx,bid} to slot n. Repeating the
// exact same reservation is a no-op per spec §8; reserving an
// already-Reserved slot with a different winner is ErrInvalidTransition
// because Reserved has no self-edge in the table.
func (m *Marketplace) ReserveIdempotent(n Number, newState State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[n]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchSlot, n)
	}
	if s.State.Kind == Reserved && s.State == newState {
		return nil
	}
	return m.setStateLocked(n, newState)
}

// SetCUUsed records compute-unit consumption against a slot. A value above
// CUAvailable is rejected with an overflow error and leaves the slot
// unchanged, keeping the invariant 0 <= cu_used <= cu_available.
func (m *Marketplace) SetCUUsed(n Number, cuUsed uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[n]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchSlot, n)
	}
	if cuUsed > s.CUAvailable {
		return fmt.Errorf("marketplace: cu overflow on slot %d: %d > %d", n, cuUsed, s.CUAvailable)
	}
	s.CUUsed = cuUsed
	return nil
}

// Advance retires the current slot (forcing it to Expired unless the
// caller already transitioned it to a terminal state this tick) and
// admits a fresh Available slot at current+W. Exactly one slot is retired
// and one admitted per call.
func (m *Marketplace) Advance() (retired Slot, admitted Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.slots[m.current]
	if cur.State.Kind != Filled && cur.State.Kind != Expired {
		cur.State = ExpiredState()
	}
	retired = *cur

	m.current++
	newNumber := m.current + Number(m.window) - 1
	fresh := m.newSlot(newNumber)
	m.slots[newNumber] = fresh
	admitted = *fresh

	delete(m.slots, m.current-1)
	return retired, admitted
}
