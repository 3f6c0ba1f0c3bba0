// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auctionmgr owns the active JIT and AoT auctions and implements
// their admission and resolution semantics. JIT and AoT share the
// capability set {open, admit_bid, resolve, is_ready} conceptually, but
// are modeled here as two concrete types dispatched by the Coordinator
// rather than a shared interface hierarchy — their admission rules
// (live-refund vs. batched-refund) differ enough that a common interface
// would just be a thin, rarely-reused abstraction.
package auctionmgr

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
)

var (
	ErrBelowMinimum    = errors.New("auctionmgr: bid below minimum")
	ErrWrongSlot       = errors.New("auctionmgr: bid targets the wrong slot")
	ErrAuctionEnded    = errors.New("auctionmgr: auction has ended")
	ErrLeadTooSmall    = errors.New("auctionmgr: target slot lead is too small")
	ErrSlotOutOfWindow = errors.New("auctionmgr: target slot is outside the tracked window")
	ErrNoSuchAuction   = errors.New("auctionmgr: no such auction")
)

// Bid is an admitted, immutable bid.
type Bid struct {
	Session     ids.SessionID
	Amount      money.Amount
	TxID        ids.TxID
	SubmittedAt time.Time
}

// Winner names the session and transaction an auction resolved in favor of.
type Winner struct {
	Session    ids.SessionID
	TxID       ids.TxID
	WinningBid money.Amount
}

// Resolution is the outcome of resolving one auction.
type Resolution struct {
	Winner *Winner
	Losers []Bid
}

// JitAuction is the sealed first-price auction for the immediate next slot.
// Only the current best bid is retained; a new strictly-higher bid
// replaces it and the prior best is refunded immediately by the caller.
type JitAuction struct {
	SlotNumber marketplace.Number
	MinBid     money.Amount
	Best       *Bid
	CreatedAt  time.Time
}

// AotAuction is the open English auction for a specific future slot. Every
// accepted bid is retained until resolution; refunds are batched.
type AotAuction struct {
	SlotNumber marketplace.Number
	MinBid     money.Amount
	Bids       []Bid
	EndsAt     time.Time
	HasEnded   bool
}

// Manager owns the single active JIT auction (if any) and the set of
// active AoT auctions, keyed by slot number.
type Manager struct {
	mu  sync.Mutex
	jit *JitAuction
	aot map[marketplace.Number]*AotAuction
	cfg config.Config
	log log.Logger
}

// New creates an empty Manager.
func New(cfg config.Config, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Manager{
		aot: make(map[marketplace.Number]*AotAuction),
		cfg: cfg,
		log: logger,
	}
}

func (m *Manager) jitMinBid() money.Amount {
	return money.Amount(int64(m.cfg.BaseFee) * m.cfg.JitMinBidMultiplier)
}

func (m *Manager) aotMinBid() money.Amount {
	return money.Amount(int64(m.cfg.BaseFee) * m.cfg.AotMinBidMultiplier)
}

// JitMinBid returns the current JIT minimum bid, base_fee * k.
func (m *Manager) JitMinBid() money.Amount { return m.jitMinBid() }

// AotMinBid returns the current AoT minimum bid, base_fee * k.
func (m *Manager) AotMinBid() money.Amount { return m.aotMinBid() }

// OpenJit creates the JIT auction for slot if none exists; repeating the
// call with the same slot is a no-op that returns the existing auction
// (idempotent per spec §4.2).
func (m *Manager) OpenJit(slot marketplace.Number, now time.Time) (JitAuction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jit != nil {
		return *m.jit, false
	}
	m.jit = &JitAuction{SlotNumber: slot, MinBid: m.jitMinBid(), CreatedAt: now}
	return *m.jit, true
}

// SubmitJit admits bid against the JIT auction for slot. On success it
// returns the prior best bid, if any, which the caller must refund.
func (m *Manager) SubmitJit(slot marketplace.Number, bid Bid) (prior *Bid, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jit == nil {
		return nil, fmt.Errorf("%w: no active jit auction", ErrNoSuchAuction)
	}
	if slot != m.jit.SlotNumber {
		return nil, fmt.Errorf("%w: bid targets %d, jit auction is for %d", ErrWrongSlot, slot, m.jit.SlotNumber)
	}
	if bid.Amount.LessThan(m.jit.MinBid) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, bid.Amount, m.jit.MinBid)
	}

	if m.jit.Best == nil || bid.Amount.GreaterThan(m.jit.Best.Amount) {
		prior = m.jit.Best
		b := bid
		m.jit.Best = &b
		return prior, nil
	}
	// Equal or lower amount: strict > required, so the existing best wins
	// the tie and this bid is simply rejected — no refund is owed because
	// nothing was ever admitted.
	return nil, fmt.Errorf("%w: %s does not exceed current best %s", ErrBelowMinimum, bid.Amount, m.jit.Best.Amount)
}

// ResolveJit removes and resolves the open JIT auction, if any, returning
// its slot number; the final result is false when none is open. JIT
// losers are always empty: the only loser at any moment was refunded at
// outbid time, not at resolution.
func (m *Manager) ResolveJit() (marketplace.Number, Resolution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jit == nil {
		return 0, Resolution{}, false
	}
	slot := m.jit.SlotNumber
	var res Resolution
	if m.jit.Best != nil {
		res.Winner = &Winner{Session: m.jit.Best.Session, TxID: m.jit.Best.TxID, WinningBid: m.jit.Best.Amount}
	}
	m.jit = nil
	return slot, res, true
}

// HasJit reports whether a JIT auction is currently open.
func (m *Manager) HasJit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jit != nil
}

// CancelJit removes the JIT auction for slot if it still holds no admitted
// bid. It rolls back an OpenJit whose immediately-following first bid was
// rejected, so a failed admission never leaves a phantom auction behind.
// A no-op if the auction has already taken a bid or no longer exists.
func (m *Manager) CancelJit(slot marketplace.Number) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jit != nil && m.jit.SlotNumber == slot && m.jit.Best == nil {
		m.jit = nil
	}
}

// OpenAot creates the AoT auction for slot, failing with ErrLeadTooSmall
// if slot doesn't lead currentSlot by at least AotMinLead and with
// ErrSlotOutOfWindow if slot lies at or beyond currentSlot + SlotWindow.
// If an auction for slot already exists, it is returned unchanged.
func (m *Manager) OpenAot(slot, currentSlot marketplace.Number, endsAt time.Time) (AotAuction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(slot) < uint64(currentSlot)+m.cfg.AotMinLead {
		return AotAuction{}, fmt.Errorf("%w: slot %d < current %d + lead %d", ErrLeadTooSmall, slot, currentSlot, m.cfg.AotMinLead)
	}
	if uint64(slot) >= uint64(currentSlot)+uint64(m.cfg.SlotWindow) {
		return AotAuction{}, fmt.Errorf("%w: slot %d >= current %d + window %d", ErrSlotOutOfWindow, slot, currentSlot, m.cfg.SlotWindow)
	}
	if existing, ok := m.aot[slot]; ok {
		return *existing, nil
	}
	auc := &AotAuction{SlotNumber: slot, MinBid: m.aotMinBid(), EndsAt: endsAt}
	m.aot[slot] = auc
	return *auc, nil
}

// SubmitAot appends bid to the AoT auction for slot's ordered bid list. No
// refund happens here: every submitted amount stays debited until
// resolution, where non-winning and non-highest-per-session bids are
// refunded as losers.
func (m *Manager) SubmitAot(slot marketplace.Number, bid Bid, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	auc, ok := m.aot[slot]
	if !ok {
		return fmt.Errorf("%w: no aot auction for slot %d", ErrNoSuchAuction, slot)
	}
	if auc.HasEnded || !now.Before(auc.EndsAt) {
		return fmt.Errorf("%w: auction for slot %d", ErrAuctionEnded, slot)
	}
	if bid.Amount.LessThan(auc.MinBid) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, bid.Amount, auc.MinBid)
	}
	auc.Bids = append(auc.Bids, bid)
	return nil
}

// ReadyToResolveAot reports whether the AoT auction for slot is eligible
// for resolution: its deadline has passed, or the current slot is about
// to become its target (the imminent-slot forced-resolution rule).
func (m *Manager) ReadyToResolveAot(slot, currentSlot marketplace.Number, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	auc, ok := m.aot[slot]
	if !ok {
		return false
	}
	return !now.Before(auc.EndsAt) || currentSlot+1 == slot
}

// ResolveAot removes and resolves the AoT auction for slot. The winner is
// the highest bid among each session's own highest bid, tie-broken by
// earliest submission. Every other bid — including a winning session's
// own lower bids — is a loser and must be refunded.
func (m *Manager) ResolveAot(slot marketplace.Number) (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	auc, ok := m.aot[slot]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: no aot auction for slot %d", ErrNoSuchAuction, slot)
	}
	delete(m.aot, slot)
	auc.HasEnded = true

	return resolveAotBids(auc.Bids), nil
}

func resolveAotBids(bids []Bid) Resolution {
	if len(bids) == 0 {
		return Resolution{}
	}

	bestBySession := make(map[ids.SessionID]Bid, len(bids))
	for _, b := range bids {
		cur, ok := bestBySession[b.Session]
		if !ok || higherBid(b, cur) {
			bestBySession[b.Session] = b
		}
	}

	candidates := make([]Bid, 0, len(bestBySession))
	for _, b := range bestBySession {
		candidates = append(candidates, b)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return higherBid(candidates[i], candidates[j])
	})
	winner := candidates[0]

	losers := make([]Bid, 0, len(bids)-1)
	winnerTaken := false
	for _, b := range bids {
		if !winnerTaken && b.TxID == winner.TxID && b.Session == winner.Session && b.Amount == winner.Amount && b.SubmittedAt.Equal(winner.SubmittedAt) {
			winnerTaken = true
			continue
		}
		losers = append(losers, b)
	}

	return Resolution{
		Winner: &Winner{Session: winner.Session, TxID: winner.TxID, WinningBid: winner.Amount},
		Losers: losers,
	}
}

// higherBid reports whether a should be preferred over b: strictly higher
// amount, or equal amount with an earlier submission time.
func higherBid(a, b Bid) bool {
	if a.Amount != b.Amount {
		return a.Amount.GreaterThan(b.Amount)
	}
	return a.SubmittedAt.Before(b.SubmittedAt)
}

// HasAot reports whether an AoT auction is currently open for slot.
func (m *Manager) HasAot(slot marketplace.Number) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.aot[slot]
	return ok
}

// CancelAot removes the AoT auction for slot if it still holds no admitted
// bids. It rolls back an OpenAot whose immediately-following first bid was
// rejected, so a failed admission never leaves a phantom auction behind.
// A no-op if the auction has already taken a bid or no longer exists.
func (m *Manager) CancelAot(slot marketplace.Number) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if auc, ok := m.aot[slot]; ok && len(auc.Bids) == 0 {
		delete(m.aot, slot)
	}
}

// ActiveAotCount reports how many AoT auctions are currently open, for
// MarketplaceStats.
func (m *Manager) ActiveAotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.aot)
}

// AotSlotsDue returns every open AoT slot number whose deadline has
// passed, in ascending order, as required by the tick resolution order
// in spec §4.2.
func (m *Manager) AotSlotsDue(now time.Time) []marketplace.Number {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]marketplace.Number, 0)
	for slot, auc := range m.aot {
		if !auc.HasEnded && !now.Before(auc.EndsAt) {
			due = append(due, slot)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}
