// Package config holds the tunables recognized by the marketplace core,
// per spec §6.
package config

import (
	"time"

	"github.com/raiku/slotmarket/pkg/money"
)

// Config bundles every tunable the core reads. Values are set once at
// startup and never mutated afterward.
type Config struct {
	// SlotWindow is the number of slots tracked by the rolling window (W).
	SlotWindow int

	// SlotDuration is the nominal wall-clock duration of one slot.
	SlotDuration time.Duration

	// AdvanceInterval is the period between clock ticks.
	AdvanceInterval time.Duration

	// BaseFee is the fixed base fee charged per slot.
	BaseFee money.Amount

	// CUPerSlot is the compute-unit budget of a freshly admitted slot.
	CUPerSlot uint64

	// AotDuration is the default lifetime of a newly opened AoT auction.
	AotDuration time.Duration

	// AotMinLead is the minimum number of slots an AoT auction's target
	// must lead the current slot by, at creation time.
	AotMinLead uint64

	// StartingBalance is the balance a session is lazily seeded with on
	// first ledger touch.
	StartingBalance money.Amount

	// EventBuffer is the per-subscriber bounded event channel capacity.
	EventBuffer int

	// JitMinBidMultiplier is "k" in min_bid = base_fee * k for JIT auctions.
	JitMinBidMultiplier int64

	// AotMinBidMultiplier is "k" in min_bid = base_fee * k for AoT auctions.
	AotMinBidMultiplier int64
}

// Default returns the spec's literal default configuration.
func Default() Config {
	return Config{
		SlotWindow:          100,
		SlotDuration:        400 * time.Millisecond,
		AdvanceInterval:     400 * time.Millisecond,
		BaseFee:             money.FromFloatSOL(0.001),
		CUPerSlot:           48_000_000,
		AotDuration:         35 * time.Second,
		AotMinLead:          35,
		StartingBalance:     money.FromFloatSOL(100_000),
		EventBuffer:         10_000,
		JitMinBidMultiplier: 1,
		AotMinBidMultiplier: 1,
	}
}
