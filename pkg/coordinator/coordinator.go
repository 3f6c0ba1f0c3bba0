// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator is the sole entry point for cross-component
// mutations. It enforces the lock order marketplace -> auctions ->
// transactions -> ledger, buffers every event produced inside a step
// locally, and publishes them only after every lock involved in that step
// has been released.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raiku/slotmarket/pkg/auctionmgr"
	"github.com/raiku/slotmarket/pkg/clock"
	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/events"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/ledger"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/metric"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/raiku/slotmarket/pkg/txstore"
)

// These are the values of the BidsRejected metric's "reason" label.
const (
	rejectInsufficientBalance = "insufficient_balance"
	rejectBelowMinimum        = "below_minimum"
	rejectLeadTooSmall        = "lead_too_small"
	rejectOther               = "other"
)

// BidResult is returned by the bid-submission operations.
type BidResult struct {
	TxID ids.TxID
	Slot marketplace.Number
}

// Coordinator composes the marketplace, auction manager, transaction
// store, ledger, and event broadcaster into the marketplace's public
// operations.
type Coordinator struct {
	cfg config.Config
	log log.Logger

	marketplace *marketplace.Marketplace
	auctions    *auctionmgr.Manager
	txs         *txstore.Store
	ledger      *ledger.Ledger
	bus         *events.Broadcaster
	metrics     *metric.Metrics

	ticker *clock.Ticker
}

// New wires a Coordinator from its components, each already constructed
// per cfg.
func New(cfg config.Config, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Coordinator{
		cfg:         cfg,
		log:         logger,
		marketplace: marketplace.New(cfg),
		auctions:    auctionmgr.New(cfg, logger),
		txs:         txstore.New(),
		ledger:      ledger.New(cfg.StartingBalance, logger),
		bus:         events.NewBroadcaster(cfg.EventBuffer, logger),
		metrics:     metric.New(),
	}
}

// Marketplace exposes read-only access to the slot window, for the HTTP
// boundary.
func (c *Coordinator) Marketplace() *marketplace.Marketplace { return c.marketplace }

// Transactions exposes read-only access to the transaction store.
func (c *Coordinator) Transactions() *txstore.Store { return c.txs }

// Ledger exposes read-only access to session balances.
func (c *Coordinator) Ledger() *ledger.Ledger { return c.ledger }

// Events exposes the broadcaster for subscription.
func (c *Coordinator) Events() *events.Broadcaster { return c.bus }

// Metrics exposes the Prometheus instruments for the /metrics endpoint.
func (c *Coordinator) Metrics() *metric.Metrics { return c.metrics }

// Stats is a point-in-time snapshot mirroring the MarketplaceStats event
// payload, for synchronous reads over HTTP.
type Stats struct {
	CurrentSlot       marketplace.Number
	ActiveJitAuctions int
	ActiveAotAuctions int
	TotalTransactions int
}

// Stats returns the current marketplace statistics snapshot.
func (c *Coordinator) Stats() Stats {
	return Stats{
		CurrentSlot:       c.marketplace.Current(),
		ActiveJitAuctions: boolToInt(c.auctions.HasJit()),
		ActiveAotAuctions: c.auctions.ActiveAotCount(),
		TotalTransactions: len(c.txs.ListAll(0, 0)),
	}
}

// Run starts the background clock, calling Tick every cfg.AdvanceInterval
// until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	c.ticker = clock.New(c.cfg.AdvanceInterval)
	for {
		select {
		case now := <-c.ticker.C():
			c.Tick(now)
		case <-ctx.Done():
			c.ticker.Stop()
			return
		}
	}
}

// SubmitJitBid admits a sealed first-price bid for the immediate next
// slot, per spec.md §4.4.
func (c *Coordinator) SubmitJitBid(session ids.SessionID, amount money.Amount, cu uint64, data []byte) (BidResult, error) {
	admitStart := time.Now()
	defer func() {
		c.metrics.BidLatency.Observe(time.Since(admitStart).Seconds())
	}()

	now := admitStart
	current := c.marketplace.Current()
	slot := current + 1

	if err := c.ledger.Debit(session, amount); err != nil {
		c.metrics.BidsRejected.WithLabelValues(rejectInsufficientBalance).Inc()
		return BidResult{}, err
	}

	txID := ids.Generate()
	bid := auctionmgr.Bid{Session: session, Amount: amount, TxID: txID, SubmittedAt: now}

	_, created := c.auctions.OpenJit(slot, now)
	prior, err := c.auctions.SubmitJit(slot, bid)
	if err != nil {
		c.ledger.Credit(session, amount)
		c.metrics.BidsRejected.WithLabelValues(rejectBelowMinimum).Inc()
		if created {
			// The auction was just opened for this bid alone; since it
			// was rejected, remove it rather than leave an empty auction
			// in state with no corresponding slot transition or event.
			c.auctions.CancelJit(slot)
		}
		return BidResult{}, err
	}
	c.metrics.JitBidsSubmitted.Inc()

	if created {
		c.metrics.JitAuctionsOpened.Inc()
		if getErr := c.setSlotStateIfAvailable(slot, marketplace.JitAuctionState()); getErr != nil {
			c.log.Error("jit slot transition failed", "slot", slot, "err", getErr)
		}
	}

	tx := txstore.Transaction{
		ID:           txID,
		Sender:       session,
		Inclusion:    txstore.Inclusion{Kind: txstore.Jit, ReservedSlot: slot},
		Status:       txstore.PendingStatus(),
		ComputeUnits: cu,
		PriorityFee:  amount,
		Data:         data,
		CreatedAt:    now,
	}
	if err := c.txs.Put(tx); err != nil {
		c.log.Error("duplicate jit tx id", "tx", txID, "err", err)
	}

	if created {
		c.bus.Publish(events.Event{Kind: events.JitAuctionStarted, SlotNumber: slot, MinBid: c.auctions.JitMinBid()})
	}
	if prior != nil {
		c.failOutbid(*prior)
	}
	c.bus.Publish(events.Event{Kind: events.JitBidSubmitted, SlotNumber: slot, Session: session, Amount: amount, TxID: txID})

	return BidResult{TxID: txID, Slot: slot}, nil
}

// SubmitAotBid admits an open English-auction bid targeting a specific
// future slot, per spec.md §4.4.
func (c *Coordinator) SubmitAotBid(session ids.SessionID, slot marketplace.Number, amount money.Amount, cu uint64, data []byte) (BidResult, error) {
	admitStart := time.Now()
	defer func() {
		c.metrics.BidLatency.Observe(time.Since(admitStart).Seconds())
	}()

	now := admitStart
	current := c.marketplace.Current()

	if uint64(slot) < uint64(current)+c.cfg.AotMinLead {
		c.metrics.BidsRejected.WithLabelValues(rejectLeadTooSmall).Inc()
		return BidResult{}, fmt.Errorf("%w: slot %d < current %d + lead %d", auctionmgr.ErrLeadTooSmall, slot, current, c.cfg.AotMinLead)
	}
	if uint64(slot) >= uint64(current)+uint64(c.cfg.SlotWindow) {
		c.metrics.BidsRejected.WithLabelValues(rejectOther).Inc()
		return BidResult{}, fmt.Errorf("%w: slot %d >= current %d + window %d", auctionmgr.ErrSlotOutOfWindow, slot, current, c.cfg.SlotWindow)
	}

	if err := c.ledger.Debit(session, amount); err != nil {
		c.metrics.BidsRejected.WithLabelValues(rejectInsufficientBalance).Inc()
		return BidResult{}, err
	}

	created := !c.auctions.HasAot(slot)
	endsAt := now.Add(c.cfg.AotDuration)
	auc, err := c.auctions.OpenAot(slot, current, endsAt)
	if err != nil {
		c.ledger.Credit(session, amount)
		c.metrics.BidsRejected.WithLabelValues(rejectOther).Inc()
		return BidResult{}, err
	}

	txID := ids.Generate()
	bid := auctionmgr.Bid{Session: session, Amount: amount, TxID: txID, SubmittedAt: now}
	if err := c.auctions.SubmitAot(slot, bid, now); err != nil {
		c.ledger.Credit(session, amount)
		c.metrics.BidsRejected.WithLabelValues(rejectBelowMinimum).Inc()
		if created {
			// Same rollback as the JIT path: a just-opened auction whose
			// only bid was rejected must not persist as a phantom auction.
			c.auctions.CancelAot(slot)
		}
		return BidResult{}, err
	}
	c.metrics.AotBidsSubmitted.Inc()

	if created {
		c.metrics.AotAuctionsOpened.Inc()
		if getErr := c.setSlotStateIfAvailable(slot, marketplace.AotAuctionState(auc.EndsAt)); getErr != nil {
			c.log.Error("aot slot transition failed", "slot", slot, "err", getErr)
		}
	}

	tx := txstore.Transaction{
		ID:           txID,
		Sender:       session,
		Inclusion:    txstore.Inclusion{Kind: txstore.Aot, ReservedSlot: slot},
		Status:       txstore.PendingStatus(),
		ComputeUnits: cu,
		PriorityFee:  amount,
		Data:         data,
		CreatedAt:    now,
	}
	if err := c.txs.Put(tx); err != nil {
		c.log.Error("duplicate aot tx id", "tx", txID, "err", err)
	}

	if created {
		c.bus.Publish(events.Event{Kind: events.AotAuctionStarted, SlotNumber: slot, MinBid: c.auctions.AotMinBid(), EndsAt: auc.EndsAt})
	}
	c.bus.Publish(events.Event{Kind: events.AotBidSubmitted, SlotNumber: slot, Session: session, Amount: amount, TxID: txID})

	return BidResult{TxID: txID, Slot: slot}, nil
}

// OpenAotAuction creates the AoT auction for slot ahead of any bid,
// transitioning the slot to AotAuction{ends_at} if it is still Available.
// Repeating the call for a slot that already has an open auction is a
// no-op, matching open_aot's idempotent-per-slot contract.
func (c *Coordinator) OpenAotAuction(slot marketplace.Number, endsAt time.Time) error {
	current := c.marketplace.Current()
	if uint64(slot) < uint64(current)+c.cfg.AotMinLead {
		return fmt.Errorf("%w: slot %d < current %d + lead %d", auctionmgr.ErrLeadTooSmall, slot, current, c.cfg.AotMinLead)
	}
	if uint64(slot) >= uint64(current)+uint64(c.cfg.SlotWindow) {
		return fmt.Errorf("%w: slot %d >= current %d + window %d", auctionmgr.ErrSlotOutOfWindow, slot, current, c.cfg.SlotWindow)
	}

	created := !c.auctions.HasAot(slot)
	auc, err := c.auctions.OpenAot(slot, current, endsAt)
	if err != nil {
		return err
	}
	if created {
		c.metrics.AotAuctionsOpened.Inc()
		if getErr := c.setSlotStateIfAvailable(slot, marketplace.AotAuctionState(auc.EndsAt)); getErr != nil {
			c.log.Error("aot slot transition failed", "slot", slot, "err", getErr)
		}
		c.bus.Publish(events.Event{Kind: events.AotAuctionStarted, SlotNumber: slot, MinBid: c.auctions.AotMinBid(), EndsAt: auc.EndsAt})
	}
	return nil
}

// setSlotStateIfAvailable transitions slot to newState only if it is
// still Available, so a repeated open_for/open_aot call stays idempotent.
func (c *Coordinator) setSlotStateIfAvailable(slot marketplace.Number, newState marketplace.State) error {
	s, ok := c.marketplace.Get(slot)
	if !ok {
		return fmt.Errorf("%w: %d", marketplace.ErrNoSuchSlot, slot)
	}
	if s.State.Kind != marketplace.Available {
		return nil
	}
	return c.marketplace.SetState(slot, newState)
}

// refundReservedWinner credits back a Reserved slot's winner and marks its
// transaction Failed{Expired}, for the case where a reservation a winner
// already paid for can never be executed: the slot retired unfilled, or
// the reservation itself could never be made (e.g. its target fell outside
// the tracked window). Per spec.md §4.4 step 2, funds are kept only on
// execution.
func (c *Coordinator) refundReservedWinner(session ids.SessionID, txID ids.TxID, amount money.Amount) []events.Event {
	c.ledger.Credit(session, amount)
	c.metrics.RefundsIssued.Inc()
	if err := c.txs.SetStatus(txID, txstore.FailedStatus(txstore.FailExpired)); err != nil {
		c.log.Error("failed to mark reserved tx failed", "tx", txID, "err", err)
		return nil
	}
	if tx, ok := c.txs.Get(txID); ok {
		return []events.Event{{Kind: events.TransactionUpdated, TxID: tx.ID, TxStatus: tx.Status}}
	}
	return nil
}

// failOutbid credits back a JIT bid that was just replaced and marks its
// transaction Failed{Outbid}.
func (c *Coordinator) failOutbid(prior auctionmgr.Bid) {
	c.ledger.Credit(prior.Session, prior.Amount)
	c.metrics.RefundsIssued.Inc()
	if err := c.txs.SetStatus(prior.TxID, txstore.FailedStatus(txstore.FailOutbid)); err != nil {
		c.log.Error("failed to mark outbid tx failed", "tx", prior.TxID, "err", err)
		return
	}
	if tx, ok := c.txs.Get(prior.TxID); ok {
		c.bus.Publish(events.Event{Kind: events.TransactionUpdated, TxID: tx.ID, TxStatus: tx.Status})
	}
}

// Tick advances the marketplace one slot and resolves every auction due
// this cycle, per spec.md §4.4's four-step algorithm. All events produced
// are buffered locally and published in the prescribed final order only
// after state mutation completes.
func (c *Coordinator) Tick(now time.Time) {
	tickStart := now
	defer func() {
		c.metrics.TickDuration.Observe(time.Since(tickStart).Seconds())
	}()

	var txUpdates []events.Event
	var auctionResolved []events.Event

	// Step 1: a Reserved slot at the current number executes this tick.
	current := c.marketplace.Current()
	if slot, ok := c.marketplace.Get(current); ok && slot.State.Kind == marketplace.Reserved {
		winTx := slot.State.WinningTx
		if err := c.marketplace.SetState(current, marketplace.FilledState(winTx)); err != nil {
			c.log.Error("failed to mark slot filled, refunding winner", "slot", current, "err", err)
			txUpdates = append(txUpdates, c.refundReservedWinner(slot.State.WinnerSession, winTx, slot.State.WinningBid)...)
		} else if err := c.txs.SetStatus(winTx, txstore.IncludedStatus(current, now)); err != nil {
			c.log.Error("failed to mark tx included", "tx", winTx, "err", err)
		} else if tx, ok := c.txs.Get(winTx); ok {
			c.metrics.SlotsFilled.Inc()
			txUpdates = append(txUpdates, events.Event{Kind: events.TransactionUpdated, TxID: tx.ID, TxStatus: tx.Status})
		}
	}

	// Step 2: advance the rolling window.
	retired, _ := c.marketplace.Advance()
	c.metrics.SlotsAdvanced.Inc()
	if retired.State.Kind == marketplace.Expired {
		c.metrics.SlotsExpired.Inc()
	}
	newCurrent := c.marketplace.Current()
	// The slot that just became current is the one the imminent-slot rule
	// names "current_slot + 1", evaluated against the pre-advance current.
	targetSlot := newCurrent

	// Step 3: resolve auctions in the deterministic order from spec.md §4.2.
	if c.auctions.HasJit() {
		slot, res, ok := c.auctions.ResolveJit()
		if ok {
			ev, txs := c.applyResolution(slot, res, events.JitAuctionResolved)
			auctionResolved = append(auctionResolved, ev)
			txUpdates = append(txUpdates, txs...)
		}
	}
	if c.auctions.HasAot(targetSlot) {
		res, err := c.auctions.ResolveAot(targetSlot)
		if err == nil {
			ev, txs := c.applyResolution(targetSlot, res, events.AotAuctionResolved)
			auctionResolved = append(auctionResolved, ev)
			txUpdates = append(txUpdates, txs...)
		}
	}
	for _, slot := range c.auctions.AotSlotsDue(now) {
		res, err := c.auctions.ResolveAot(slot)
		if err != nil {
			continue
		}
		ev, txs := c.applyResolution(slot, res, events.AotAuctionResolved)
		auctionResolved = append(auctionResolved, ev)
		txUpdates = append(txUpdates, txs...)
	}

	// Step 4: publish in the prescribed order.
	c.bus.Publish(events.Event{Kind: events.SlotAdvanced, CurrentSlot: newCurrent})
	for _, ev := range auctionResolved {
		c.bus.Publish(ev)
	}
	for _, ev := range txUpdates {
		c.bus.Publish(ev)
	}
	c.bus.Publish(events.Event{Kind: events.SlotsUpdated, Slots: c.marketplace.Window()})
	activeAot := c.auctions.ActiveAotCount()
	c.metrics.ActiveAotAuctions.Set(float64(activeAot))
	c.bus.Publish(events.Event{
		Kind:              events.MarketplaceStats,
		CurrentSlot:       newCurrent,
		ActiveJitAuctions: boolToInt(c.auctions.HasJit()),
		ActiveAotAuctions: activeAot,
		TotalTransactions: len(c.txs.ListAll(0, 0)),
	})
}

// applyResolution turns a single auction Resolution into marketplace and
// transaction-store mutations, returning the auction-resolved event and
// every TransactionUpdated event it produced.
func (c *Coordinator) applyResolution(slot marketplace.Number, res auctionmgr.Resolution, kind events.Kind) (events.Event, []events.Event) {
	var txUpdates []events.Event

	var winnerPayload *events.AuctionWinner
	if res.Winner != nil {
		w := res.Winner
		if err := c.marketplace.ReserveIdempotent(slot, marketplace.ReservedState(w.Session, w.TxID, w.WinningBid)); err != nil {
			// The winner already paid their bid but the slot they won can
			// never be executed (e.g. it fell outside the tracked window
			// by the time this resolved). Refund rather than leave them
			// charged for a reservation that doesn't exist.
			c.log.Error("failed to reserve slot, refunding winner", "slot", slot, "err", err)
			txUpdates = append(txUpdates, c.refundReservedWinner(w.Session, w.TxID, w.WinningBid)...)
		} else {
			if err := c.txs.SetStatus(w.TxID, txstore.AuctionWonStatus(slot)); err != nil {
				c.log.Error("failed to mark tx auction-won", "tx", w.TxID, "err", err)
			} else if tx, ok := c.txs.Get(w.TxID); ok {
				txUpdates = append(txUpdates, events.Event{Kind: events.TransactionUpdated, TxID: tx.ID, TxStatus: tx.Status})
			}
			winnerPayload = &events.AuctionWinner{Session: w.Session, TxID: w.TxID, WinningBid: w.WinningBid}
		}
	} else {
		if err := c.marketplace.SetState(slot, marketplace.ExpiredState()); err != nil && !errors.Is(err, marketplace.ErrInvalidTransition) {
			c.log.Error("failed to expire slot", "slot", slot, "err", err)
		}
	}

	for _, loser := range res.Losers {
		c.ledger.Credit(loser.Session, loser.Amount)
		c.metrics.RefundsIssued.Inc()
		if err := c.txs.SetStatus(loser.TxID, txstore.FailedStatus(txstore.FailOutbid)); err != nil {
			c.log.Error("failed to mark loser tx failed", "tx", loser.TxID, "err", err)
			continue
		}
		if tx, ok := c.txs.Get(loser.TxID); ok {
			txUpdates = append(txUpdates, events.Event{Kind: events.TransactionUpdated, TxID: tx.ID, TxStatus: tx.Status})
		}
	}

	ev := events.Event{Kind: kind, SlotNumber: slot, Winner: winnerPayload}
	if kind == events.AotAuctionResolved {
		ev.LoserCount = len(res.Losers)
	}
	return ev, txUpdates
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
