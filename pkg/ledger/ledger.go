// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger is the balance hook: a minimal debit/credit contract
// backing bid admission and refunds. It carries no knowledge of auctions
// or slots — only session balances.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/money"
)

// ErrInsufficientBalance is returned when a debit would drive a session's
// balance negative.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Ledger holds per-session balances, seeded lazily at StartingBalance on
// first touch.
type Ledger struct {
	mu              sync.Mutex
	balances        map[ids.SessionID]money.Amount
	startingBalance money.Amount
	log             log.Logger
}

// New creates a Ledger that seeds unseen sessions at startingBalance.
func New(startingBalance money.Amount, logger log.Logger) *Ledger {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Ledger{
		balances:        make(map[ids.SessionID]money.Amount),
		startingBalance: startingBalance,
		log:             logger,
	}
}

// Balance returns the session's current balance, seeding it first if unseen.
func (l *Ledger) Balance(session ids.SessionID) money.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(session)
}

func (l *Ledger) balanceLocked(session ids.SessionID) money.Amount {
	bal, ok := l.balances[session]
	if !ok {
		bal = l.startingBalance
		l.balances[session] = bal
	}
	return bal
}

// Debit subtracts amount from session's balance, failing with
// ErrInsufficientBalance and leaving the balance unchanged if amount
// exceeds what's available.
func (l *Ledger) Debit(session ids.SessionID, amount money.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(session)
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: session %s has %s, needs %s", ErrInsufficientBalance, session, bal, amount)
	}
	l.balances[session] = bal.Sub(amount)
	l.log.Debug("ledger debit", "session", session.String(), "amount", amount.String())
	return nil
}

// Credit adds amount back to session's balance. Used for refunds on
// outbid, auction loss, and unfilled-slot expiry.
func (l *Ledger) Credit(session ids.SessionID, amount money.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(session)
	l.balances[session] = bal.Add(amount)
	l.log.Debug("ledger credit", "session", session.String(), "amount", amount.String())
}

// TotalHeld sums every session's current balance, for the conservation
// invariant checked in tests (spec §8 invariant 3).
func (l *Ledger) TotalHeld() money.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := money.Zero
	for _, bal := range l.balances {
		total = total.Add(bal)
	}
	return total
}
