// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txstore owns transaction records keyed by id and indexed by
// submitting session, with monotone status transitions.
package txstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
)

var (
	ErrDuplicate         = errors.New("txstore: duplicate transaction id")
	ErrNoSuchTx          = errors.New("txstore: no such transaction")
	ErrInvalidTransition = errors.New("txstore: invalid status transition")
)

// InclusionKind tags whether a transaction targets the next slot (JIT) or
// a specific future slot (AoT).
type InclusionKind int

const (
	Jit InclusionKind = iota
	Aot
)

// Inclusion carries the target slot for AoT transactions.
type Inclusion struct {
	Kind         InclusionKind
	ReservedSlot marketplace.Number
}

// Transaction is a submitted bid's associated ledger entry.
type Transaction struct {
	ID           ids.TxID
	Sender       ids.SessionID
	Inclusion    Inclusion
	Status       Status
	ComputeUnits uint64
	PriorityFee  money.Amount
	Data         []byte
	CreatedAt    time.Time
	IncludedAt   *time.Time
}

type inclusionJSON struct {
	Type         string              `json:"type"`
	ReservedSlot *marketplace.Number `json:"reserved_slot,omitempty"`
}

type txJSON struct {
	ID           ids.TxID      `json:"id"`
	Sender       ids.SessionID `json:"sender"`
	Inclusion    inclusionJSON `json:"inclusion_type"`
	Status       Status        `json:"status"`
	ComputeUnits uint64        `json:"compute_units"`
	PriorityFee  money.Amount  `json:"priority_fee"`
	Data         []byte        `json:"data"`
	CreatedAt    time.Time     `json:"created_at"`
	IncludedAt   *time.Time    `json:"included_at,omitempty"`
}

// MarshalJSON renders the transaction using the wire field names from spec §3.
func (tx Transaction) MarshalJSON() ([]byte, error) {
	inc := inclusionJSON{Type: "Jit"}
	if tx.Inclusion.Kind == Aot {
		inc.Type = "Aot"
		slot := tx.Inclusion.ReservedSlot
		inc.ReservedSlot = &slot
	}
	return json.Marshal(txJSON{
		ID:           tx.ID,
		Sender:       tx.Sender,
		Inclusion:    inc,
		Status:       tx.Status,
		ComputeUnits: tx.ComputeUnits,
		PriorityFee:  tx.PriorityFee,
		Data:         tx.Data,
		CreatedAt:    tx.CreatedAt,
		IncludedAt:   tx.IncludedAt,
	})
}

// Store owns transaction records, indexed both by id and by sender session.
type Store struct {
	mu        sync.RWMutex
	byID      map[ids.TxID]*Transaction
	bySession map[ids.SessionID][]ids.TxID
}

// New creates an empty transaction store.
func New() *Store {
	return &Store{
		byID:      make(map[ids.TxID]*Transaction),
		bySession: make(map[ids.SessionID][]ids.TxID),
	}
}

// Put inserts tx, failing with ErrDuplicate if tx.ID is already present.
func (s *Store) Put(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[tx.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.ID)
	}
	stored := tx
	s.byID[tx.ID] = &stored
	s.bySession[tx.Sender] = append(s.bySession[tx.Sender], tx.ID)
	return nil
}

// Get returns a copy of the transaction with the given id.
func (s *Store) Get(id ids.TxID) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// SetStatus transitions the transaction's status, failing with
// ErrInvalidTransition if the edge isn't monotone per spec §4.3.
func (s *Store) SetStatus(id ids.TxID, newStatus Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTx, id)
	}
	if !statusAllowed(tx.Status.Kind, newStatus.Kind) {
		return fmt.Errorf("%w: tx %s %s -> %s", ErrInvalidTransition, id, tx.Status.Kind, newStatus.Kind)
	}
	tx.Status = newStatus
	if newStatus.Kind == Included {
		at := newStatus.ExecutionTime
		tx.IncludedAt = &at
	}
	return nil
}

// ListBySession returns a stable-ordered page of transactions submitted by
// sid: created_at descending, then id ascending for ties.
func (s *Store) ListBySession(sid ids.SessionID, page, limit int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sid]
	all := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		all = append(all, *s.byID[id])
	}
	return paginate(all, page, limit)
}

// ListAll returns a stable-ordered page of every transaction: created_at
// descending, then id ascending for ties.
func (s *Store) ListAll(page, limit int) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Transaction, 0, len(s.byID))
	for _, tx := range s.byID {
		all = append(all, *tx)
	}
	return paginate(all, page, limit)
}

func paginate(all []Transaction, page, limit int) []Transaction {
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return idLess(all[i].ID, all[j].ID)
	})

	if limit <= 0 {
		return all
	}
	start := page * limit
	if start >= len(all) {
		return []Transaction{}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func idLess(a, b ids.TxID) bool {
	return a.String() < b.String()
}
