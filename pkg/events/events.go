// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events defines the marketplace's wire event types and a
// best-effort broadcaster fanning them out to subscribers.
package events

import (
	"encoding/json"
	"time"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/raiku/slotmarket/pkg/txstore"
)

// Kind tags which event variant an Event carries.
type Kind string

const (
	SlotAdvanced      Kind = "SlotAdvanced"
	SlotsUpdated      Kind = "SlotsUpdated"
	JitAuctionStarted Kind = "JitAuctionStarted"
	AotAuctionStarted Kind = "AotAuctionStarted"
	JitBidSubmitted   Kind = "JitBidSubmitted"
	AotBidSubmitted   Kind = "AotBidSubmitted"
	JitAuctionResolved Kind = "JitAuctionResolved"
	AotAuctionResolved Kind = "AotAuctionResolved"
	TransactionUpdated Kind = "TransactionUpdated"
	MarketplaceStats   Kind = "MarketplaceStats"
)

// AuctionWinner is the {session, tx_id, winning_bid} payload shared by the
// resolved-auction events.
type AuctionWinner struct {
	Session    ids.SessionID `json:"session"`
	TxID       ids.TxID      `json:"tx_id"`
	WinningBid money.Amount  `json:"winning_bid"`
}

// Event is a single broadcast event. Only the field(s) relevant to Kind
// are populated; MarshalJSON projects down to the wire shape for that kind.
type Event struct {
	Kind Kind

	// SlotAdvanced
	CurrentSlot marketplace.Number

	// SlotsUpdated
	Slots []marketplace.Slot

	// JitAuctionStarted / AotAuctionStarted
	SlotNumber marketplace.Number
	MinBid     money.Amount
	EndsAt     time.Time

	// JitBidSubmitted / AotBidSubmitted
	Session ids.SessionID
	Amount  money.Amount
	TxID    ids.TxID

	// JitAuctionResolved / AotAuctionResolved
	Winner     *AuctionWinner
	LoserCount int

	// TransactionUpdated
	TxStatus txstore.Status

	// MarketplaceStats
	ActiveJitAuctions int
	ActiveAotAuctions int
	TotalTransactions int
}

// MarshalJSON renders Event as {"type": Kind, ...payload fields}, matching
// the tagged enumeration from spec.md §6.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case SlotAdvanced:
		return json.Marshal(struct {
			Type        Kind               `json:"type"`
			CurrentSlot marketplace.Number `json:"current_slot"`
		}{e.Kind, e.CurrentSlot})
	case SlotsUpdated:
		return json.Marshal(struct {
			Type  Kind              `json:"type"`
			Slots []marketplace.Slot `json:"slots"`
		}{e.Kind, e.Slots})
	case JitAuctionStarted:
		return json.Marshal(struct {
			Type       Kind               `json:"type"`
			SlotNumber marketplace.Number `json:"slot_number"`
			MinBid     money.Amount       `json:"min_bid"`
		}{e.Kind, e.SlotNumber, e.MinBid})
	case AotAuctionStarted:
		return json.Marshal(struct {
			Type       Kind               `json:"type"`
			SlotNumber marketplace.Number `json:"slot_number"`
			MinBid     money.Amount       `json:"min_bid"`
			EndsAt     time.Time          `json:"ends_at"`
		}{e.Kind, e.SlotNumber, e.MinBid, e.EndsAt})
	case JitBidSubmitted, AotBidSubmitted:
		return json.Marshal(struct {
			Type       Kind               `json:"type"`
			SlotNumber marketplace.Number `json:"slot_number"`
			Session    ids.SessionID      `json:"session"`
			Amount     money.Amount       `json:"amount"`
			TxID       ids.TxID           `json:"tx_id"`
		}{e.Kind, e.SlotNumber, e.Session, e.Amount, e.TxID})
	case JitAuctionResolved:
		return json.Marshal(struct {
			Type       Kind               `json:"type"`
			SlotNumber marketplace.Number `json:"slot_number"`
			Winner     *AuctionWinner     `json:"winner,omitempty"`
		}{e.Kind, e.SlotNumber, e.Winner})
	case AotAuctionResolved:
		return json.Marshal(struct {
			Type       Kind               `json:"type"`
			SlotNumber marketplace.Number `json:"slot_number"`
			Winner     *AuctionWinner     `json:"winner,omitempty"`
			LoserCount int                `json:"loser_count"`
		}{e.Kind, e.SlotNumber, e.Winner, e.LoserCount})
	case TransactionUpdated:
		return json.Marshal(struct {
			Type   Kind          `json:"type"`
			TxID   ids.TxID      `json:"tx_id"`
			Status txstore.Status `json:"status"`
		}{e.Kind, e.TxID, e.TxStatus})
	case MarketplaceStats:
		return json.Marshal(struct {
			Type              Kind               `json:"type"`
			CurrentSlot       marketplace.Number `json:"current_slot"`
			ActiveJitAuctions int                `json:"active_jit_auctions"`
			ActiveAotAuctions int                `json:"active_aot_auctions"`
			TotalTransactions int                `json:"total_transactions"`
		}{e.Kind, e.CurrentSlot, e.ActiveJitAuctions, e.ActiveAotAuctions, e.TotalTransactions})
	default:
		return json.Marshal(struct {
			Type Kind `json:"type"`
		}{e.Kind})
	}
}
