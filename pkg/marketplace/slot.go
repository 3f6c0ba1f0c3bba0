// Package marketplace owns the rolling window of blockspace slots and
// enforces the slot lifecycle state machine described by the core spec.
package marketplace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/money"
)

// Number is a monotonically increasing, unbounded slot number.
type Number uint64

// Kind tags the variant a SlotState currently holds.
type Kind int

const (
	Available Kind = iota
	JitAuction
	AotAuction
	Reserved
	Filled
	Expired
)

func (k Kind) String() string {
	switch k {
	case Available:
		return "Available"
	case JitAuction:
		return "JitAuction"
	case AotAuction:
		return "AotAuction"
	case Reserved:
		return "Reserved"
	case Filled:
		return "Filled"
	case Expired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// State is the tagged-union SlotState from the spec: nullary variants carry
// no payload, others carry exactly the fields relevant to that variant.
type State struct {
	Kind Kind

	// AotAuction
	EndsAt time.Time

	// Reserved
	WinnerSession ids.SessionID
	WinningTx     ids.TxID
	WinningBid    money.Amount

	// Filled
	FilledTx ids.TxID
}

// AvailableState constructs the nullary Available variant.
func AvailableState() State { return State{Kind: Available} }

// JitAuctionState constructs the nullary JitAuction variant.
func JitAuctionState() State { return State{Kind: JitAuction} }

// AotAuctionState constructs the AotAuction{ends_at} variant.
func AotAuctionState(endsAt time.Time) State {
	return State{Kind: AotAuction, EndsAt: endsAt}
}

// ReservedState constructs the Reserved{winner_session, tx_id, winning_bid} variant.
func ReservedState(winner ids.SessionID, tx ids.TxID, bid money.Amount) State {
	return State{Kind: Reserved, WinnerSession: winner, WinningTx: tx, WinningBid: bid}
}

// FilledState constructs the Filled{tx_id} variant.
func FilledState(tx ids.TxID) State {
	return State{Kind: Filled, FilledTx: tx}
}

// ExpiredState constructs the nullary Expired variant.
func ExpiredState() State { return State{Kind: Expired} }

// reservedPayload / filledPayload / aotPayload mirror the wire shapes spec §6
// requires for the object-keyed variants.
type reservedPayload struct {
	WinnerSession ids.SessionID `json:"winner_session"`
	TxID          ids.TxID      `json:"tx_id"`
	WinningBid    money.Amount  `json:"winning_bid"`
}

type filledPayload struct {
	TxID ids.TxID `json:"tx_id"`
}

type aotPayload struct {
	EndsAt time.Time `json:"ends_at"`
}

// MarshalJSON renders nullary variants as bare string literals and carrying
// variants as a single-keyed object, per spec §6.
func (s State) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case Available, JitAuction, Expired:
		return json.Marshal(s.Kind.String())
	case AotAuction:
		return json.Marshal(map[string]aotPayload{"AotAuction": {EndsAt: s.EndsAt}})
	case Reserved:
		return json.Marshal(map[string]reservedPayload{"Reserved": {
			WinnerSession: s.WinnerSession,
			TxID:          s.WinningTx,
			WinningBid:    s.WinningBid,
		}})
	case Filled:
		return json.Marshal(map[string]filledPayload{"Filled": {TxID: s.FilledTx}})
	default:
		return nil, fmt.Errorf("marketplace: unknown slot state kind %d", s.Kind)
	}
}

// Slot is one discrete execution window in the rolling window.
type Slot struct {
	Number        Number
	State         State
	EstimatedTime time.Time
	BaseFee       money.Amount
	CUAvailable   uint64
	CUUsed        uint64
}

// slotJSON is the wire projection of Slot.
type slotJSON struct {
	Number        Number       `json:"number"`
	State         State        `json:"state"`
	EstimatedTime time.Time    `json:"estimated_time"`
	BaseFee       money.Amount `json:"base_fee"`
	CUAvailable   uint64       `json:"cu_available"`
	CUUsed        uint64       `json:"cu_used"`
}

// MarshalJSON renders the slot using its wire field names.
func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{
		Number:        s.Number,
		State:         s.State,
		EstimatedTime: s.EstimatedTime,
		BaseFee:       s.BaseFee,
		CUAvailable:   s.CUAvailable,
		CUUsed:        s.CUUsed,
	})
}
