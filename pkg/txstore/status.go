package txstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/raiku/slotmarket/pkg/marketplace"
)

// FailReason names why a transaction ended in Failed.
type FailReason string

const (
	FailOutbid    FailReason = "Outbid"
	FailExpired   FailReason = "Expired"
	FailNoBidders FailReason = "NoBidders"
)

// StatusKind tags the TxStatus variant.
type StatusKind int

const (
	Pending StatusKind = iota
	AuctionWon
	Included
	Failed
)

func (k StatusKind) String() string {
	switch k {
	case Pending:
		return "Pending"
	case AuctionWon:
		return "AuctionWon"
	case Included:
		return "Included"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status is the tagged-union TxStatus from the spec.
type Status struct {
	Kind StatusKind

	// AuctionWon, Included
	Slot marketplace.Number

	// Included
	ExecutionTime time.Time

	// Failed
	Reason FailReason
}

func PendingStatus() Status { return Status{Kind: Pending} }

func AuctionWonStatus(slot marketplace.Number) Status {
	return Status{Kind: AuctionWon, Slot: slot}
}

func IncludedStatus(slot marketplace.Number, at time.Time) Status {
	return Status{Kind: Included, Slot: slot, ExecutionTime: at}
}

func FailedStatus(reason FailReason) Status {
	return Status{Kind: Failed, Reason: reason}
}

type auctionWonPayload struct {
	Slot marketplace.Number `json:"slot"`
}

type includedPayload struct {
	Slot          marketplace.Number `json:"slot"`
	ExecutionTime time.Time          `json:"execution_time"`
}

type failedPayload struct {
	Reason FailReason `json:"reason"`
}

// MarshalJSON renders Pending as a string literal and the carrying variants
// as single-keyed objects, per spec §6.
func (s Status) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case Pending:
		return json.Marshal("Pending")
	case AuctionWon:
		return json.Marshal(map[string]auctionWonPayload{"AuctionWon": {Slot: s.Slot}})
	case Included:
		return json.Marshal(map[string]includedPayload{"Included": {Slot: s.Slot, ExecutionTime: s.ExecutionTime}})
	case Failed:
		return json.Marshal(map[string]failedPayload{"Failed": {Reason: s.Reason}})
	default:
		return nil, fmt.Errorf("txstore: unknown status kind %d", s.Kind)
	}
}

// statusTransitions lists the monotone edges allowed by spec §4.3.
var statusTransitions = map[StatusKind]map[StatusKind]bool{
	Pending:    {AuctionWon: true, Failed: true},
	AuctionWon: {Included: true, Failed: true},
	Included:   {},
	Failed:     {},
}

func statusAllowed(from, to StatusKind) bool {
	edges, ok := statusTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
