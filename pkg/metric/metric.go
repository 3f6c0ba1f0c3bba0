// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the marketplace's Prometheus instruments, registered
// against a private registry so repeated test construction never panics
// on duplicate registration.
type Metrics struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	SlotsAdvanced    prometheus.Counter
	SlotsExpired     prometheus.Counter
	SlotsFilled      prometheus.Counter
	JitBidsSubmitted prometheus.Counter
	AotBidsSubmitted prometheus.Counter
	JitAuctionsOpened prometheus.Counter
	AotAuctionsOpened prometheus.Counter
	BidsRejected     *prometheus.CounterVec
	RefundsIssued    prometheus.Counter
	ActiveAotAuctions prometheus.Gauge
	TickDuration     prometheus.Histogram
	BidLatency       prometheus.Histogram
}

// New creates a fresh Metrics instance registered against its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		gatherer: reg,
		SlotsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_slots_advanced_total",
			Help: "Total number of slots retired by the clock.",
		}),
		SlotsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_slots_expired_total",
			Help: "Total number of slots that retired without being filled.",
		}),
		SlotsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_slots_filled_total",
			Help: "Total number of slots executed successfully.",
		}),
		JitBidsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_jit_bids_submitted_total",
			Help: "Total number of accepted JIT bids.",
		}),
		AotBidsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_aot_bids_submitted_total",
			Help: "Total number of accepted AoT bids.",
		}),
		JitAuctionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_jit_auctions_opened_total",
			Help: "Total number of JIT auctions opened.",
		}),
		AotAuctionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_aot_auctions_opened_total",
			Help: "Total number of AoT auctions opened.",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slotmarket_bids_rejected_total",
			Help: "Total number of bids rejected by reason.",
		}, []string{"reason"}),
		RefundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slotmarket_refunds_issued_total",
			Help: "Total number of ledger credits issued as refunds.",
		}),
		ActiveAotAuctions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slotmarket_active_aot_auctions",
			Help: "Number of AoT auctions currently open.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotmarket_tick_duration_seconds",
			Help:    "Wall-clock time spent processing a single tick.",
			Buckets: prometheus.DefBuckets,
		}),
		BidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slotmarket_bid_latency_seconds",
			Help:    "Wall-clock time spent admitting a single bid.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.SlotsAdvanced, m.SlotsExpired, m.SlotsFilled,
		m.JitBidsSubmitted, m.AotBidsSubmitted,
		m.JitAuctionsOpened, m.AotAuctionsOpened,
		m.BidsRejected, m.RefundsIssued, m.ActiveAotAuctions,
		m.TickDuration, m.BidLatency,
	)

	return m
}

// Gatherer returns the Prometheus gatherer for metrics export over /metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
