package coordinator

import (
	"testing"
	"time"

	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/events"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/raiku/slotmarket/pkg/txstore"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SlotWindow = 100
	cfg.BaseFee = money.FromFloatSOL(0.001)
	cfg.JitMinBidMultiplier = 1
	cfg.AotMinBidMultiplier = 1
	cfg.AotMinLead = 35
	cfg.AotDuration = 35 * time.Second
	cfg.StartingBalance = money.FromFloatSOL(10)
	return cfg
}

func TestJitHappyPath(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	a := ids.Generate()
	b := ids.Generate()

	resA, err := c.SubmitJitBid(a, money.FromFloatSOL(0.002), 1000, nil)
	require.NoError(err)

	resB, err := c.SubmitJitBid(b, money.FromFloatSOL(0.003), 1000, nil)
	require.NoError(err)
	require.Equal(resA.Slot, resB.Slot)

	txA, ok := c.Transactions().Get(resA.TxID)
	require.True(ok)
	require.Equal(txstore.Failed, txA.Status.Kind)
	require.Equal(txstore.FailOutbid, txA.Status.Reason)
	require.Equal(money.FromFloatSOL(10), c.Ledger().Balance(a))

	require.Equal(money.FromFloatSOL(10-0.003), c.Ledger().Balance(b))

	c.Tick(time.Now())

	slot, ok := c.Marketplace().Get(resA.Slot)
	require.True(ok)
	require.Equal(marketplace.Reserved, slot.State.Kind)
	require.Equal(b, slot.State.WinnerSession)

	txB, ok := c.Transactions().Get(resB.TxID)
	require.True(ok)
	require.Equal(txstore.AuctionWon, txB.Status.Kind)

	// The next tick fills the Reserved slot and then Advance retires it, so
	// it is no longer tracked once Tick returns; the fill shows up as the
	// winning transaction becoming Included for that slot.
	c.Tick(time.Now())

	_, ok = c.Marketplace().Get(resB.Slot)
	require.False(ok)

	txB, ok = c.Transactions().Get(resB.TxID)
	require.True(ok)
	require.Equal(txstore.Included, txB.Status.Kind)
	require.Equal(resB.Slot, txB.Status.Slot)
}

func TestAotEnglishAuction(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	current := c.Marketplace().Current()
	target := current + 50

	a := ids.Generate()
	b := ids.Generate()

	resA1, err := c.SubmitAotBid(a, target, money.FromFloatSOL(0.001), 1000, nil)
	require.NoError(err)
	_, err = c.SubmitAotBid(b, target, money.FromFloatSOL(0.0015), 1000, nil)
	require.NoError(err)
	resA2, err := c.SubmitAotBid(a, target, money.FromFloatSOL(0.002), 1000, nil)
	require.NoError(err)

	// Force resolution: it fires on the tick that brings current to target
	// (the imminent-slot rule), one tick after current+1 == target.
	for c.Marketplace().Current()+1 != target {
		c.Tick(time.Now())
	}
	c.Tick(time.Now())

	slot, ok := c.Marketplace().Get(target)
	require.True(ok)
	require.Equal(marketplace.Reserved, slot.State.Kind)
	require.Equal(a, slot.State.WinnerSession)
	require.Equal(money.FromFloatSOL(0.002), slot.State.WinningBid)

	txA1, ok := c.Transactions().Get(resA1.TxID)
	require.True(ok)
	require.Equal(txstore.Failed, txA1.Status.Kind)

	txA2, ok := c.Transactions().Get(resA2.TxID)
	require.True(ok)
	require.Equal(txstore.AuctionWon, txA2.Status.Kind)

	require.Equal(money.FromFloatSOL(10-0.002), c.Ledger().Balance(a))
	require.Equal(money.FromFloatSOL(10), c.Ledger().Balance(b))
}

func TestNoBiddersExpiry(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	current := c.Marketplace().Current()
	target := current + 1
	c.auctions.OpenJit(target, time.Now())

	ch, _ := c.bus.Subscribe()
	c.Tick(time.Now())

	slot, ok := c.Marketplace().Get(target)
	require.True(ok)
	require.Equal(marketplace.Expired, slot.State.Kind)

	var sawResolved bool
	drain := true
	for drain {
		select {
		case ev := <-ch:
			if ev.Kind == events.JitAuctionResolved {
				sawResolved = true
				require.Nil(ev.Winner)
			}
		default:
			drain = false
		}
	}
	require.True(sawResolved)
}

func TestInsufficientBalanceRejected(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	cfg.StartingBalance = money.FromFloatSOL(0.0005)
	c := New(cfg, log.NoOp())

	session := ids.Generate()
	_, err := c.SubmitJitBid(session, money.FromFloatSOL(0.001), 1000, nil)
	require.Error(err)
	require.Equal(money.FromFloatSOL(0.0005), c.Ledger().Balance(session))
	require.Empty(c.Transactions().ListBySession(session, 0, 10))
}

func TestLeadTooSmallRejected(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	current := c.Marketplace().Current()
	session := ids.Generate()
	_, err := c.SubmitAotBid(session, current+34, money.FromFloatSOL(0.002), 1000, nil)
	require.Error(err)

	_, err = c.SubmitAotBid(session, current+35, money.FromFloatSOL(0.002), 1000, nil)
	require.NoError(err)
}

func TestAotTargetOutsideWindowRejected(t *testing.T) {
	require := require.New(t)
	cfg := testConfig()
	c := New(cfg, log.NoOp())

	current := c.Marketplace().Current()
	session := ids.Generate()

	_, err := c.SubmitAotBid(session, current+marketplace.Number(cfg.SlotWindow), money.FromFloatSOL(0.002), 1000, nil)
	require.Error(err)
	require.Equal(money.FromFloatSOL(10), c.Ledger().Balance(session))

	_, err = c.SubmitAotBid(session, current+marketplace.Number(cfg.SlotWindow)-1, money.FromFloatSOL(0.002), 1000, nil)
	require.NoError(err)
}

func TestJitBelowMinimumFirstBidLeavesNoAuctionBehind(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	session := ids.Generate()
	_, err := c.SubmitJitBid(session, money.FromFloatSOL(0.0005), 1000, nil)
	require.Error(err)
	require.False(c.auctions.HasJit())
	require.Equal(money.FromFloatSOL(10), c.Ledger().Balance(session))

	current := c.Marketplace().Current()
	target := current + 1
	slot, ok := c.Marketplace().Get(target)
	require.True(ok)
	require.Equal(marketplace.Available, slot.State.Kind)

	ch, _ := c.bus.Subscribe()
	c.Tick(time.Now())

	drain := true
	for drain {
		select {
		case ev := <-ch:
			require.NotEqual(events.JitAuctionResolved, ev.Kind)
		default:
			drain = false
		}
	}
}

func TestAotBelowMinimumFirstBidLeavesNoAuctionBehind(t *testing.T) {
	require := require.New(t)
	c := New(testConfig(), log.NoOp())

	current := c.Marketplace().Current()
	target := current + 35
	session := ids.Generate()

	_, err := c.SubmitAotBid(session, target, money.FromFloatSOL(0.0005), 1000, nil)
	require.Error(err)
	require.False(c.auctions.HasAot(target))
	require.Equal(money.FromFloatSOL(10), c.Ledger().Balance(session))

	slot, ok := c.Marketplace().Get(target)
	require.True(ok)
	require.Equal(marketplace.Available, slot.State.Kind)
}
