package auctionmgr

import (
	"testing"
	"time"

	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/marketplace"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BaseFee = money.FromFloatSOL(0.001)
	cfg.JitMinBidMultiplier = 1
	cfg.AotMinBidMultiplier = 1
	cfg.AotMinLead = 35
	return cfg
}

func TestJitBidExactlyAtMinimumAccepted(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	prior, err := m.SubmitJit(11, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.001), TxID: ids.Generate(), SubmittedAt: now})
	require.NoError(err)
	require.Nil(prior)
}

func TestJitBidBelowMinimumRejected(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	_, err := m.SubmitJit(11, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.0005), SubmittedAt: now})
	require.ErrorIs(err, ErrBelowMinimum)
}

func TestJitWrongSlotRejected(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	_, err := m.SubmitJit(12, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.002), SubmittedAt: now})
	require.ErrorIs(err, ErrWrongSlot)
}

func TestJitStrictReplacementRefundsPriorBest(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	first := ids.Generate()
	prior, err := m.SubmitJit(11, Bid{Session: first, Amount: money.FromFloatSOL(0.002), SubmittedAt: now})
	require.NoError(err)
	require.Nil(prior)

	second := ids.Generate()
	prior, err = m.SubmitJit(11, Bid{Session: second, Amount: money.FromFloatSOL(0.0021), SubmittedAt: now})
	require.NoError(err)
	require.NotNil(prior)
	require.Equal(first, prior.Session)
}

func TestJitEqualBidFirstWins(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	first := ids.Generate()
	_, err := m.SubmitJit(11, Bid{Session: first, Amount: money.FromFloatSOL(0.002), SubmittedAt: now})
	require.NoError(err)

	_, err = m.SubmitJit(11, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.002), SubmittedAt: now})
	require.ErrorIs(err, ErrBelowMinimum)

	slot, res, ok := m.ResolveJit()
	require.True(ok)
	require.Equal(marketplace.Number(11), slot)
	require.Equal(first, res.Winner.Session)
	require.Empty(res.Losers)
}

func TestJitResolveWithNoBidsHasNoWinner(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	m.OpenJit(11, time.Now())

	_, res, ok := m.ResolveJit()
	require.True(ok)
	require.Nil(res.Winner)
	require.Empty(res.Losers)
}

func TestOpenAotLeadTooSmallRejected(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()

	_, err := m.OpenAot(44, 10, now.Add(35*time.Second))
	require.ErrorIs(err, ErrLeadTooSmall)

	_, err = m.OpenAot(45, 10, now.Add(35*time.Second))
	require.NoError(err)
}

func TestAotBidAtExactDeadlineRejected(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	endsAt := now.Add(35 * time.Second)
	_, err := m.OpenAot(45, 10, endsAt)
	require.NoError(err)

	err = m.SubmitAot(45, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.002), SubmittedAt: endsAt}, endsAt)
	require.ErrorIs(err, ErrAuctionEnded)
}

func TestAotResolveHighestPerSession(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	endsAt := now.Add(35 * time.Second)
	_, err := m.OpenAot(45, 10, endsAt)
	require.NoError(err)

	a := ids.Generate()
	b := ids.Generate()

	require.NoError(m.SubmitAot(45, Bid{Session: a, Amount: money.FromFloatSOL(0.001), SubmittedAt: now}, now))
	require.NoError(m.SubmitAot(45, Bid{Session: b, Amount: money.FromFloatSOL(0.0015), SubmittedAt: now.Add(time.Second)}, now.Add(time.Second)))
	require.NoError(m.SubmitAot(45, Bid{Session: a, Amount: money.FromFloatSOL(0.002), SubmittedAt: now.Add(2 * time.Second)}, now.Add(2*time.Second)))

	res, err := m.ResolveAot(45)
	require.NoError(err)
	require.Equal(a, res.Winner.Session)
	require.True(res.Winner.WinningBid.GreaterThan(money.FromFloatSOL(0.0015)))
	require.Len(res.Losers, 2)
}

func TestOpenAotOutsideWindowRejected(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()

	_, err := m.OpenAot(110, 10, now.Add(35*time.Second))
	require.ErrorIs(err, ErrSlotOutOfWindow)

	_, err = m.OpenAot(109, 10, now.Add(35*time.Second))
	require.NoError(err)
}

func TestCancelJitRemovesEmptyAuctionOnly(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	m.OpenJit(11, now)

	m.CancelJit(11)
	require.False(m.HasJit())

	m.OpenJit(11, now)
	_, err := m.SubmitJit(11, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.002), TxID: ids.Generate(), SubmittedAt: now})
	require.NoError(err)

	m.CancelJit(11)
	require.True(m.HasJit())
}

func TestCancelAotRemovesEmptyAuctionOnly(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	_, err := m.OpenAot(45, 10, now.Add(35*time.Second))
	require.NoError(err)

	m.CancelAot(45)
	require.False(m.HasAot(45))

	_, err = m.OpenAot(45, 10, now.Add(35*time.Second))
	require.NoError(err)
	require.NoError(m.SubmitAot(45, Bid{Session: ids.Generate(), Amount: money.FromFloatSOL(0.002), SubmittedAt: now}, now))

	m.CancelAot(45)
	require.True(m.HasAot(45))
}

func TestAotForcedResolutionAtImminentSlot(t *testing.T) {
	require := require.New(t)
	m := New(testConfig(), log.NoOp())
	now := time.Now()
	endsAt := now.Add(35 * time.Second)
	_, err := m.OpenAot(45, 10, endsAt)
	require.NoError(err)

	require.False(m.ReadyToResolveAot(45, 10, now))
	require.True(m.ReadyToResolveAot(45, 44, now))
}

