package marketplace

import (
	"testing"
	"time"

	"github.com/raiku/slotmarket/pkg/config"
	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SlotWindow = 5
	return cfg
}

func TestNewWindowAllAvailable(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())

	win := m.Window()
	require.Len(win, 5)
	for i, s := range win {
		require.Equal(Number(i), s.Number)
		require.Equal(Available, s.State.Kind)
	}
}

func TestTransitionTable(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())

	require.NoError(m.SetState(0, JitAuctionState()))
	require.Error(m.SetState(0, AotAuctionState(time.Now())))

	require.NoError(m.SetState(0, ReservedState(ids.Generate(), ids.Generate(), money.FromFloatSOL(1))))
	require.ErrorIs(m.SetState(0, JitAuctionState()), ErrInvalidTransition)

	require.NoError(m.SetState(0, FilledState(ids.Generate())))
	require.ErrorIs(m.SetState(0, ExpiredState()), ErrInvalidTransition)
}

func TestReserveIdempotent(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())

	winner := ids.Generate()
	tx := ids.Generate()
	bid := money.FromFloatSOL(2)

	require.NoError(m.ReserveIdempotent(0, ReservedState(winner, tx, bid)))
	require.NoError(m.ReserveIdempotent(0, ReservedState(winner, tx, bid)))

	other := ids.Generate()
	require.ErrorIs(m.ReserveIdempotent(0, ReservedState(other, tx, bid)), ErrInvalidTransition)
}

func TestAdvanceRetiresAndAdmits(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())

	retired, admitted := m.Advance()
	require.Equal(Number(0), retired.Number)
	require.Equal(Expired, retired.State.Kind)
	require.Equal(Number(1), m.Current())
	require.Equal(Number(5), admitted.Number)

	_, ok := m.Get(0)
	require.False(ok)
}

func TestAdvancePreservesFilled(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())

	require.NoError(m.SetState(0, JitAuctionState()))
	require.NoError(m.SetState(0, ReservedState(ids.Generate(), ids.Generate(), money.Zero)))
	require.NoError(m.SetState(0, FilledState(ids.Generate())))

	retired, _ := m.Advance()
	require.Equal(Filled, retired.State.Kind)
}

func TestCUOverflow(t *testing.T) {
	require := require.New(t)
	m := New(testConfig())
	s, _ := m.Get(0)
	require.Error(m.SetCUUsed(0, s.CUAvailable+1))
}
