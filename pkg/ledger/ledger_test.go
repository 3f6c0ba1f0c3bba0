package ledger

import (
	"testing"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/log"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/stretchr/testify/require"
)

func TestLazySeeding(t *testing.T) {
	require := require.New(t)
	l := New(money.FromFloatSOL(100), log.NoOp())

	session := ids.Generate()
	require.Equal(money.FromFloatSOL(100), l.Balance(session))
}

func TestDebitInsufficientBalance(t *testing.T) {
	require := require.New(t)
	l := New(money.FromFloatSOL(0.0005), log.NoOp())

	session := ids.Generate()
	err := l.Debit(session, money.FromFloatSOL(0.001))
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(money.FromFloatSOL(0.0005), l.Balance(session))
}

func TestDebitCreditRoundTrip(t *testing.T) {
	require := require.New(t)
	l := New(money.FromFloatSOL(1), log.NoOp())

	session := ids.Generate()
	require.NoError(l.Debit(session, money.FromFloatSOL(0.4)))
	require.Equal(money.FromFloatSOL(0.6), l.Balance(session))

	l.Credit(session, money.FromFloatSOL(0.4))
	require.Equal(money.FromFloatSOL(1), l.Balance(session))
}

func TestTotalHeldConservation(t *testing.T) {
	require := require.New(t)
	l := New(money.FromFloatSOL(10), log.NoOp())

	a, b := ids.Generate(), ids.Generate()
	l.Balance(a)
	l.Balance(b)
	require.NoError(l.Debit(a, money.FromFloatSOL(3)))

	require.Equal(money.FromFloatSOL(17), l.TotalHeld())
}
