package txstore

import (
	"testing"
	"time"

	"github.com/raiku/slotmarket/pkg/ids"
	"github.com/raiku/slotmarket/pkg/money"
	"github.com/stretchr/testify/require"
)

func newTx(sender ids.SessionID) Transaction {
	return Transaction{
		ID:           ids.Generate(),
		Sender:       sender,
		Inclusion:    Inclusion{Kind: Jit},
		Status:       PendingStatus(),
		ComputeUnits: 1000,
		PriorityFee:  money.FromFloatSOL(0.001),
		CreatedAt:    time.Now(),
	}
}

func TestPutDuplicate(t *testing.T) {
	require := require.New(t)
	s := New()
	tx := newTx(ids.Generate())

	require.NoError(s.Put(tx))
	require.ErrorIs(s.Put(tx), ErrDuplicate)
}

func TestStatusMonotone(t *testing.T) {
	require := require.New(t)
	s := New()
	tx := newTx(ids.Generate())
	require.NoError(s.Put(tx))

	require.NoError(s.SetStatus(tx.ID, AuctionWonStatus(11)))
	require.NoError(s.SetStatus(tx.ID, IncludedStatus(11, time.Now())))
	require.ErrorIs(s.SetStatus(tx.ID, PendingStatus()), ErrInvalidTransition)
	require.ErrorIs(s.SetStatus(tx.ID, FailedStatus(FailOutbid)), ErrInvalidTransition)
}

func TestStatusFailedFromAuctionWon(t *testing.T) {
	require := require.New(t)
	s := New()
	tx := newTx(ids.Generate())
	require.NoError(s.Put(tx))
	require.NoError(s.SetStatus(tx.ID, AuctionWonStatus(11)))
	require.NoError(s.SetStatus(tx.ID, FailedStatus(FailExpired)))
}

func TestListBySessionOrdering(t *testing.T) {
	require := require.New(t)
	s := New()
	session := ids.Generate()

	base := time.Now()
	var last Transaction
	for i := 0; i < 3; i++ {
		tx := newTx(session)
		tx.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(s.Put(tx))
		last = tx
	}

	page := s.ListBySession(session, 0, 10)
	require.Len(page, 3)
	require.Equal(last.ID, page[0].ID) // newest first
}

func TestListAllPagination(t *testing.T) {
	require := require.New(t)
	s := New()
	for i := 0; i < 5; i++ {
		require.NoError(s.Put(newTx(ids.Generate())))
	}

	page0 := s.ListAll(0, 2)
	page1 := s.ListAll(1, 2)
	require.Len(page0, 2)
	require.Len(page1, 2)
	require.NotEqual(page0[0].ID, page1[0].ID)
}
