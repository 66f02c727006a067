package backend_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionhub/auction-engine/internal/backend"
	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/ledger"
)

const testTimeout = 200 * time.Millisecond

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// seededLedger builds a ledger with users, a bid-on listing, and a pending
// double-auction pool. Applying the same calls to every ledger mirrors
// replicas processing the same broadcast sequence.
func seededLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New()
	l.AddUser(1, "alice", nil)
	l.AddUser(2, "bob", nil)
	listing := l.OpenAuction(1, "Amp", "Miscellaneous", "valve amp", 3, d(80), d(20))
	require.NotNil(t, listing)
	require.True(t, l.PlaceBid(2, listing.Item.ID, d(25)))
	_, pooled := l.AddDoubleSeller(1, "Cabinet", "Miscellaneous", "", 2, d(60), d(10))
	require.True(t, pooled)
	return l
}

// assertLedgersEqual compares full ledger state through the same snapshots
// bootstrap transfers.
func assertLedgersEqual(t *testing.T, want, got *ledger.Ledger) {
	t.Helper()
	wantJSON := func(v any) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return string(data)
	}
	assert.JSONEq(t, wantJSON(want.ListingsSnapshot()), wantJSON(got.ListingsSnapshot()))
	assert.JSONEq(t, wantJSON(want.PoolsSnapshot()), wantJSON(got.PoolsSnapshot()))
	assert.JSONEq(t, wantJSON(want.UsersSnapshot()), wantJSON(got.UsersSnapshot()))
	assert.Equal(t, want.ItemIDCounter(), got.ItemIDCounter())
}

func TestBootstrapAdoptsAgreedState(t *testing.T) {
	hub := group.NewLocalHub()
	peer1 := seededLedger(t)
	peer2 := seededLedger(t)
	hub.JoinServing("replica-1", backend.New(peer1).Handle)
	hub.JoinServing("replica-2", backend.New(peer2).Handle)

	joining := ledger.New()
	backend.Bootstrap(context.Background(), hub.Join("replica-3"), joining, testTimeout)

	assertLedgersEqual(t, peer1, joining)

	// The adopted counter continues the sequence, not restarts it.
	next := joining.OpenAuction(1, "Pedal", "Miscellaneous", "", 1, d(30), d(5))
	require.NotNil(t, next)
	assert.Equal(t, peer1.ItemIDCounter(), next.Item.ID)
}

func TestBootstrapWithoutPeersStartsEmpty(t *testing.T) {
	hub := group.NewLocalHub()

	joining := ledger.New()
	backend.Bootstrap(context.Background(), hub.Join("replica-1"), joining, testTimeout)

	assert.Equal(t, 0, joining.ItemIDCounter())
	assert.Empty(t, joining.ListingsSnapshot())
	assert.Empty(t, joining.UsersSnapshot())
	assert.Empty(t, joining.PoolsSnapshot())
}

func TestBootstrapDisagreeingPeersStartsEmpty(t *testing.T) {
	hub := group.NewLocalHub()

	diverged := seededLedger(t)
	require.True(t, diverged.PlaceBid(2, 0, d(70))) // one peer saw an extra bid

	hub.JoinServing("replica-1", backend.New(seededLedger(t)).Handle)
	hub.JoinServing("replica-2", backend.New(diverged).Handle)

	joining := ledger.New()
	backend.Bootstrap(context.Background(), hub.Join("replica-3"), joining, testTimeout)

	// Listings differ between peers, so they are not adopted. The peers
	// still agree on users, pools, and the counter.
	assert.Empty(t, joining.ListingsSnapshot())
	assert.False(t, joining.IDExists(0))
	assert.True(t, joining.UserNameExists("alice"))
	assert.NotZero(t, joining.ItemIDCounter())
}

func TestHandleUnknownMethod(t *testing.T) {
	b := backend.New(ledger.New())
	_, err := b.Handle(context.Background(), "NoSuchOp", json.RawMessage("null"))
	assert.Error(t, err)
}
