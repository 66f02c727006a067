package double_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auctionhub/auction-engine/internal/double"
	"github.com/auctionhub/auction-engine/internal/model"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seller(t *testing.T, p *double.Pool, id int, name string, reserve int64) *model.AuctionListing {
	t.Helper()
	item := model.NewAuctionItem(id, name+"'s item", p.ItemType, "", 3)
	listing := model.NewListing(item, d(1), d(reserve))
	p.AddSeller(model.AuctionUser{ID: id, Name: name}, listing)
	return listing
}

func TestReadyToSettle(t *testing.T) {
	p := double.NewPool("book", nil)

	assert.False(t, p.ReadyToSettle(), "empty pool")

	seller(t, p, 1, "s1", 10)
	p.AddBuyer(model.AuctionUser{ID: 100, Name: "b1"}, d(20))
	assert.False(t, p.ReadyToSettle(), "a single matched pair never settles")

	seller(t, p, 2, "s2", 10)
	assert.False(t, p.ReadyToSettle(), "sellerCount=2 buyerCount=1")

	p.AddBuyer(model.AuctionUser{ID: 101, Name: "b2"}, d(20))
	assert.True(t, p.ReadyToSettle(), "sellerCount=2 buyerCount=2")
}

// TestSettlePairing runs the reference scenario: reserves {90, 50, 70}
// against bids {60, 95, 75}. Sorted descending/ascending the pairs are
// 90↔60 (fails), 70↔75 (sells at 75), 50↔95 (sells at 95).
func TestSettlePairing(t *testing.T) {
	p := double.NewPool("phone", nil)

	l90 := seller(t, p, 1, "hi-reserve", 90)
	l50 := seller(t, p, 2, "lo-reserve", 50)
	l70 := seller(t, p, 3, "mid-reserve", 70)

	p.AddBuyer(model.AuctionUser{ID: 100, Name: "lo-bid"}, d(60))
	p.AddBuyer(model.AuctionUser{ID: 101, Name: "hi-bid"}, d(95))
	p.AddBuyer(model.AuctionUser{ID: 102, Name: "mid-bid"}, d(75))

	require.True(t, p.ReadyToSettle())
	outcomes := p.Settle()

	assert.True(t, l90.CurrentPrice.IsZero(), "reserve 90 vs bid 60 must not trade")
	assert.Empty(t, l90.BestBidUser)

	assert.True(t, l70.CurrentPrice.Equal(d(75)), "reserve 70 trades at 75")
	assert.Equal(t, "mid-bid", l70.BestBidUser)

	assert.True(t, l50.CurrentPrice.Equal(d(95)), "reserve 50 trades at 95")
	assert.Equal(t, "hi-bid", l50.BestBidUser)

	// Every participant hears back, winners and losers alike.
	require.Len(t, outcomes, 6)
	assert.Contains(t, outcomes[1], "was not sold")
	assert.Contains(t, outcomes[100], "unsuccessful")
	assert.Contains(t, outcomes[3], "sold for 75 EUR")
	assert.Contains(t, outcomes[102], "bought")
	assert.Contains(t, outcomes[2], "sold for 95 EUR")
	assert.Contains(t, outcomes[101], "bought")
}

// TestSettleClearsUnmatchedParticipants pins the reference behavior: a
// settlement round discards every pooled seller and buyer, including pairs
// that failed to trade. Unmatched participants are not re-pooled for the
// next round.
func TestSettleClearsUnmatchedParticipants(t *testing.T) {
	p := double.NewPool("coat", nil)

	seller(t, p, 1, "s1", 500) // reserve far above every bid
	seller(t, p, 2, "s2", 600)
	p.AddBuyer(model.AuctionUser{ID: 100, Name: "b1"}, d(10))
	p.AddBuyer(model.AuctionUser{ID: 101, Name: "b2"}, d(20))

	require.True(t, p.ReadyToSettle())
	outcomes := p.Settle()
	require.Len(t, outcomes, 4)

	assert.Empty(t, p.Sellers, "failed sellers are cleared, not re-pooled")
	assert.Empty(t, p.Buyers, "failed buyers are cleared, not re-pooled")
	assert.Equal(t, 0, p.SellerCount)
	assert.Equal(t, 0, p.BuyerCount)
	assert.False(t, p.ReadyToSettle())
}

func TestSettleTriggersOncePerQualifyingAdd(t *testing.T) {
	p := double.NewPool("shoes", nil)

	seller(t, p, 1, "s1", 10)
	seller(t, p, 2, "s2", 20)
	p.AddBuyer(model.AuctionUser{ID: 100, Name: "b1"}, d(30))
	require.False(t, p.ReadyToSettle())

	p.AddBuyer(model.AuctionUser{ID: 101, Name: "b2"}, d(40))
	require.True(t, p.ReadyToSettle())
	p.Settle()

	// The next round starts from scratch.
	seller(t, p, 3, "s3", 10)
	assert.False(t, p.ReadyToSettle())
}

func TestPoolIDsAreDistinct(t *testing.T) {
	p := double.NewPool("jeans", nil)
	seen := make(map[int]bool)
	for i := 0; i < 50; i++ {
		id := p.AddBuyer(model.AuctionUser{ID: 1000 + i}, d(int64(i+1)))
		assert.False(t, seen[id], "pool id %d assigned twice", id)
		seen[id] = true
	}
}
