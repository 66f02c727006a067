// Package double implements the per-category double-auction pool: pending
// sellers and buyers for one item type, plus the settlement pass that pairs
// them once the counts balance.
package double

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/auctionhub/auction-engine/internal/model"
)

// poolSeed seeds the pool-local id source. Every replica draws the same id
// sequence for the same sequence of adds, so pool snapshots compare equal
// across replicas.
const poolSeed = 1

// maxIDAttempts bounds the collision-retry loop for pool-local ids.
const maxIDAttempts = 1000

// SellerEntry is one pending seller: the user and the listing they want
// matched.
type SellerEntry struct {
	User    model.AuctionUser     `json:"user"`
	Listing *model.AuctionListing `json:"listing"`
	Seq     int                   `json:"seq"`
}

// BuyerEntry is one pending buyer: the user and the amount they bid.
type BuyerEntry struct {
	User model.AuctionUser `json:"user"`
	Bid  decimal.Decimal   `json:"bid"`
	Seq  int               `json:"seq"`
}

// Pool batches sellers and buyers for one item type. Callers serialize
// access; the ledger holds its mutex across add, ready-check and settle so
// two concurrent adds can never both observe a settleable pool.
type Pool struct {
	ItemType    string              `json:"item_type"`
	Sellers     map[int]SellerEntry `json:"sellers"`
	Buyers      map[int]BuyerEntry  `json:"buyers"`
	SellerCount int                 `json:"seller_count"`
	BuyerCount  int                 `json:"buyer_count"`
	NextSeq     int                 `json:"next_seq"`

	// Draws counts how many ids the source has handed out. It travels with
	// snapshots so a restored pool resumes the id sequence at the peer's
	// position instead of restarting it.
	Draws int `json:"draws"`

	rng *rand.Rand
}

// NewPool creates an empty pool for one item type. A nil rng selects the
// deterministic default source shared by all replicas.
func NewPool(itemType string, rng *rand.Rand) *Pool {
	p := &Pool{
		ItemType: itemType,
		Sellers:  make(map[int]SellerEntry),
		Buyers:   make(map[int]BuyerEntry),
		rng:      rng,
	}
	return p
}

// rand lazily attaches the id source. Pools restored from a peer snapshot
// arrive without one; replaying the recorded draws moves the fresh source to
// the exact position the peer's source is at.
func (p *Pool) rand() *rand.Rand {
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(poolSeed))
		for i := 0; i < p.Draws; i++ {
			p.rng.Intn(1 << 16)
		}
	}
	return p.rng
}

// randomID draws a fresh pool-local id, retrying on collision against both
// sides of the pool. After maxIDAttempts it falls back to the admission
// sequence, which is always unused.
func (p *Pool) randomID() int {
	for i := 0; i < maxIDAttempts; i++ {
		id := p.rand().Intn(1 << 16)
		p.Draws++
		if _, taken := p.Sellers[id]; taken {
			continue
		}
		if _, taken := p.Buyers[id]; taken {
			continue
		}
		return id
	}
	return 1<<16 + p.NextSeq
}

// AddSeller pools a seller's listing and returns its pool-local id.
func (p *Pool) AddSeller(user model.AuctionUser, listing *model.AuctionListing) int {
	id := p.randomID()
	p.Sellers[id] = SellerEntry{User: user, Listing: listing, Seq: p.NextSeq}
	p.NextSeq++
	p.SellerCount++
	return id
}

// AddBuyer pools a buyer's bid and returns its pool-local id.
func (p *Pool) AddBuyer(user model.AuctionUser, bid decimal.Decimal) int {
	id := p.randomID()
	p.Buyers[id] = BuyerEntry{User: user, Bid: bid, Seq: p.NextSeq}
	p.NextSeq++
	p.BuyerCount++
	return id
}

// ReadyToSettle reports whether a settlement round should run: more than one
// seller, and exactly as many buyers as sellers.
func (p *Pool) ReadyToSettle() bool {
	return p.SellerCount > 1 && p.SellerCount == p.BuyerCount
}

// Settle pairs the pooled sellers and buyers and returns the per-user
// outcome messages for the notification relay.
//
// Sellers are sorted by reserve price descending and buyers by bid
// ascending, then paired index-wise: the seller most reluctant to sell low
// meets the buyer most reluctant to pay high, a greedy heuristic that
// maximizes the chance each pair clears the reserve. Ties sort by admission
// sequence so every replica produces the same pairing.
//
// The round clears the whole pool, unmatched participants included; they do
// not carry over to the next round.
func (p *Pool) Settle() map[int]string {
	sellers := make([]SellerEntry, 0, len(p.Sellers))
	for _, s := range p.Sellers {
		sellers = append(sellers, s)
	}
	sort.Slice(sellers, func(i, j int) bool {
		ri, rj := sellers[i].Listing.ReservePrice, sellers[j].Listing.ReservePrice
		if !ri.Equal(rj) {
			return ri.GreaterThan(rj)
		}
		return sellers[i].Seq < sellers[j].Seq
	})

	buyers := make([]BuyerEntry, 0, len(p.Buyers))
	for _, b := range p.Buyers {
		buyers = append(buyers, b)
	}
	sort.Slice(buyers, func(i, j int) bool {
		if !buyers[i].Bid.Equal(buyers[j].Bid) {
			return buyers[i].Bid.LessThan(buyers[j].Bid)
		}
		return buyers[i].Seq < buyers[j].Seq
	})

	outcomes := make(map[int]string, len(sellers)+len(buyers))
	for i, seller := range sellers {
		buyer := buyers[i]
		title := seller.Listing.Item.Title
		if seller.Listing.ReservePrice.LessThanOrEqual(buyer.Bid) {
			seller.Listing.CurrentPrice = buyer.Bid
			seller.Listing.BestBidUser = buyer.User.Name
			outcomes[seller.User.ID] = fmt.Sprintf(
				"Your item %q sold for %s EUR to %s.", title, buyer.Bid, buyer.User.Name)
			outcomes[buyer.User.ID] = fmt.Sprintf(
				"You bought %q for %s EUR.", title, buyer.Bid)
		} else {
			outcomes[seller.User.ID] = fmt.Sprintf(
				"Your item %q was not sold: the matched bid did not reach your reserve price.", title)
			outcomes[buyer.User.ID] = fmt.Sprintf(
				"Your bid of %s EUR was unsuccessful.", buyer.Bid)
		}
	}

	p.Sellers = make(map[int]SellerEntry)
	p.Buyers = make(map[int]BuyerEntry)
	p.SellerCount = 0
	p.BuyerCount = 0
	return outcomes
}
