package ledger

import (
	"github.com/auctionhub/auction-engine/internal/double"
	"github.com/auctionhub/auction-engine/internal/model"
)

// Snapshot getters hand out deep copies so a peer's bootstrap query never
// races an in-flight mutation on this replica. Each state component is
// queried and restored independently, mirroring the four bootstrap calls.

func copyListing(listing *model.AuctionListing) *model.AuctionListing {
	c := *listing
	c.Log = append([]string(nil), listing.Log...)
	return &c
}

func copyListings(src map[string]map[int]*model.AuctionListing) map[string]map[int]*model.AuctionListing {
	dst := make(map[string]map[int]*model.AuctionListing, len(src))
	for category, byID := range src {
		dst[category] = make(map[int]*model.AuctionListing, len(byID))
		for id, listing := range byID {
			dst[category][id] = copyListing(listing)
		}
	}
	return dst
}

func copyPool(p *double.Pool) *double.Pool {
	c := double.NewPool(p.ItemType, nil)
	c.SellerCount = p.SellerCount
	c.BuyerCount = p.BuyerCount
	c.NextSeq = p.NextSeq
	c.Draws = p.Draws
	for id, s := range p.Sellers {
		s.Listing = copyListing(s.Listing)
		c.Sellers[id] = s
	}
	for id, b := range p.Buyers {
		c.Buyers[id] = b
	}
	return c
}

// ListingsSnapshot returns a deep copy of the category → id → listing maps.
func (l *Ledger) ListingsSnapshot() map[string]map[int]*model.AuctionListing {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyListings(l.listings)
}

// RestoreListings replaces the listings with a peer snapshot.
func (l *Ledger) RestoreListings(snapshot map[string]map[int]*model.AuctionListing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snapshot == nil {
		snapshot = make(map[string]map[int]*model.AuctionListing)
	}
	l.listings = snapshot
}

// PoolsSnapshot returns a deep copy of the double-auction pools.
func (l *Ledger) PoolsSnapshot() map[string]*double.Pool {
	l.mu.Lock()
	defer l.mu.Unlock()
	dst := make(map[string]*double.Pool, len(l.pools))
	for category, p := range l.pools {
		dst[category] = copyPool(p)
	}
	return dst
}

// RestorePools replaces the double-auction pools with a peer snapshot.
func (l *Ledger) RestorePools(snapshot map[string]*double.Pool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snapshot == nil {
		snapshot = make(map[string]*double.Pool)
	}
	l.pools = snapshot
}

// UsersSnapshot returns a copy of the user table.
func (l *Ledger) UsersSnapshot() map[int]model.AuctionUser {
	l.mu.Lock()
	defer l.mu.Unlock()
	dst := make(map[int]model.AuctionUser, len(l.users))
	for id, u := range l.users {
		dst[id] = u
	}
	return dst
}

// RestoreUsers replaces the user table with a peer snapshot, rebuilding the
// used-name set from it.
func (l *Ledger) RestoreUsers(snapshot map[int]model.AuctionUser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snapshot == nil {
		snapshot = make(map[int]model.AuctionUser)
	}
	l.users = snapshot
	l.usedNames = make(map[string]struct{}, len(snapshot))
	for _, u := range snapshot {
		l.usedNames[u.Name] = struct{}{}
	}
}

// ItemIDCounter returns the next item id to be assigned.
func (l *Ledger) ItemIDCounter() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextItemID
}

// SetItemIDCounter adopts a peer's counter position.
func (l *Ledger) SetItemIDCounter(next int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextItemID = next
}
