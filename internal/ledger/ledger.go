// Package ledger holds a backend replica's authoritative in-memory auction
// state: listings by category and id, the item-id counter, the user table,
// and the double-auction pools. Every operation here is invoked once per
// replica in response to a broadcast call; replicas that process the same
// call sequence are expected to hold identical ledgers.
package ledger

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/auctionhub/auction-engine/internal/double"
	"github.com/auctionhub/auction-engine/internal/model"
)

// Ledger is the replica-local store. A single mutex serializes every
// operation: bids on one listing, the item-id counter, the user table, and
// each pool's add-then-check-then-settle sequence all need mutual exclusion,
// and the coarse lock covers them all.
type Ledger struct {
	mu         sync.Mutex
	listings   map[string]map[int]*model.AuctionListing
	pools      map[string]*double.Pool
	users      map[int]model.AuctionUser
	usedNames  map[string]struct{}
	nextItemID int
}

// New creates an empty ledger with the item counter at zero.
func New() *Ledger {
	return &Ledger{
		listings:  make(map[string]map[int]*model.AuctionListing),
		pools:     make(map[string]*double.Pool),
		users:     make(map[int]model.AuctionUser),
		usedNames: make(map[string]struct{}),
	}
}

// assignItemID hands out the next item id. Callers hold l.mu.
func (l *Ledger) assignItemID() int {
	id := l.nextItemID
	l.nextItemID++
	return id
}

// userName resolves a user id for log lines without failing on unknown ids.
func (l *Ledger) userName(userID int) string {
	if u, ok := l.users[userID]; ok {
		return u.Name
	}
	return fmt.Sprintf("user-%d", userID)
}

// OpenAuction creates a listing for a forward/reverse auction. The caller is
// expected to have validated the user; an unknown id degrades to nil.
func (l *Ledger) OpenAuction(userID int, title, itemType, description string, conditionScale int, reservePrice, startingPrice decimal.Decimal) *model.AuctionListing {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		slog.Warn("open auction for unknown user", "user_id", userID)
		return nil
	}

	item := model.NewAuctionItem(l.assignItemID(), title, itemType, description, conditionScale)
	listing := model.NewListing(item, startingPrice, reservePrice)

	category := item.Type
	if l.listings[category] == nil {
		l.listings[category] = make(map[int]*model.AuctionListing)
	}
	l.listings[category][item.ID] = listing

	slog.Info("auction opened", "user", user.Name, "title", title, "item_id", item.ID)
	return listing
}

// CloseAuction removes and returns the listing, or nil if it is not present
// under the given category. The caller decides whether the result counts as
// sold.
func (l *Ledger) CloseAuction(listingID int, itemType string, userID int) *model.AuctionListing {
	l.mu.Lock()
	defer l.mu.Unlock()

	category := model.NormalizeItemType(itemType)
	byID, ok := l.listings[category]
	if !ok {
		return nil
	}
	listing, ok := byID[listingID]
	if !ok {
		return nil
	}
	delete(byID, listingID)
	listing.Open = false

	slog.Info("auction closed", "user", l.userName(userID), "listing_id", listingID)
	return listing
}

// findListing scans all categories for a listing id. Callers hold l.mu.
func (l *Ledger) findListing(listingID int) *model.AuctionListing {
	for _, byID := range l.listings {
		if listing, ok := byID[listingID]; ok {
			return listing
		}
	}
	return nil
}

// PlaceBid logs a bid attempt and applies it iff it beats the current price
// and clears the starting price. The return value only reports whether the
// listing exists; rejected bids are logged, not errors. Callers pre-check
// acceptability with BidPriceAcceptable.
func (l *Ledger) PlaceBid(userID, listingID int, bid decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	listing := l.findListing(listingID)
	if listing == nil {
		return false
	}

	name := l.userName(userID)
	listing.AppendLog(fmt.Sprintf("User %s requested to place a bid of %s EUR.", name, bid))

	if bid.GreaterThan(listing.CurrentPrice) && bid.GreaterThanOrEqual(listing.StartingPrice) {
		listing.CurrentPrice = bid
		listing.BestBidUser = name
		listing.AppendLog(fmt.Sprintf("User %s bid accepted: %s EUR.", name, bid))
	} else {
		listing.AppendLog(fmt.Sprintf("User %s bid NOT accepted: %s EUR.", name, bid))
	}
	return true
}

// BidPriceAcceptable reports whether a price would be accepted as a bid:
// above the current price once bidding has started, otherwise at least the
// starting price. An unknown listing id is acceptable — the existence check
// is a separate operation.
func (l *Ledger) BidPriceAcceptable(listingID int, price decimal.Decimal) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	listing := l.findListing(listingID)
	if listing == nil {
		return true
	}
	if listing.HasBids() {
		return price.GreaterThan(listing.CurrentPrice)
	}
	return price.GreaterThanOrEqual(listing.StartingPrice)
}

// IDExists reports whether any category holds a listing with this id.
func (l *Ledger) IDExists(listingID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.findListing(listingID) != nil
}

// GetSpec returns one item's details, or nil if no listing carries the id.
func (l *Ledger) GetSpec(itemID int, clientName string) *model.AuctionItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	listing := l.findListing(itemID)
	if listing == nil {
		slog.Info("spec requested for unknown item", "client", clientName, "item_id", itemID)
		return nil
	}
	item := listing.Item
	return &item
}

// AddUser registers a user under an id the front-end has already collision-
// checked across the group. Re-registration under the same id overwrites.
func (l *Ledger) AddUser(userID int, name string, publicKey []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users[userID] = model.AuctionUser{ID: userID, Name: name, PublicKey: publicKey}
	l.usedNames[name] = struct{}{}
	slog.Info("user registered", "user_id", userID, "name", name)
	return userID
}

// UserIDExists reports whether a user id is taken.
func (l *Ledger) UserIDExists(userID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.users[userID]
	return ok
}

// UserNameExists reports whether a user name is taken.
func (l *Ledger) UserNameExists(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.usedNames[name]
	return ok
}

// GetUser returns a registered user by id.
func (l *Ledger) GetUser(userID int) (model.AuctionUser, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[userID]
	return u, ok
}

// sortedKeys returns a map's keys in ascending order.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// displayPrice is the price shown in listings: the starting price until a
// bid has cleared it.
func displayPrice(listing *model.AuctionListing) decimal.Decimal {
	if listing.CurrentPrice.LessThan(listing.StartingPrice) {
		return listing.StartingPrice
	}
	return listing.CurrentPrice
}

// ItemsByType renders the reverse-auction view of one category. The second
// return value is false when the category holds no listings.
func (l *Ledger) ItemsByType(itemType string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	category := model.NormalizeItemType(itemType)
	byID := l.listings[category]
	if len(byID) == 0 {
		return "", false
	}

	barrier := fmt.Sprintf("--- All Available %s ---", strings.ToUpper(category))
	rule := strings.Repeat("-", len(barrier))

	// Render in id order so every replica produces the same bytes.
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", rule, barrier)
	for _, id := range sortedKeys(byID) {
		listing := byID[id]
		fmt.Fprintf(&b, "ID: %d\nItem condition: %s\nCurrent price: %s EUR\n\n",
			id, listing.Item.Condition, displayPrice(listing))
	}
	fmt.Fprintf(&b, "%s\n%s\n", rule, rule)
	return b.String(), true
}

// AuctionedItems renders every open forward-auction listing. The second
// return value is false when nothing is listed.
func (l *Ledger) AuctionedItems() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	empty := true
	for _, byID := range l.listings {
		if len(byID) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return "", false
	}

	const rule = "|----------------------------------------------------|"
	var b strings.Builder
	b.WriteString("\n|---- Forward Auction List (all available items) ----|\n")
	b.WriteString(rule + "\n")
	// Render in category then id order so every replica produces the same
	// bytes.
	for _, category := range sortedKeys(l.listings) {
		byID := l.listings[category]
		for _, id := range sortedKeys(byID) {
			listing := byID[id]
			bestBid := "No bids yet"
			if listing.HasBids() {
				bestBid = listing.CurrentPrice.String() + " EUR"
			}
			fmt.Fprintf(&b, "\n------------------------------------------"+
				"\n| %-22s %-15d |"+
				"\n| %-22s %-15s |"+
				"\n| %-22s %-15s |"+
				"\n| %-22s %-15s |"+
				"\n------------------------------------------\n",
				"ID:", id,
				"Item:", listing.Item.Title,
				"Starting price:", listing.StartingPrice,
				"Current best bid:", bestBid)
		}
	}
	b.WriteString(rule + "\n" + rule + "\n")
	return b.String(), true
}

// pool returns the category's pool, creating it on first use. Callers hold
// l.mu.
func (l *Ledger) pool(itemType string) *double.Pool {
	category := model.NormalizeItemType(itemType)
	p, ok := l.pools[category]
	if !ok {
		p = double.NewPool(category, nil)
		l.pools[category] = p
	}
	return p
}

// AddDoubleSeller pools a seller's listing for the category's double
// auction and, if the pool just became settleable, runs the settlement
// round. The whole add-check-settle sequence happens under the ledger lock,
// so a round can never run twice. The bool reports whether the seller was
// pooled at all; the map (nil when no round ran) carries the per-user
// outcome messages.
func (l *Ledger) AddDoubleSeller(userID int, title, itemType, description string, conditionScale int, reservePrice, startingPrice decimal.Decimal) (map[int]string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		slog.Warn("double-auction seller with unknown user", "user_id", userID)
		return nil, false
	}

	item := model.NewAuctionItem(l.assignItemID(), title, itemType, description, conditionScale)
	listing := model.NewListing(item, startingPrice, reservePrice)

	p := l.pool(itemType)
	p.AddSeller(user, listing)
	slog.Info("double-auction seller pooled",
		"user", user.Name, "item_type", p.ItemType, "sellers", p.SellerCount, "buyers", p.BuyerCount)

	if p.ReadyToSettle() {
		return p.Settle(), true
	}
	return nil, true
}

// AddDoubleBuyer pools a buyer's bid, settling exactly as AddDoubleSeller
// does.
func (l *Ledger) AddDoubleBuyer(userID int, itemType string, bid decimal.Decimal) (map[int]string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		slog.Warn("double-auction buyer with unknown user", "user_id", userID)
		return nil, false
	}

	p := l.pool(itemType)
	p.AddBuyer(user, bid)
	slog.Info("double-auction buyer pooled",
		"user", user.Name, "item_type", p.ItemType, "sellers", p.SellerCount, "buyers", p.BuyerCount)

	if p.ReadyToSettle() {
		return p.Settle(), true
	}
	return nil, true
}
