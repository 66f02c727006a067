// Package model defines the core domain types shared across the auction
// engine. All monetary values use shopspring/decimal — never float64 for
// money.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ItemTypes is the fixed set of categories an item can be listed under.
// Category matching is case-insensitive; map keys use the normalized form.
var ItemTypes = []string{
	"Computer",
	"Book",
	"Phone",
	"Coat",
	"Shoes",
	"Tshirt",
	"Jeans",
	"Hoodie",
	"Sports jersey",
	"Miscellaneous",
}

// NormalizeItemType returns the canonical (map-key) form of a category.
func NormalizeItemType(itemType string) string {
	return strings.ToLower(strings.TrimSpace(itemType))
}

// ItemTypeExists reports whether itemType names one of the fixed categories.
func ItemTypeExists(itemType string) bool {
	normalized := NormalizeItemType(itemType)
	for _, t := range ItemTypes {
		if NormalizeItemType(t) == normalized {
			return true
		}
	}
	return false
}

// FormatItemTypes renders the category list shown to reverse-auction buyers.
func FormatItemTypes() string {
	var b strings.Builder
	b.WriteString("\n--- Item Types ---\n------------------\n")
	for _, t := range ItemTypes {
		fmt.Fprintf(&b, "> %s\n", t)
	}
	return b.String()
}

// ConditionFromScale maps the 1..5 usage scale to a condition label.
// Out-of-range values fall back to "Used.".
func ConditionFromScale(scale int) string {
	switch scale {
	case 1:
		return "New."
	case 2:
		return "Barely used."
	case 3:
		return "Used."
	case 4:
		return "Moderately used."
	case 5:
		return "Heavily used."
	default:
		return "Used."
	}
}

// AuctionItem is the immutable description of one auctioned item.
type AuctionItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Condition   string `json:"condition"`
}

// NewAuctionItem builds an item, deriving the condition label from the
// usage scale.
func NewAuctionItem(id int, title, itemType, description string, conditionScale int) AuctionItem {
	return AuctionItem{
		ID:          id,
		Title:       title,
		Description: description,
		Type:        NormalizeItemType(itemType),
		Condition:   ConditionFromScale(conditionScale),
	}
}

// AuctionListing wraps one item with its bidding state. A zero CurrentPrice
// means no bid has been accepted yet; once set it is always ≥ StartingPrice
// and only ever increases.
type AuctionListing struct {
	Item          AuctionItem     `json:"item"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	BestBidUser   string          `json:"best_bid_user,omitempty"`
	Open          bool            `json:"open"`
	Log           []string        `json:"log"`
}

// NewListing creates an open listing with no bids.
func NewListing(item AuctionItem, startingPrice, reservePrice decimal.Decimal) *AuctionListing {
	return &AuctionListing{
		Item:          item,
		StartingPrice: startingPrice,
		ReservePrice:  reservePrice,
		CurrentPrice:  decimal.Zero,
		Open:          true,
		Log:           []string{"--- AUCTION LOGS ---"},
	}
}

// AppendLog records a bid event in the listing's append-only log.
func (l *AuctionListing) AppendLog(entry string) {
	l.Log = append(l.Log, entry)
}

// HasBids reports whether any bid has been accepted.
func (l *AuctionListing) HasBids() bool {
	return l.CurrentPrice.IsPositive()
}

// Sold reports whether a closed listing counts as sold: at least one
// accepted bid and the best bid clearing the reserve price.
func (l *AuctionListing) Sold() bool {
	return l.HasBids() && l.CurrentPrice.GreaterThanOrEqual(l.ReservePrice)
}

// AuctionUser identifies a registered user. The public key is carried for
// the external authentication handshake and plays no role in the core.
// Equality is by ID.
type AuctionUser struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key,omitempty"`
}

// Equal reports identity equality, which is by user ID.
func (u AuctionUser) Equal(other AuctionUser) bool {
	return u.ID == other.ID
}
