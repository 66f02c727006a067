// Package wire names the remote operations broadcast over the group channel
// and defines their argument payloads. The front-end encodes these, every
// replica decodes them; both sides must agree on this surface.
package wire

import "github.com/shopspring/decimal"

// Backend operation names. One broadcast per client-facing operation.
const (
	MethodOpenAuction        = "OpenAuctionBackend"
	MethodCloseAuction       = "CloseAuctionBackend"
	MethodPlaceBid           = "PlaceBidBackend"
	MethodBidPriceAcceptable = "IsBidPriceAcceptableBackend"
	MethodIDExists           = "IDMatchesExistingItemBackend"
	MethodGetSpec            = "GetSpecBackend"
	MethodGetUser            = "GetUserBackend"
	MethodAddUser            = "AddUserBackend"
	MethodUserIDExists       = "UserIDExistsBackend"
	MethodUserNameExists     = "UserNameExistsBackend"
	MethodItemsByType        = "RetrieveItemsByTypeBackend"
	MethodAuctionedItems     = "GetAuctionedItemsBackend"
	MethodAddDoubleSeller    = "AddSellerForDoubleAuctionBackend"
	MethodAddDoubleBuyer     = "AddBuyerForDoubleAuctionBackend"
)

// State snapshot operations used by replica bootstrap.
const (
	MethodLedgerSnapshot        = "GetLedgerSnapshot"
	MethodUserTableSnapshot     = "GetUserTableSnapshot"
	MethodDoubleAuctionSnapshot = "GetDoubleAuctionSnapshot"
	MethodItemIDCounter         = "GetItemIDCounter"
)

// OpenAuctionArgs carries a new forward/reverse listing. The same payload
// pools a seller for a double auction.
type OpenAuctionArgs struct {
	UserID         int             `json:"user_id"`
	Title          string          `json:"title"`
	ItemType       string          `json:"item_type"`
	Description    string          `json:"description"`
	ConditionScale int             `json:"condition_scale"`
	ReservePrice   decimal.Decimal `json:"reserve_price"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
}

// CloseAuctionArgs identifies the listing a seller is closing.
type CloseAuctionArgs struct {
	ListingID int    `json:"listing_id"`
	ItemType  string `json:"item_type"`
	UserID    int    `json:"user_id"`
}

// PlaceBidArgs carries one forward/reverse auction bid.
type PlaceBidArgs struct {
	UserID    int             `json:"user_id"`
	ListingID int             `json:"listing_id"`
	Bid       decimal.Decimal `json:"bid"`
}

// BidPriceArgs asks whether a price would clear the current threshold.
type BidPriceArgs struct {
	ListingID int             `json:"listing_id"`
	Price     decimal.Decimal `json:"price"`
}

// IDArgs wraps a bare listing/user id.
type IDArgs struct {
	ID int `json:"id"`
}

// NameArgs wraps a bare user name.
type NameArgs struct {
	Name string `json:"name"`
}

// TypeArgs wraps a bare item type.
type TypeArgs struct {
	ItemType string `json:"item_type"`
}

// AddUserArgs registers a user under an id the front-end has already
// validated as unused.
type AddUserArgs struct {
	UserID    int    `json:"user_id"`
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key,omitempty"`
}

// GetSpecArgs requests one item's details.
type GetSpecArgs struct {
	ItemID     int    `json:"item_id"`
	ClientName string `json:"client_name"`
}

// AddDoubleBuyerArgs pools a buyer for a double auction.
type AddDoubleBuyerArgs struct {
	UserID   int             `json:"user_id"`
	ItemType string          `json:"item_type"`
	Bid      decimal.Decimal `json:"bid"`
}

// DoubleAuctionReply is a replica's answer to a pool add. Pooled is false
// when the user is unknown; Outcomes carries the per-user settlement
// messages when the add triggered a round, nil otherwise.
type DoubleAuctionReply struct {
	Pooled   bool           `json:"pooled"`
	Outcomes map[int]string `json:"outcomes,omitempty"`
}
