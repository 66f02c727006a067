// Package backend runs the replica side of the replication protocol: it
// decodes broadcast requests from the group channel and applies them to the
// replica's ledger, and it brings a starting replica's state up to date
// from its live peers.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/auctionhub/auction-engine/internal/ledger"
	"github.com/auctionhub/auction-engine/internal/wire"
)

// Backend applies broadcast operations to one replica's ledger.
type Backend struct {
	ledger *ledger.Ledger
}

// New wraps a ledger for the group channel.
func New(led *ledger.Ledger) *Backend {
	return &Backend{ledger: led}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var args T
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("backend: decode args: %w", err)
	}
	return args, nil
}

// Handle dispatches one broadcast operation. It satisfies group.Handler.
func (b *Backend) Handle(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	switch method {
	case wire.MethodOpenAuction:
		a, err := decode[wire.OpenAuctionArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.OpenAuction(a.UserID, a.Title, a.ItemType, a.Description,
			a.ConditionScale, a.ReservePrice, a.StartingPrice), nil

	case wire.MethodCloseAuction:
		a, err := decode[wire.CloseAuctionArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.CloseAuction(a.ListingID, a.ItemType, a.UserID), nil

	case wire.MethodPlaceBid:
		a, err := decode[wire.PlaceBidArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.PlaceBid(a.UserID, a.ListingID, a.Bid), nil

	case wire.MethodBidPriceAcceptable:
		a, err := decode[wire.BidPriceArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.BidPriceAcceptable(a.ListingID, a.Price), nil

	case wire.MethodIDExists:
		a, err := decode[wire.IDArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.IDExists(a.ID), nil

	case wire.MethodGetSpec:
		a, err := decode[wire.GetSpecArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.GetSpec(a.ItemID, a.ClientName), nil

	case wire.MethodGetUser:
		a, err := decode[wire.IDArgs](raw)
		if err != nil {
			return nil, err
		}
		user, ok := b.ledger.GetUser(a.ID)
		if !ok {
			return nil, nil
		}
		return user, nil

	case wire.MethodAddUser:
		a, err := decode[wire.AddUserArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.AddUser(a.UserID, a.Name, a.PublicKey), nil

	case wire.MethodUserIDExists:
		a, err := decode[wire.IDArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.UserIDExists(a.ID), nil

	case wire.MethodUserNameExists:
		a, err := decode[wire.NameArgs](raw)
		if err != nil {
			return nil, err
		}
		return b.ledger.UserNameExists(a.Name), nil

	case wire.MethodItemsByType:
		a, err := decode[wire.TypeArgs](raw)
		if err != nil {
			return nil, err
		}
		formatted, ok := b.ledger.ItemsByType(a.ItemType)
		if !ok {
			return nil, nil
		}
		return formatted, nil

	case wire.MethodAuctionedItems:
		formatted, ok := b.ledger.AuctionedItems()
		if !ok {
			return nil, nil
		}
		return formatted, nil

	case wire.MethodAddDoubleSeller:
		a, err := decode[wire.OpenAuctionArgs](raw)
		if err != nil {
			return nil, err
		}
		outcomes, pooled := b.ledger.AddDoubleSeller(a.UserID, a.Title, a.ItemType,
			a.Description, a.ConditionScale, a.ReservePrice, a.StartingPrice)
		return wire.DoubleAuctionReply{Pooled: pooled, Outcomes: outcomes}, nil

	case wire.MethodAddDoubleBuyer:
		a, err := decode[wire.AddDoubleBuyerArgs](raw)
		if err != nil {
			return nil, err
		}
		outcomes, pooled := b.ledger.AddDoubleBuyer(a.UserID, a.ItemType, a.Bid)
		return wire.DoubleAuctionReply{Pooled: pooled, Outcomes: outcomes}, nil

	case wire.MethodLedgerSnapshot:
		return b.ledger.ListingsSnapshot(), nil

	case wire.MethodUserTableSnapshot:
		return b.ledger.UsersSnapshot(), nil

	case wire.MethodDoubleAuctionSnapshot:
		return b.ledger.PoolsSnapshot(), nil

	case wire.MethodItemIDCounter:
		return b.ledger.ItemIDCounter(), nil

	default:
		return nil, fmt.Errorf("backend: unknown method %q", method)
	}
}
