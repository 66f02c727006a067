package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/auctionhub/auction-engine/internal/double"
	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/ledger"
	"github.com/auctionhub/auction-engine/internal/model"
	"github.com/auctionhub/auction-engine/internal/replication"
	"github.com/auctionhub/auction-engine/internal/wire"
)

// Bootstrap brings a starting replica up to the group's current state. Each
// of the four state components is queried from every running peer and
// adopted only if all peers agree on it; otherwise — no peers, or peers
// that have already diverged — that component starts empty and the counter
// at zero. The very first replica of a group therefore always starts empty.
//
// Bootstrap runs before the replica subscribes to the group, so its own
// queries never loop back to itself. Later joins and leaves do not trigger
// a re-bootstrap.
func Bootstrap(ctx context.Context, ch group.Channel, led *ledger.Ledger, timeout time.Duration) {
	coord := replication.New(ch, timeout)

	adopt(ctx, coord, wire.MethodLedgerSnapshot, "listings",
		func(snap map[string]map[int]*model.AuctionListing) { led.RestoreListings(snap) })

	adopt(ctx, coord, wire.MethodDoubleAuctionSnapshot, "double-auction pools",
		func(snap map[string]*double.Pool) { led.RestorePools(snap) })

	adopt(ctx, coord, wire.MethodUserTableSnapshot, "user table",
		func(snap map[int]model.AuctionUser) { led.RestoreUsers(snap) })

	adopt(ctx, coord, wire.MethodItemIDCounter, "item-id counter",
		func(next int) { led.SetItemIDCounter(next) })
}

// adopt runs one state query and applies the agreed value. Anything short
// of agreement leaves the component at its empty initial state.
func adopt[T any](ctx context.Context, coord *replication.Coordinator, method, component string, restore func(T)) {
	res := coord.Call(ctx, method, nil)
	if !res.Agreed() {
		slog.Info("bootstrap: starting empty", "component", component, "reason", res.Status.String())
		return
	}

	var snap T
	if err := json.Unmarshal(res.Value, &snap); err != nil {
		slog.Error("bootstrap: undecodable peer snapshot, starting empty",
			"component", component, "err", err)
		return
	}
	restore(snap)
	slog.Info("bootstrap: adopted peer state", "component", component)
}
