package frontend

import (
	"context"
	"log/slog"
	"time"

	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/metrics"
)

// WatchMembership polls the group for its replica count and logs changes.
// The group has no view-change callbacks, so the front-end observes
// membership the same way it addresses the group: by counting subscribers.
// Blocks until ctx is done.
func WatchMembership(ctx context.Context, ch group.Channel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := ch.Members(ctx)
			if err != nil {
				slog.Warn("membership probe failed", "err", err)
				continue
			}
			metrics.GroupMembers.Set(float64(count))
			if count != last {
				slog.Info("group membership changed", "replicas", count, "previous", last)
				last = count
			}
		}
	}
}
