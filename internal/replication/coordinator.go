// Package replication implements the front-end's broadcast-and-compare
// protocol: every operation fans out to all backend replicas, and a value
// is served only when every reply that arrived in time is structurally
// equal. Agreement here is a divergence detector, not a conflict resolver —
// a disputed answer is refused, never repaired.
package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"time"

	"github.com/auctionhub/auction-engine/internal/group"
	"github.com/auctionhub/auction-engine/internal/metrics"
	"github.com/auctionhub/auction-engine/internal/wire"
)

// Status tags the outcome of one broadcast so callers can tell an agreed
// value from a disputed one and from silence.
type Status int

const (
	// StatusAgreed means every reply carried the same value.
	StatusAgreed Status = iota
	// StatusDisagreed means at least two replies differed.
	StatusDisagreed
	// StatusNoReplies means no replica answered before the timeout.
	StatusNoReplies
)

func (s Status) String() string {
	switch s {
	case StatusAgreed:
		return "agreed"
	case StatusDisagreed:
		return "disagreed"
	case StatusNoReplies:
		return "no_replies"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one replicated call. Value is set only
// when Status is StatusAgreed.
type Result struct {
	Status Status
	Value  json.RawMessage
}

// Agreed reports whether the call produced a usable value.
func (r Result) Agreed() bool { return r.Status == StatusAgreed }

// Coordinator broadcasts operations over the group channel and reconciles
// the replies.
type Coordinator struct {
	ch      group.Channel
	timeout time.Duration
}

// New creates a coordinator. timeout bounds every broadcast; replicas still
// processing when it expires complete their local mutation regardless.
func New(ch group.Channel, timeout time.Duration) *Coordinator {
	return &Coordinator{ch: ch, timeout: timeout}
}

// Call broadcasts one operation and compares the replies byte-wise on their
// canonical JSON. Reads and mutations go through the same path; there is no
// fast read side.
func (c *Coordinator) Call(ctx context.Context, method string, args any) Result {
	replies, status := c.broadcast(ctx, method, args)
	if status != StatusAgreed {
		return Result{Status: status}
	}

	first := canonical(replies[0].Value)
	for _, reply := range replies[1:] {
		if !bytes.Equal(first, canonical(reply.Value)) {
			slog.Warn("replica responses diverged",
				"method", method, "replica", reply.Replica)
			c.record(method, StatusDisagreed)
			return Result{Status: StatusDisagreed}
		}
	}
	c.record(method, StatusAgreed)
	return Result{Status: StatusAgreed, Value: replies[0].Value}
}

// CallNotifications broadcasts a double-auction operation whose reply
// carries a pooled flag and a per-user notification map (nil when no
// settlement ran). The outcome maps are compared as decoded maps so key
// order and encoding never cause a spurious mismatch.
func (c *Coordinator) CallNotifications(ctx context.Context, method string, args any) (wire.DoubleAuctionReply, Status) {
	replies, status := c.broadcast(ctx, method, args)
	if status != StatusAgreed {
		return wire.DoubleAuctionReply{}, status
	}

	var first wire.DoubleAuctionReply
	if err := json.Unmarshal(replies[0].Value, &first); err != nil {
		slog.Warn("undecodable settlement reply",
			"method", method, "replica", replies[0].Replica, "err", err)
		c.record(method, StatusDisagreed)
		return wire.DoubleAuctionReply{}, StatusDisagreed
	}
	for _, reply := range replies[1:] {
		var other wire.DoubleAuctionReply
		if err := json.Unmarshal(reply.Value, &other); err != nil ||
			other.Pooled != first.Pooled || !maps.Equal(first.Outcomes, other.Outcomes) {
			slog.Warn("settlement replies diverged",
				"method", method, "replica", reply.Replica)
			c.record(method, StatusDisagreed)
			return wire.DoubleAuctionReply{}, StatusDisagreed
		}
	}
	c.record(method, StatusAgreed)
	return first, StatusAgreed
}

// broadcast fans the call out and folds transport failures and empty reply
// sets into StatusNoReplies. A non-empty reply set comes back as
// StatusAgreed for the caller to compare.
func (c *Coordinator) broadcast(ctx context.Context, method string, args any) ([]group.Response, Status) {
	start := time.Now()
	replies, err := c.ch.Broadcast(ctx, method, args, c.timeout)
	metrics.BroadcastLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		slog.Error("broadcast failed", "method", method, "err", err)
		c.record(method, StatusNoReplies)
		return nil, StatusNoReplies
	}
	if len(replies) == 0 {
		slog.Warn("no replicas answered", "method", method)
		c.record(method, StatusNoReplies)
		return nil, StatusNoReplies
	}
	return replies, StatusAgreed
}

func (c *Coordinator) record(method string, status Status) {
	metrics.ReplicationCalls.WithLabelValues(method, status.String()).Inc()
}

// canonical compacts a JSON value so formatting differences never count as
// divergence. encoding/json already emits map keys sorted, so byte equality
// of compacted replies is structural equality.
func canonical(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
