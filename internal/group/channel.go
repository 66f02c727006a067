// Package group provides the broadcast channel connecting the front-end to
// the backend replicas. A broadcast reaches every serving member; each
// member replies on a per-request reply channel, and the sender collects
// whatever arrives before its deadline. RedisChannel is the production
// transport; LocalHub wires the same contract in-process for tests.
package group

import (
	"context"
	"encoding/json"
	"time"
)

// Request is the envelope broadcast to every group member.
type Request struct {
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Args    json.RawMessage `json:"args"`
	ReplyTo string          `json:"reply_to"`
}

// Response is one member's reply to a broadcast.
type Response struct {
	RequestID string          `json:"request_id"`
	Replica   string          `json:"replica"`
	Value     json.RawMessage `json:"value"`
}

// Handler executes one broadcast operation on a member. The returned value
// is JSON-encoded into the reply; an error degrades the reply to null.
type Handler func(ctx context.Context, method string, args json.RawMessage) (any, error)

// Channel is the group-communication boundary.
type Channel interface {
	// Broadcast sends one request to every serving member and returns the
	// replies that arrived before the timeout. An empty slice means no
	// member received the request.
	Broadcast(ctx context.Context, method string, args any, timeout time.Duration) ([]Response, error)

	// Serve joins the group and dispatches inbound requests to h until ctx
	// is cancelled. A member's own broadcasts are never dispatched to
	// itself.
	Serve(ctx context.Context, h Handler) error

	// Members returns the number of currently serving members.
	Members(ctx context.Context) (int, error)

	// Close releases the channel's resources.
	Close() error
}
