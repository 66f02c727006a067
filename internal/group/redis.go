package group

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisChannel implements Channel over Redis Pub/Sub. The group shares one
// request channel named after the group; PUBLISH reports how many members
// received a request, which is the reply count a broadcast waits for.
// Replies come back on a per-request reply channel.
type RedisChannel struct {
	rdb   *redis.Client
	group string
	name  string
}

// NewRedisChannel wraps a Redis client as a group channel. memberName
// identifies this process in replies and logs.
func NewRedisChannel(rdb *redis.Client, groupName, memberName string) *RedisChannel {
	return &RedisChannel{rdb: rdb, group: groupName, name: memberName}
}

func (c *RedisChannel) requestChannel() string {
	return c.group + ".requests"
}

// Broadcast publishes one request and collects replies until it has as many
// as the publish reached, or the timeout elapses.
func (c *RedisChannel) Broadcast(ctx context.Context, method string, args any, timeout time.Duration) ([]Response, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("group: marshal %s args: %w", method, err)
	}

	req := Request{
		ID:     uuid.NewString(),
		Method: method,
		Args:   payload,
	}
	req.ReplyTo = c.group + ".reply." + req.ID

	// Subscribe to the reply channel before publishing so no reply can
	// slip past.
	sub := c.rdb.Subscribe(ctx, req.ReplyTo)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("group: subscribe reply channel: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("group: marshal request: %w", err)
	}
	expected, err := c.rdb.Publish(ctx, c.requestChannel(), body).Result()
	if err != nil {
		return nil, fmt.Errorf("group: publish %s: %w", method, err)
	}
	if expected == 0 {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	replies := make([]Response, 0, expected)
	msgs := sub.Channel()
	for len(replies) < int(expected) {
		select {
		case <-ctx.Done():
			return replies, ctx.Err()
		case <-timer.C:
			slog.Warn("broadcast timed out",
				"method", method, "expected", expected, "received", len(replies))
			return replies, nil
		case m, ok := <-msgs:
			if !ok {
				return replies, nil
			}
			var resp Response
			if err := json.Unmarshal([]byte(m.Payload), &resp); err != nil {
				slog.Warn("malformed reply dropped", "method", method, "err", err)
				continue
			}
			if resp.RequestID != req.ID {
				continue
			}
			replies = append(replies, resp)
		}
	}
	return replies, nil
}

// Serve subscribes to the group's request channel and dispatches each
// request to h. It returns when ctx is cancelled. This member only starts
// receiving broadcasts here, so anything it broadcast before serving (the
// bootstrap queries) never loops back to itself.
func (c *RedisChannel) Serve(ctx context.Context, h Handler) error {
	sub := c.rdb.Subscribe(ctx, c.requestChannel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("group: join %s: %w", c.group, err)
	}
	slog.Info("joined group channel", "group", c.group, "member", c.name)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			go c.dispatch(ctx, h, m.Payload)
		}
	}
}

func (c *RedisChannel) dispatch(ctx context.Context, h Handler, payload string) {
	var req Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		slog.Warn("malformed request dropped", "member", c.name, "err", err)
		return
	}

	value, err := h(ctx, req.Method, req.Args)
	if err != nil {
		// Degrade to a null reply; the operation failed locally but the
		// replica stays up.
		slog.Error("backend call failed", "method", req.Method, "err", err)
		value = nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("marshal reply failed", "method", req.Method, "err", err)
		data = []byte("null")
	}

	body, err := json.Marshal(Response{RequestID: req.ID, Replica: c.name, Value: data})
	if err != nil {
		slog.Error("marshal response failed", "method", req.Method, "err", err)
		return
	}
	if err := c.rdb.Publish(ctx, req.ReplyTo, body).Err(); err != nil {
		slog.Error("publish reply failed", "method", req.Method, "err", err)
	}
}

// Members reports how many members are subscribed to the request channel.
func (c *RedisChannel) Members(ctx context.Context) (int, error) {
	counts, err := c.rdb.PubSubNumSub(ctx, c.requestChannel()).Result()
	if err != nil {
		return 0, fmt.Errorf("group: member count: %w", err)
	}
	return int(counts[c.requestChannel()]), nil
}

// Close releases the underlying Redis client.
func (c *RedisChannel) Close() error {
	return c.rdb.Close()
}
