package group

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalHub connects members of one group in-process. It backs the tests and
// the single-binary demo with the same Channel contract the Redis transport
// provides: broadcasts reach every serving member except the sender, and
// the sender collects replies under a timeout.
type LocalHub struct {
	mu      sync.Mutex
	members map[string]*localMember
}

// NewLocalHub creates an empty in-process group.
func NewLocalHub() *LocalHub {
	return &LocalHub{members: make(map[string]*localMember)}
}

// Join adds a member and returns its channel endpoint.
func (h *LocalHub) Join(name string) Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := &localMember{hub: h, name: name}
	h.members[name] = m
	return m
}

// JoinServing adds a member whose handler is live immediately, without the
// Serve call. Tests use it to stand up replicas synchronously.
func (h *LocalHub) JoinServing(name string, handler Handler) Channel {
	ch := h.Join(name)
	h.setHandler(name, handler)
	return ch
}

// serving snapshots every member with a registered handler, except the one
// named by exclude.
func (h *LocalHub) serving(exclude string) []*localMember {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*localMember
	for name, m := range h.members {
		if name == exclude {
			continue
		}
		if m.handler != nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *LocalHub) setHandler(name string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.members[name]; ok {
		m.handler = handler
	}
}

func (h *LocalHub) remove(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, name)
}

type localMember struct {
	hub     *LocalHub
	name    string
	handler Handler // guarded by hub.mu
}

// Broadcast fans the request out to every other serving member and collects
// their replies, mirroring the Redis transport's expected-count semantics.
func (m *localMember) Broadcast(ctx context.Context, method string, args any, timeout time.Duration) ([]Response, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()

	targets := m.hub.serving(m.name)
	if len(targets) == 0 {
		return nil, nil
	}

	results := make(chan Response, len(targets))
	for _, t := range targets {
		go func(t *localMember) {
			value, err := t.handler(ctx, method, payload)
			if err != nil {
				value = nil
			}
			data, err := json.Marshal(value)
			if err != nil {
				data = []byte("null")
			}
			results <- Response{RequestID: id, Replica: t.name, Value: data}
		}(t)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	replies := make([]Response, 0, len(targets))
	for len(replies) < len(targets) {
		select {
		case <-ctx.Done():
			return replies, ctx.Err()
		case <-timer.C:
			return replies, nil
		case r := <-results:
			replies = append(replies, r)
		}
	}
	return replies, nil
}

// Serve registers the handler and blocks until ctx is cancelled.
func (m *localMember) Serve(ctx context.Context, h Handler) error {
	m.hub.setHandler(m.name, h)
	<-ctx.Done()
	m.hub.setHandler(m.name, nil)
	return ctx.Err()
}

// Members counts the members currently serving.
func (m *localMember) Members(ctx context.Context) (int, error) {
	return len(m.hub.serving("")), nil
}

// Close removes this member from the hub.
func (m *localMember) Close() error {
	m.hub.remove(m.name)
	return nil
}
