// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package hostfunc

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/wand/internal/bridge"
)

type subscription struct {
	owner string
	cb    bridge.Callback
}

// Events is a topic-keyed fan-out of plugin callbacks. Delivery is
// synchronous and in subscription order.
//
// Events is safe for concurrent use.
type Events struct {
	subs   map[string][]subscription
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewEvents creates an empty bus.
func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe adds cb as a handler for topic on behalf of owner.
func (e *Events) Subscribe(owner, topic string, cb bridge.Callback) error {
	if topic == "" {
		return oops.In("hostfunc").With("owner", owner).New("topic cannot be empty")
	}
	if cb == nil {
		return oops.In("hostfunc").With("topic", topic).New("callback cannot be nil")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[topic] = append(e.subs[topic], subscription{owner: owner, cb: cb})
	return nil
}

// Emit calls every handler of topic with payload and returns how many
// succeeded. Handler failures are logged and do not stop delivery.
func (e *Events) Emit(ctx context.Context, topic, payload string) int {
	e.mu.RLock()
	subs := slices.Clone(e.subs[topic])
	e.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if _, err := s.cb(ctx, topic, payload); err != nil {
			e.logger.Warn("event handler failed",
				"topic", topic,
				"subscriber", s.owner,
				"error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Drop removes every subscription held by owner.
func (e *Events) Drop(owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for topic, subs := range e.subs {
		subs = slices.DeleteFunc(subs, func(s subscription) bool { return s.owner == owner })
		if len(subs) == 0 {
			delete(e.subs, topic)
			continue
		}
		e.subs[topic] = subs
	}
}

// Topics returns the topics with at least one subscriber, sorted.
func (e *Events) Topics() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	topics := make([]string, 0, len(e.subs))
	for t := range e.subs {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

func (e *Events) subscribe(_ context.Context, call *bridge.Call) (any, error) {
	return nil, e.Subscribe(call.Caller(), bridge.Arg[string](call, 0), bridge.Arg[bridge.Callback](call, 1))
}

func (e *Events) emit(ctx context.Context, call *bridge.Call) (any, error) {
	return int32(e.Emit(ctx, bridge.Arg[string](call, 0), bridge.Arg[string](call, 1))), nil //nolint:gosec // subscriber counts stay small
}
