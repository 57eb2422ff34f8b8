// Package hub tracks which callers currently observe which conversations and
// fans freshly appended messages out to them.
//
// It provides best-effort delivery with no guarantees regarding ordering
// across conversations, durability, or retries. The hub is not a message
// broker: durability lives in the store, and a missed push is recovered via
// history pagination.
package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/observability"
)

var ErrSinkFull = fmt.Errorf("subscriber buffer full, event dropped")

// Subscription is the handle returned to a connected observer. Its lifecycle
// is exactly Unsubscribed -> Subscribed -> Unsubscribed; Cancel is terminal
// and idempotent.
type Subscription struct {
	Sink     *Sink
	registry *Registry
	conv     domain.ConversationID
	observer domain.UserID
	once     sync.Once
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.registry.unsubscribe(s.conv, s.observer, s.Sink)
	})
}

// Registry is the in-process subscription table. Observer count per
// conversation is two at most (only participants may subscribe, enforced by
// the service layer before registration), so a flat nested map under one
// RWMutex is all the structure needed.
type Registry struct {
	mu         sync.RWMutex
	observers  map[domain.ConversationID]map[domain.UserID]*Sink
	log        *slog.Logger
	metrics    *observability.Metrics
	bufferSize int
}

func NewRegistry(log *slog.Logger, metrics *observability.Metrics, bufferSize int) *Registry {
	return &Registry{
		observers:  make(map[domain.ConversationID]map[domain.UserID]*Sink),
		log:        log,
		metrics:    metrics,
		bufferSize: bufferSize,
	}
}

// Subscribe registers observer on a conversation and returns the handle the
// transport drains. A second subscribe from the same observer replaces the
// previous sink: one live connection per participant per conversation.
func (r *Registry) Subscribe(conv domain.ConversationID, observer domain.UserID) *Subscription {
	sink := NewSink(r.bufferSize)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.observers[conv]; !ok {
		r.observers[conv] = make(map[domain.UserID]*Sink)
	}
	r.observers[conv][observer] = sink

	return &Subscription{Sink: sink, registry: r, conv: conv, observer: observer}
}

// unsubscribe removes the entry only while it still points at sink. A stale
// handle whose sink was already replaced by a reconnect must not tear down
// the replacement.
func (r *Registry) unsubscribe(conv domain.ConversationID, observer domain.UserID, sink *Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.observers[conv]
	if !ok || members[observer] != sink {
		return
	}
	delete(members, observer)

	// No empty sets left behind, the table stays proportional to live
	// connections.
	if len(members) == 0 {
		delete(r.observers, conv)
	}
}

// Publish delivers e to every current observer of its conversation,
// at-most-once each. Consume is non-blocking, so a stalled or full sink
// costs the publisher nothing; failures are logged, never returned, because
// the message is already durable when this runs.
func (r *Registry) Publish(e event.DomainEvent) {
	r.mu.RLock()
	members := r.observers[e.ConversationID()]
	sinks := make([]*Sink, 0, len(members))
	for _, sink := range members {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Consume(e); err != nil {
			r.metrics.IncrPushesDropped()
			r.log.Debug("push dropped",
				"conversation", e.ConversationID(),
				"error", err)
			continue
		}
		r.metrics.IncrPushesDelivered()
	}
}

// ObserverCount reports live subscriptions, for the stats endpoint.
func (r *Registry) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, members := range r.observers {
		count += len(members)
	}
	return count
}
