package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// members is one topic's subscriber set, guarded by its own lock
type members struct {
	mu   sync.RWMutex
	subs map[string]port.Subscriber
}

// Hub is the in-process NotificationTransport. Topics are created on first
// subscribe; a subscriber that fails a delivery is dropped from every topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[entity.Topic]*members
	logger Logger
}

// HubOption configures the hub
type HubOption func(*Hub)

// WithHubLogger sets a logger for the hub
func WithHubLogger(logger Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		topics: make(map[entity.Topic]*members),
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) topic(name entity.Topic, create bool) *members {
	h.mu.RLock()
	m, ok := h.topics[name]
	h.mu.RUnlock()
	if ok || !create {
		return m
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok = h.topics[name]; !ok {
		m = &members{subs: make(map[string]port.Subscriber)}
		h.topics[name] = m
	}
	return m
}

// Subscribe adds sub to topic; subscribing twice is a no-op
func (h *Hub) Subscribe(topic entity.Topic, sub port.Subscriber) {
	m := h.topic(topic, true)
	m.mu.Lock()
	m.subs[sub.ID()] = sub
	m.mu.Unlock()

	h.logger.Info("Subscriber joined topic", "topic", topic, "subscriber_id", sub.ID())
}

// Unsubscribe removes sub from topic
func (h *Hub) Unsubscribe(topic entity.Topic, sub port.Subscriber) {
	m := h.topic(topic, false)
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.subs, sub.ID())
	m.mu.Unlock()

	h.logger.Info("Subscriber left topic", "topic", topic, "subscriber_id", sub.ID())
}

// UnsubscribeAll removes sub from every topic, typically on disconnect
func (h *Hub) UnsubscribeAll(sub port.Subscriber) {
	h.mu.RLock()
	all := make([]*members, 0, len(h.topics))
	for _, m := range h.topics {
		all = append(all, m)
	}
	h.mu.RUnlock()

	for _, m := range all {
		m.mu.Lock()
		delete(m.subs, sub.ID())
		m.mu.Unlock()
	}
}

// Members returns the IDs subscribed to topic
func (h *Hub) Members(topic entity.Topic) []string {
	m := h.topic(topic, false)
	if m == nil {
		return []string{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	return ids
}

// Publish delivers evt to the current members of topic. A topic without
// members is not an error. Failed subscribers are removed and reported as
// ErrNotificationDelivery.
func (h *Hub) Publish(ctx context.Context, topic entity.Topic, evt *event.Event) error {
	m := h.topic(topic, false)
	if m == nil {
		return nil
	}

	m.mu.RLock()
	targets := make([]port.Subscriber, 0, len(m.subs))
	for _, sub := range m.subs {
		targets = append(targets, sub)
	}
	m.mu.RUnlock()

	var errs []error
	for _, sub := range targets {
		if err := sub.Send(ctx, evt); err != nil {
			h.UnsubscribeAll(sub)
			errs = append(errs, fmt.Errorf("%w: subscriber %s on %s: %v",
				workflow.ErrNotificationDelivery, sub.ID(), topic, err))
		}
	}
	return errors.Join(errs...)
}

// Verify interface compliance
var _ port.NotificationTransport = (*Hub)(nil)
