package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, fmt.Sprint(append([]interface{}{msg}, keysAndValues...)...))
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

// recordingSubscriber keeps every event it receives
type recordingSubscriber struct {
	id      string
	mu      sync.Mutex
	events  []*event.Event
	sendErr error
}

func newRecorder(id string) *recordingSubscriber {
	return &recordingSubscriber{id: id}
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSubscriber) Events() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event(nil), r.events...)
}

// mockTransport is a func-field NotificationTransport
type mockTransport struct {
	publishFunc func(ctx context.Context, topic entity.Topic, evt *event.Event) error
}

func (m *mockTransport) Publish(ctx context.Context, topic entity.Topic, evt *event.Event) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, topic, evt)
	}
	return nil
}

func (m *mockTransport) Subscribe(topic entity.Topic, sub port.Subscriber)   {}
func (m *mockTransport) Unsubscribe(topic entity.Topic, sub port.Subscriber) {}

var errGone = errors.New("connection closed")
