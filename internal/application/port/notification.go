package port

import (
	"context"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
)

// Subscriber receives events for the topics it joined
type Subscriber interface {
	ID() string
	Send(ctx context.Context, evt *event.Event) error
}

// NotificationTransport defines topic-based pub/sub.
// Delivery is at most once and ordered per topic for a given publisher.
type NotificationTransport interface {
	Publish(ctx context.Context, topic entity.Topic, evt *event.Event) error
	Subscribe(topic entity.Topic, sub Subscriber)
	Unsubscribe(topic entity.Topic, sub Subscriber)
}
