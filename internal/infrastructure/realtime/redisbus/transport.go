package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Transport publishes events to Redis; membership stays in the local hub.
// Every instance, this one included, receives published events through its
// Relay, so local and remote subscribers see the same order.
type Transport struct {
	client *redis.Client
	local  port.NotificationTransport
	prefix string
	logger *zap.Logger
}

// NewTransport creates a Redis-backed transport over the local hub
func NewTransport(client *redis.Client, local port.NotificationTransport, prefix string, logger *zap.Logger) *Transport {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Transport{
		client: client,
		local:  local,
		prefix: prefix,
		logger: logger,
	}
}

// Publish sends evt to every instance listening on topic
func (t *Transport) Publish(ctx context.Context, topic entity.Topic, evt *event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%w: encode event %s: %v", workflow.ErrNotificationDelivery, evt.ID, err)
	}

	if err := t.client.Publish(ctx, t.channel(topic), data).Err(); err != nil {
		t.logger.Error("Failed to publish to redis",
			zap.String("topic", topic.String()),
			zap.Int64("claim_id", evt.ClaimID),
			zap.Error(err))
		return fmt.Errorf("%w: publish %s to %s: %v", workflow.ErrNotificationDelivery, evt.Type, topic, err)
	}
	return nil
}

// Subscribe adds sub to the local topic membership
func (t *Transport) Subscribe(topic entity.Topic, sub port.Subscriber) {
	t.local.Subscribe(topic, sub)
}

// Unsubscribe removes sub from the local topic membership
func (t *Transport) Unsubscribe(topic entity.Topic, sub port.Subscriber) {
	t.local.Unsubscribe(topic, sub)
}

func (t *Transport) channel(topic entity.Topic) string {
	return t.prefix + topic.String()
}

func (t *Transport) pattern() string {
	return t.prefix + "*"
}

func (t *Transport) topicOf(channel string) (entity.Topic, bool) {
	name, ok := strings.CutPrefix(channel, t.prefix)
	if !ok {
		return "", false
	}
	topic, err := entity.ParseTopic(name)
	if err != nil {
		return "", false
	}
	return topic, true
}

// Verify interface compliance
var _ port.NotificationTransport = (*Transport)(nil)
