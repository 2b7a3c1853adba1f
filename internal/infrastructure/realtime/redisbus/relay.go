package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/event"
)

// Relay is a worker that listens on every notification channel and hands
// received events to the local hub.
type Relay struct {
	transport      *Transport
	hub            port.NotificationTransport
	logger         *zap.Logger
	deliverTimeout time.Duration

	mu      sync.Mutex
	pubsub  *redis.PubSub
	done    chan struct{}
	relayed atomic.Int64
	failed  atomic.Int64
}

// NewRelay creates a relay feeding hub from the transport's channels
func NewRelay(transport *Transport, hub port.NotificationTransport, deliverTimeout time.Duration, logger *zap.Logger) *Relay {
	if deliverTimeout <= 0 {
		deliverTimeout = 2 * time.Second
	}
	return &Relay{
		transport:      transport,
		hub:            hub,
		logger:         logger,
		deliverTimeout: deliverTimeout,
	}
}

// Name returns the worker name for identification
func (r *Relay) Name() string {
	return "redis-relay"
}

// Start subscribes and waits for Redis to confirm before returning
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub != nil {
		return fmt.Errorf("redis relay already running")
	}

	pubsub := r.transport.client.PSubscribe(ctx, r.transport.pattern())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.transport.pattern(), err)
	}

	r.pubsub = pubsub
	r.done = make(chan struct{})
	go r.loop(pubsub.Channel(), r.done)

	r.logger.Info("Redis relay started", zap.String("pattern", r.transport.pattern()))
	return nil
}

func (r *Relay) loop(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		r.deliver(msg)
	}
}

func (r *Relay) deliver(msg *redis.Message) {
	topic, ok := r.transport.topicOf(msg.Channel)
	if !ok {
		r.logger.Warn("Ignoring message on unknown channel", zap.String("channel", msg.Channel))
		return
	}

	var evt event.Event
	if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to decode relayed event", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.deliverTimeout)
	defer cancel()

	if err := r.hub.Publish(ctx, topic, &evt); err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to deliver relayed event",
			zap.String("topic", topic.String()),
			zap.Int64("claim_id", evt.ClaimID),
			zap.Error(err))
		return
	}
	r.relayed.Add(1)
}

// Stop closes the subscription and waits for in-flight deliveries
func (r *Relay) Stop() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	<-done

	r.logger.Info("Redis relay stopped",
		zap.Int64("relayed", r.relayed.Load()),
		zap.Int64("failed", r.failed.Load()))
	return err
}

// Relayed returns the number of events handed to the hub
func (r *Relay) Relayed() int64 {
	return r.relayed.Load()
}
