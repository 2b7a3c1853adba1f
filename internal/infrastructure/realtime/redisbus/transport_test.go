package redisbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/notification"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSubscriber) Events() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event(nil), r.events...)
}

type instance struct {
	hub       *notification.Hub
	transport *Transport
	relay     *Relay
}

func startInstance(t *testing.T, addr string) *instance {
	t.Helper()
	client, err := OpenRedis(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	hub := notification.NewHub()
	transport := NewTransport(client, hub, "", zap.NewNop())
	relay := NewRelay(transport, hub, time.Second, zap.NewNop())
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(func() { _ = relay.Stop() })

	return &instance{hub: hub, transport: transport, relay: relay}
}

func TestOpenRedis_Failure(t *testing.T) {
	_, err := OpenRedis("not-a-real-host:6379", "", 0)
	assert.Error(t, err)
}

func TestTransport_ReachesSubscribersOnEveryInstance(t *testing.T) {
	s := miniredis.RunT(t)
	a := startInstance(t, s.Addr())
	b := startInstance(t, s.Addr())

	local := &recordingSubscriber{id: "a-managers"}
	remote := &recordingSubscriber{id: "b-managers"}
	bystander := &recordingSubscriber{id: "b-hr"}
	a.transport.Subscribe(entity.TopicManagers, local)
	b.transport.Subscribe(entity.TopicManagers, remote)
	b.transport.Subscribe(entity.TopicHR, bystander)

	evt := event.NewEvent(event.TypeCoordinatorApproved, 12, 3, map[string]interface{}{
		event.KeyStatus: workflow.StatusWithManager,
		event.KeyAmount: 9625.0,
	})
	require.NoError(t, a.transport.Publish(context.Background(), entity.TopicManagers, evt))

	require.Eventually(t, func() bool {
		return len(local.Events()) == 1 && len(remote.Events()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := remote.Events()[0]
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, event.TypeCoordinatorApproved, got.Type)
	assert.Equal(t, int64(12), got.ClaimID)
	assert.Equal(t, int64(3), got.Sequence)
	assert.Equal(t, "With Manager", got.GetPayloadString(event.KeyStatus))
	assert.Equal(t, 9625.0, got.GetPayloadFloat(event.KeyAmount))
	assert.Empty(t, bystander.Events())
}

func TestTransport_KeepsPublishOrder(t *testing.T) {
	s := miniredis.RunT(t)
	a := startInstance(t, s.Addr())
	b := startInstance(t, s.Addr())

	owner := &recordingSubscriber{id: "owner"}
	b.transport.Subscribe(entity.LecturerTopic(7), owner)

	dispatcher := notification.NewDispatcher(notification.DispatcherConfig{Shards: 4}, a.transport)
	require.NoError(t, dispatcher.Start(context.Background()))

	for seq := int64(1); seq <= 20; seq++ {
		evt := event.NewEvent(event.TypeStatusChanged, 1, seq, nil)
		require.NoError(t, dispatcher.Enqueue(1, []event.Envelope{{Topic: entity.LecturerTopic(7), Event: evt}}))
	}
	require.NoError(t, dispatcher.Stop())

	require.Eventually(t, func() bool {
		return len(owner.Events()) == 20
	}, 2*time.Second, 10*time.Millisecond)

	for i, evt := range owner.Events() {
		assert.Equal(t, int64(i+1), evt.Sequence)
	}
}

func TestTransport_PublishFailureIsDeliveryError(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := OpenRedis(s.Addr(), "", 0)
	require.NoError(t, err)

	transport := NewTransport(client, notification.NewHub(), "", zap.NewNop())
	require.NoError(t, client.Close())

	err = transport.Publish(context.Background(), entity.TopicAll, event.NewEvent(event.TypeClaimStatusBroadcast, 1, 1, nil))
	assert.ErrorIs(t, err, workflow.ErrNotificationDelivery)
}

func TestRelay_IgnoresGarbage(t *testing.T) {
	s := miniredis.RunT(t)
	a := startInstance(t, s.Addr())

	all := &recordingSubscriber{id: "all"}
	a.hub.Subscribe(entity.TopicAll, all)

	s.Publish(DefaultChannelPrefix+"All", "not json")
	s.Publish(DefaultChannelPrefix+"Nobody", "{}")
	require.NoError(t, a.transport.Publish(context.Background(), entity.TopicAll,
		event.NewEvent(event.TypeClaimStatusBroadcast, 1, 1, nil)))

	require.Eventually(t, func() bool {
		return len(all.Events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), a.relay.Relayed())

	require.NoError(t, a.relay.Stop())
	require.NoError(t, a.relay.Stop())
}

func TestTransport_ChannelNames(t *testing.T) {
	tr := NewTransport(nil, notification.NewHub(), "test:", zap.NewNop())
	assert.Equal(t, "test:Lecturer_7", tr.channel(entity.LecturerTopic(7)))

	topic, ok := tr.topicOf("test:Managers")
	assert.True(t, ok)
	assert.Equal(t, entity.TopicManagers, topic)

	_, ok = tr.topicOf("other:Managers")
	assert.False(t, ok)
}
