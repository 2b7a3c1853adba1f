package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/notification"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

func dial(t *testing.T, hub *notification.Hub) (*websocket.Conn, *Handler) {
	t.Helper()
	handler := NewHandler(Config{}, hub, zap.NewNop())
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, handler
}

func readMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandler_JoinReceiveLeave(t *testing.T) {
	hub := notification.NewHub()
	conn, _ := dial(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionJoin, Group: "Managers"}))
	ack := readMessage(t, conn)
	assert.Equal(t, TypeAck, ack.Type)
	assert.Equal(t, "Managers", ack.Group)
	require.Len(t, hub.Members(entity.TopicManagers), 1)

	evt := event.NewEvent(event.TypeCoordinatorApproved, 5, 2, map[string]interface{}{
		event.KeyStatus: workflow.StatusWithManager,
	})
	require.NoError(t, hub.Publish(context.Background(), entity.TopicManagers, evt))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, evt.ID, msg.Event.ID)
	assert.Equal(t, "With Manager", msg.Event.GetPayloadString(event.KeyStatus))

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionLeave, Group: "Managers"}))
	assert.Equal(t, TypeAck, readMessage(t, conn).Type)
	assert.Empty(t, hub.Members(entity.TopicManagers))
}

func TestHandler_EveryConnectionHearsBroadcasts(t *testing.T) {
	hub := notification.NewHub()
	conn, handler := dial(t, hub)

	require.Eventually(t, func() bool {
		return len(hub.Members(entity.TopicAll)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, handler.Connections())

	require.NoError(t, hub.Publish(context.Background(), entity.TopicAll,
		event.NewEvent(event.TypeClaimStatusBroadcast, 1, 1, nil)))
	assert.Equal(t, event.TypeClaimStatusBroadcast, readMessage(t, conn).Event.Type)
}

func TestHandler_RejectsBadMessages(t *testing.T) {
	hub := notification.NewHub()
	conn, _ := dial(t, hub)

	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"unknown group", ClientMessage{Action: ActionJoin, Group: "Deans"}},
		{"unknown action", ClientMessage{Action: "shout", Group: "HR"}},
		{"leave broadcast", ClientMessage{Action: ActionLeave, Group: "All"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.msg))
			msg := readMessage(t, conn)
			assert.Equal(t, TypeError, msg.Type)
			assert.NotEmpty(t, msg.Error)
		})
	}
	assert.Empty(t, hub.Members(entity.TopicHR))
}

func TestHandler_DisconnectLeavesAllGroups(t *testing.T) {
	hub := notification.NewHub()
	conn, handler := dial(t, hub)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: ActionJoin, Group: "Lecturer_7"}))
	readMessage(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(hub.Members(entity.LecturerTopic(7))) == 0 &&
			len(hub.Members(entity.TopicAll)) == 0 &&
			handler.Connections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_SendWhenBufferFull(t *testing.T) {
	c := &client{
		id:     "slow",
		send:   make(chan ServerMessage, 1),
		closed: make(chan struct{}),
		topics: make(map[entity.Topic]bool),
	}
	evt := event.NewEvent(event.TypeStatusChanged, 1, 1, nil)

	require.NoError(t, c.Send(context.Background(), evt))
	err := c.Send(context.Background(), evt)
	assert.ErrorIs(t, err, workflow.ErrNotificationDelivery)

	// Closed after overflowing
	err = c.Send(context.Background(), evt)
	assert.ErrorIs(t, err, errClientGone)
}
