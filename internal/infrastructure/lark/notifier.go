package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
)

const (
	receiveIDTypeChat = "chat_id"
	msgTypeText       = "text"
)

// MessageCreator is the part of the Lark IM message API the notifier uses
type MessageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// NotifierConfig holds chat routing and delivery settings
type NotifierConfig struct {
	// Chats maps a notification topic to the group chat that receives it
	Chats map[entity.Topic]string

	SendBuffer  int
	SendTimeout time.Duration
}

// DefaultNotifierConfig returns default delivery settings with no chats
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		SendBuffer:  256,
		SendTimeout: 10 * time.Second,
	}
}

// NotifierStats counts message outcomes
type NotifierStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

type outbound struct {
	chatID string
	topic  entity.Topic
	evt    *event.Event
}

// ChatNotifier posts claim events to Lark group chats. It joins the hub
// through one subscriber per configured topic and sends from its own
// goroutine, so a slow or failing Lark API never blocks or evicts it.
type ChatNotifier struct {
	messages MessageCreator
	config   NotifierConfig
	logger   *zap.Logger

	queue chan outbound

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NotifierOption configures a ChatNotifier
type NotifierOption func(*ChatNotifier)

// WithLogger sets the notifier logger
func WithLogger(logger *zap.Logger) NotifierOption {
	return func(n *ChatNotifier) {
		n.logger = logger
	}
}

// NewChatNotifier creates a notifier sending through messages
func NewChatNotifier(messages MessageCreator, config NotifierConfig, opts ...NotifierOption) *ChatNotifier {
	defaults := DefaultNotifierConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	n := &ChatNotifier{
		messages: messages,
		config:   config,
		logger:   zap.NewNop(),
		queue:    make(chan outbound, config.SendBuffer),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe joins transport on every topic that has a chat
func (n *ChatNotifier) Subscribe(transport port.NotificationTransport) {
	for topic, chatID := range n.config.Chats {
		if chatID == "" {
			continue
		}
		transport.Subscribe(topic, &chatSubscriber{notifier: n, topic: topic, chatID: chatID})
	}
}

// Name returns the worker name for identification
func (n *ChatNotifier) Name() string {
	return "lark-notifier"
}

// Start begins posting queued events
func (n *ChatNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("lark notifier already running")
	}
	n.stop = make(chan struct{})
	n.done = make(chan struct{})
	n.running = true

	go n.loop(n.stop, n.done)

	n.logger.Info("Lark notifier started", zap.Int("chats", len(n.config.Chats)))
	return nil
}

// Stop posts what is already queued, then returns
func (n *ChatNotifier) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	stop, done := n.stop, n.done
	n.mu.Unlock()

	close(stop)
	<-done

	stats := n.Stats()
	n.logger.Info("Lark notifier stopped",
		zap.Int64("sent", stats.Sent),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped))
	return nil
}

// Stats returns message counters
func (n *ChatNotifier) Stats() NotifierStats {
	return NotifierStats{
		Sent:    n.sent.Load(),
		Failed:  n.failed.Load(),
		Dropped: n.dropped.Load(),
	}
}

func (n *ChatNotifier) enqueue(msg outbound) {
	select {
	case n.queue <- msg:
	default:
		n.dropped.Add(1)
		n.logger.Warn("Lark queue full, dropping event",
			zap.String("topic", msg.topic.String()),
			zap.Int64("claim_id", msg.evt.ClaimID))
	}
}

func (n *ChatNotifier) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case msg := <-n.queue:
			n.post(msg)
		case <-stop:
			for {
				select {
				case msg := <-n.queue:
					n.post(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *ChatNotifier) post(msg outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.SendTimeout)
	defer cancel()

	messageID, err := n.send(ctx, msg.chatID, FormatText(msg.evt))
	if err != nil {
		n.failed.Add(1)
		n.logger.Error("Failed to post event to Lark",
			zap.String("topic", msg.topic.String()),
			zap.Int64("claim_id", msg.evt.ClaimID),
			zap.String("event_id", msg.evt.ID),
			zap.Error(err))
		return
	}

	n.sent.Add(1)
	n.logger.Debug("Event posted to Lark",
		zap.String("message_id", messageID),
		zap.String("topic", msg.topic.String()),
		zap.Int64("claim_id", msg.evt.ClaimID))
}

// send posts a text message to a chat and returns the Lark message ID
func (n *ChatNotifier) send(ctx context.Context, chatID, text string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeChat).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgTypeText).
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	return messageID, nil
}

// FormatText renders an event as a one-line chat message
func FormatText(evt *event.Event) string {
	text := evt.GetPayloadString(event.KeyMessage)
	if text == "" {
		text = fmt.Sprintf("Claim #%d is now %s.", evt.ClaimID, evt.GetPayloadString(event.KeyStatus))
	}
	return fmt.Sprintf("[%s] %s (amount %.2f)", evt.Type, text, evt.GetPayloadFloat(event.KeyAmount))
}

// chatSubscriber is the hub-facing side of one topic's chat
type chatSubscriber struct {
	notifier *ChatNotifier
	topic    entity.Topic
	chatID   string
}

func (s *chatSubscriber) ID() string {
	return "lark:" + s.topic.String()
}

// Send queues evt and never fails, so the hub keeps the subscription
func (s *chatSubscriber) Send(ctx context.Context, evt *event.Event) error {
	s.notifier.enqueue(outbound{chatID: s.chatID, topic: s.topic, evt: evt})
	return nil
}

// Verify interface compliance
var _ port.Subscriber = (*chatSubscriber)(nil)
