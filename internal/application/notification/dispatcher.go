package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/domain/event"
)

// ErrDispatcherClosed is returned when the dispatcher no longer accepts work
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher publishes envelopes off the caller's path. All envelopes of a
// claim leave through one sequential worker, in the order they were enqueued.
type Dispatcher interface {
	// Enqueue schedules envelopes for claimID and never blocks
	Enqueue(claimID int64, envelopes []event.Envelope) error

	// Start launches the shard workers
	Start(ctx context.Context) error

	// Stop drains queued envelopes, bounded by the drain timeout
	Stop() error

	// Name identifies the worker
	Name() string

	// Stats returns delivery counters
	Stats() DispatchStats
}

// DispatchStats counts envelope outcomes since start
type DispatchStats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int64 `json:"queued"`
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	Shards         int
	PublishTimeout time.Duration
	DrainTimeout   time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Shards:         8,
		PublishTimeout: 2 * time.Second,
		DrainTimeout:   5 * time.Second,
	}
}

// shard is an unbounded FIFO drained by a single goroutine
type shard struct {
	mu     sync.Mutex
	queue  []event.Envelope
	signal chan struct{}
}

func (s *shard) push(envelopes []event.Envelope) {
	s.mu.Lock()
	s.queue = append(s.queue, envelopes...)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *shard) take() []event.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

// orderedDispatcher is the concrete implementation of Dispatcher
type orderedDispatcher struct {
	config    DispatcherConfig
	transport port.NotificationTransport
	logger    Logger
	shards    []*shard

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// gate orders Enqueue against Stop so nothing is pushed after the final drain
	gate   sync.RWMutex
	closed bool

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	queued    atomic.Int64
}

// Option configures the dispatcher
type Option func(*orderedDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *orderedDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher publishing through transport
func NewDispatcher(config DispatcherConfig, transport port.NotificationTransport, opts ...Option) Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Shards <= 0 {
		config.Shards = defaults.Shards
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}

	d := &orderedDispatcher{
		config:    config,
		transport: transport,
		logger:    nopLogger{},
		shards:    make([]*shard, config.Shards),
		stop:      make(chan struct{}),
	}
	for i := range d.shards {
		d.shards[i] = &shard{signal: make(chan struct{}, 1)}
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Name identifies the worker
func (d *orderedDispatcher) Name() string {
	return "notification-dispatcher"
}

// Enqueue schedules envelopes for claimID and never blocks
func (d *orderedDispatcher) Enqueue(claimID int64, envelopes []event.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}

	d.gate.RLock()
	defer d.gate.RUnlock()

	if d.closed {
		d.dropped.Add(int64(len(envelopes)))
		d.logger.Error("Cannot enqueue notifications, dispatcher is closed",
			"claim_id", claimID,
			"count", len(envelopes),
		)
		return ErrDispatcherClosed
	}

	d.queued.Add(int64(len(envelopes)))
	d.shardFor(claimID).push(envelopes)
	return nil
}

func (d *orderedDispatcher) shardFor(claimID int64) *shard {
	return d.shards[uint64(claimID)%uint64(len(d.shards))]
}

// Start launches the shard workers
func (d *orderedDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("dispatcher already started")
	}
	if d.isClosed() {
		return ErrDispatcherClosed
	}
	d.started = true

	for _, s := range d.shards {
		d.wg.Add(1)
		go d.run(s)
	}

	d.logger.Info("Notification dispatcher started", "shards", len(d.shards))
	return nil
}

// run drains one shard until stop, then flushes what is left
func (d *orderedDispatcher) run(s *shard) {
	defer d.wg.Done()

	for {
		select {
		case <-s.signal:
			d.deliver(s.take())
		case <-d.stop:
			d.deliver(s.take())
			return
		}
	}
}

func (d *orderedDispatcher) deliver(batch []event.Envelope) {
	for _, env := range batch {
		d.queued.Add(-1)
		if err := d.safePublish(env); err != nil {
			d.failed.Add(1)
			d.logger.Error("Notification delivery failed",
				"topic", env.Topic,
				"event_type", env.Event.Type,
				"event_id", env.Event.ID,
				"claim_id", env.Event.ClaimID,
				"sequence", env.Event.Sequence,
				"error", err,
			)
			continue
		}
		d.published.Add(1)
	}
}

// safePublish runs a publish with a timeout and panic recovery
func (d *orderedDispatcher) safePublish(env event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.PublishTimeout)
	defer cancel()
	return d.transport.Publish(ctx, env.Topic, env.Event)
}

// Stop drains queued envelopes, bounded by the drain timeout
func (d *orderedDispatcher) Stop() error {
	d.gate.Lock()
	if d.closed {
		d.gate.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.gate.Unlock()

	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	d.logger.Info("Closing dispatcher, draining queued notifications", "queued", d.queued.Load())
	close(d.stop)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher closed")
		return nil
	case <-time.After(d.config.DrainTimeout):
		return fmt.Errorf("dispatcher drain timed out with %d notifications queued", d.queued.Load())
	}
}

func (d *orderedDispatcher) isClosed() bool {
	d.gate.RLock()
	defer d.gate.RUnlock()
	return d.closed
}

// Stats returns delivery counters
func (d *orderedDispatcher) Stats() DispatchStats {
	return DispatchStats{
		Published: d.published.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    d.queued.Load(),
	}
}
