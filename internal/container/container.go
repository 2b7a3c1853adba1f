package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/notification"
	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/application/service"
	"github.com/garyjia/claim-workflow/internal/application/workflow"
	"github.com/garyjia/claim-workflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/claim-workflow/internal/interfaces/http"
	wsapi "github.com/garyjia/claim-workflow/internal/interfaces/websocket"
	"github.com/garyjia/claim-workflow/pkg/database"
	"github.com/garyjia/claim-workflow/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db    *database.DB
	store *StoreBundle

	// Infrastructure - Notifications
	transport  *TransportBundle
	dispatcher notification.Dispatcher

	// Application
	services *ServiceBundle

	// Workers
	workers *WorkerBundle

	// Interfaces
	websocket *wsapi.Handler
	server    *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// ServiceBundle groups the application layer.
type ServiceBundle struct {
	Trail    audit.Trail
	Engine   workflow.WorkflowEngine
	Workflow service.WorkflowService
	Claims   service.ClaimService
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Claim store
// 2. Notification hub, transport and dispatcher
// 3. Application services
// 4. Workers
// 5. Websocket and HTTP handlers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize the claim store
	if err := c.initStore(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize store: %w", err))
	}
	c.logger.Info("Store initialized", zap.String("driver", c.config.Database.Driver))

	// Step 2: Initialize notification transport and dispatcher
	if err := c.initNotifications(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize notifications: %w", err))
	}
	c.logger.Info("Notifications initialized",
		zap.Bool("redis", c.config.Redis.Enabled),
		zap.Bool("lark", c.config.Lark.Enabled))

	// Step 3: Initialize application services
	if err := c.initServices(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	// Step 4: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized and started")

	// Step 5: Initialize interfaces
	c.initInterfaces()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abort releases whatever a failed Start managed to open
func (c *Container) abort(err error) error {
	if closeErr := c.teardown(); closeErr != nil {
		c.logger.Error("Cleanup after failed start", zap.Error(closeErr))
	}
	c.closed.Store(true)
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Step 1: Drop realtime clients (reverse of step 5)
	if c.websocket != nil {
		c.websocket.CloseAll()
		c.logger.Info("Websocket clients closed")
	}

	// Step 2: Stop workers, draining the dispatcher (reverse of step 4)
	if c.workers != nil {
		if err := c.workers.Manager.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 3: Close Redis (reverse of step 2)
	if c.transport != nil && c.transport.Redis != nil {
		if err := c.transport.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		} else {
			c.logger.Info("Redis client closed")
		}
	}

	// Step 4: Close database (reverse of step 1)
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the database and Redis and checks the workers.
// A nil value means the component is healthy.
func (c *Container) Health(ctx context.Context) map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := make(map[string]error)

	if c.db != nil {
		status["database"] = c.db.PingContext(ctx)
	} else if c.store != nil {
		status["database"] = nil
	} else {
		status["database"] = fmt.Errorf("not initialized")
	}

	if c.transport != nil && c.transport.Redis != nil {
		status["redis"] = c.transport.Redis.Ping(ctx).Err()
	}

	switch {
	case c.workers == nil:
		status["workers"] = fmt.Errorf("not initialized")
	case !c.workers.Manager.IsRunning():
		status["workers"] = fmt.Errorf("workers stopped")
	default:
		status["workers"] = nil
	}

	return status
}

// initStore opens the claim store using providers.
func (c *Container) initStore() error {
	store, err := ProvideStore(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.store = store
	c.db = store.DB
	return nil
}

// initNotifications builds the hub, transport and dispatcher using providers.
func (c *Container) initNotifications() error {
	transport, err := ProvideTransport(&c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.transport = transport

	notifier, err := ProvideLark(&c.config.Lark, transport.Transport, c.logger)
	if err != nil {
		return err
	}
	transport.Lark = notifier

	disp, err := ProvideDispatcher(&c.config.Dispatcher, transport.Transport, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Stores:     c.store,
		Dispatcher: c.dispatcher,
		Workflow:   &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Transport:  c.transport,
		Dispatcher: c.dispatcher,
		Stores:     c.store,
		Services:   c.services,
		WorkerCfg:  &c.config.Worker,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	// Start all workers
	if err := c.workers.Manager.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initInterfaces builds the websocket handler and HTTP server
func (c *Container) initInterfaces() {
	wsCfg := c.config.Websocket
	c.websocket = wsapi.NewHandler(wsapi.Config{
		SendBuffer:     wsCfg.SendBuffer,
		WriteTimeout:   wsCfg.WriteTimeout,
		PongTimeout:    wsCfg.PongTimeout,
		MaxMessageSize: wsCfg.MaxMessageSize,
		AllowedOrigins: wsCfg.AllowedOrigins,
	}, c.transport.Transport, c.logger.Named("websocket"))

	opts := []httpapi.ServerOption{
		httpapi.WithWebsocket(c.websocket),
		httpapi.WithHealth(c.Health),
	}
	if aw := c.workers.Audit; aw != nil {
		opts = append(opts, httpapi.WithAuditStatus(func() interface{} {
			return aw.Status()
		}))
	}

	srvCfg := c.config.Server
	c.server = httpapi.NewServer(
		httpapi.ServerConfig{
			Host:            srvCfg.Host,
			Port:            srvCfg.Port,
			ReadTimeout:     srvCfg.ReadTimeout,
			WriteTimeout:    srvCfg.WriteTimeout,
			ShutdownTimeout: srvCfg.ShutdownTimeout,
		},
		c.services.Workflow,
		c.services.Claims,
		&zapLoggerAdapter{logger: c.logger.Named("http")},
		opts...,
	)
}

// Getters for accessing container components

// Store returns the claim store.
func (c *Container) Store() port.ClaimStore {
	return c.store.Store
}

// Hub returns the local notification hub.
func (c *Container) Hub() *notification.Hub {
	return c.transport.Hub
}

// Transport returns the transport the dispatcher publishes through.
func (c *Container) Transport() port.NotificationTransport {
	return c.transport.Transport
}

// Redis returns the Redis client, or nil when Redis is disabled.
func (c *Container) Redis() *redis.Client {
	return c.transport.Redis
}

// Dispatcher returns the notification dispatcher.
func (c *Container) Dispatcher() notification.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers.Manager
}

// AuditWorker returns the audit worker, or nil when disabled.
func (c *Container) AuditWorker() *worker.AuditWorker {
	return c.workers.Audit
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// used by services, the dispatcher and the HTTP layer.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, utils.ZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, utils.ZapFields(keysAndValues...)...)
}

var (
	_ service.Logger      = (*zapLoggerAdapter)(nil)
	_ notification.Logger = (*zapLoggerAdapter)(nil)
	_ httpapi.Logger      = (*zapLoggerAdapter)(nil)
)
