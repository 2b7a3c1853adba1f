package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/claim-workflow/internal/application/audit"
	"github.com/garyjia/claim-workflow/internal/application/notification"
	"github.com/garyjia/claim-workflow/internal/application/port"
	"github.com/garyjia/claim-workflow/internal/application/service"
	"github.com/garyjia/claim-workflow/internal/application/workflow"
	larkinfra "github.com/garyjia/claim-workflow/internal/infrastructure/lark"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/claim-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/claim-workflow/internal/infrastructure/realtime/redisbus"
	"github.com/garyjia/claim-workflow/internal/infrastructure/worker"
	"github.com/garyjia/claim-workflow/pkg/database"
)

// StoreBundle holds storage-related components.
type StoreBundle struct {
	// DB is nil for the memory driver
	DB        *database.DB
	Store     port.ClaimStore
	TxManager port.TransactionManager
}

// TransportBundle holds the notification transport and, with Redis enabled,
// the client and relay behind it.
type TransportBundle struct {
	Hub       *notification.Hub
	Transport port.NotificationTransport
	Redis     *redis.Client
	Relay     *redisbus.Relay

	// Lark is nil unless Lark notifications are enabled
	Lark *larkinfra.ChatNotifier
}

// ProvideStore opens the claim store for the configured driver.
// For SQLite it also runs any pending database migrations.
func ProvideStore(cfg *DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		store := memory.NewStore()
		return &StoreBundle{Store: store, TxManager: store}, nil
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	txDB := sqlite.NewDB(db.DB, logger)
	return &StoreBundle{
		DB:        db,
		Store:     repository.NewStore(txDB, logger),
		TxManager: txDB,
	}, nil
}

// ProvideTransport creates the local hub and, when Redis is enabled, wraps
// it so events travel through Redis to every instance.
func ProvideTransport(cfg *RedisConfig, logger *zap.Logger) (*TransportBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	hub := notification.NewHub(notification.WithHubLogger(&zapLoggerAdapter{logger: logger.Named("hub")}))
	if !cfg.Enabled {
		return &TransportBundle{Hub: hub, Transport: hub}, nil
	}

	client, err := redisbus.OpenRedis(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}

	transport := redisbus.NewTransport(client, hub, cfg.ChannelPrefix, logger)
	return &TransportBundle{
		Hub:       hub,
		Transport: transport,
		Redis:     client,
		Relay:     redisbus.NewRelay(transport, hub, cfg.DeliverTimeout, logger),
	}, nil
}

// ProvideLark creates the Lark chat notifier and subscribes it to transport.
// It returns nil when Lark is disabled.
func ProvideLark(cfg *LarkConfig, transport port.NotificationTransport, logger *zap.Logger) (*larkinfra.ChatNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if !cfg.Enabled {
		return nil, nil
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client := larkinfra.NewClient(larkinfra.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	})
	notifier := larkinfra.NewChatNotifierFromClient(client, larkinfra.NotifierConfig{
		Chats:       cfg.Chats,
		SendBuffer:  cfg.SendBuffer,
		SendTimeout: cfg.SendTimeout,
	}, larkinfra.WithLogger(logger.Named("lark")))
	notifier.Subscribe(transport)

	return notifier, nil
}

// ProvideDispatcher creates the ordered notification dispatcher.
func ProvideDispatcher(cfg *DispatcherConfig, transport port.NotificationTransport, logger *zap.Logger) (notification.Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dispatcher config is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return notification.NewDispatcher(
		notification.DispatcherConfig{
			Shards:         cfg.Shards,
			PublishTimeout: cfg.PublishTimeout,
			DrainTimeout:   cfg.DrainTimeout,
		},
		transport,
		notification.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Stores     *StoreBundle
	Dispatcher notification.Dispatcher
	Workflow   *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideServices creates the audit trail, the workflow engine and the
// application services on top of them.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	trail := audit.NewTrail(deps.Stores.Store)
	engine := workflow.NewEngine(
		deps.Stores.Store,
		deps.Stores.TxManager,
		trail,
		workflow.WithStoreTimeout(deps.Workflow.StoreTimeout),
	)

	workflowService := service.NewWorkflowService(
		engine,
		deps.Stores.Store,
		trail,
		serviceLogger,
		service.WithDispatcher(deps.Dispatcher),
		service.WithLockTimeout(deps.Workflow.LockTimeout),
	)

	return &ServiceBundle{
		Trail:    trail,
		Engine:   engine,
		Workflow: workflowService,
		Claims:   service.NewClaimService(deps.Stores.Store, workflowService, serviceLogger),
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Transport  *TransportBundle
	Dispatcher notification.Dispatcher
	Stores     *StoreBundle
	Services   *ServiceBundle
	WorkerCfg  *WorkerConfig
	Logger     *zap.Logger
}

// WorkerBundle holds the worker manager and the workers other components query.
type WorkerBundle struct {
	Manager *worker.WorkerManager
	Audit   *worker.AuditWorker
}

// ProvideWorkers creates and registers all background workers.
// Workers start in registration order and stop in reverse, so the Lark
// notifier and the relay outlive the dispatcher's final drain.
func ProvideWorkers(deps *WorkerDeps) (*WorkerBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Stores == nil || deps.Services == nil {
		return nil, fmt.Errorf("stores and services are required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create worker manager
	manager := worker.NewWorkerManager(deps.Logger)
	bundle := &WorkerBundle{Manager: manager}

	if deps.Transport.Lark != nil {
		manager.Register(deps.Transport.Lark)
	}
	if deps.Transport.Relay != nil {
		manager.Register(deps.Transport.Relay)
	}

	manager.Register(deps.Dispatcher)

	if deps.WorkerCfg.AuditEnabled {
		bundle.Audit = worker.NewAuditWorker(
			worker.AuditWorkerConfig{
				PollInterval: deps.WorkerCfg.AuditPollInterval,
				BatchSize:    deps.WorkerCfg.AuditBatchSize,
				CheckTimeout: deps.WorkerCfg.AuditCheckTimeout,
			},
			deps.Stores.Store,
			deps.Services.Trail,
			deps.Services.Engine.Table(),
			deps.Logger,
		)
		manager.Register(bundle.Audit)
	}

	return bundle, nil
}
