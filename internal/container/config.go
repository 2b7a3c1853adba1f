// Package container provides dependency injection and lifecycle management
// for the claim workflow server following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow timeouts
	Workflow WorkflowConfig

	// Notification dispatcher configuration
	Dispatcher DispatcherConfig

	// Redis fanout configuration
	Redis RedisConfig

	// Lark group chat notifications
	Lark LarkConfig

	// Websocket configuration
	Websocket WebsocketConfig

	// Server configuration
	Server ServerConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string

	// Path to SQLite database file, or ":memory:"
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long SQLite waits on a locked database
	BusyTimeout time.Duration

	// MigrationsDir is the path to migration files; empty uses the embedded set
	MigrationsDir string
}

// WorkflowConfig bounds how long a transition may wait.
type WorkflowConfig struct {
	// StoreTimeout bounds each store call inside a commit
	StoreTimeout time.Duration

	// LockTimeout bounds the wait for a claim's lock
	LockTimeout time.Duration
}

// DispatcherConfig holds notification dispatcher settings.
type DispatcherConfig struct {
	Shards         int
	PublishTimeout time.Duration
	DrainTimeout   time.Duration
}

// RedisConfig holds Redis pub/sub settings.
type RedisConfig struct {
	// Enabled routes notifications through Redis so every instance sees them
	Enabled bool

	Addr     string
	Password string
	DB       int

	// ChannelPrefix is prepended to topic names
	ChannelPrefix string

	// DeliverTimeout bounds local delivery of a relayed event
	DeliverTimeout time.Duration
}

// LarkConfig holds Lark group chat notification settings.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string

	// BaseURL selects the open platform domain; empty keeps the SDK default
	BaseURL string

	// Chats maps a notification topic to the chat that receives its events
	Chats map[entity.Topic]string

	SendBuffer  int
	SendTimeout time.Duration
}

// WebsocketConfig holds realtime connection settings.
type WebsocketConfig struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Audit worker settings
	AuditEnabled      bool
	AuditPollInterval time.Duration
	AuditBatchSize    int
	AuditCheckTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/claims.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Workflow: WorkflowConfig{
			StoreTimeout: 5 * time.Second,
			LockTimeout:  5 * time.Second,
		},
		Dispatcher: DispatcherConfig{
			Shards:         8,
			PublishTimeout: 2 * time.Second,
			DrainTimeout:   5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			ChannelPrefix:  "claims:notify:",
			DeliverTimeout: 2 * time.Second,
		},
		Lark: LarkConfig{
			SendBuffer:  256,
			SendTimeout: 10 * time.Second,
		},
		Websocket: WebsocketConfig{
			SendBuffer:     64,
			WriteTimeout:   10 * time.Second,
			PongTimeout:    60 * time.Second,
			MaxMessageSize: 4096,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			AuditEnabled:      true,
			AuditPollInterval: time.Minute,
			AuditBatchSize:    50,
			AuditCheckTimeout: 10 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if !c.Lark.hasChat() {
			return fmt.Errorf("lark is enabled but no chat is configured")
		}
	}

	return nil
}

func (l LarkConfig) hasChat() bool {
	for _, chatID := range l.Chats {
		if chatID != "" {
			return true
		}
	}
	return false
}
