package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/claim-workflow/internal/container"
)

// EnvPrefix namespaces environment overrides, e.g. CLAIMS_SERVER_PORT
const EnvPrefix = "CLAIMS"

// Storage drivers
const (
	DriverSQLite = container.DriverSQLite
	DriverMemory = container.DriverMemory
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Websocket  WebsocketConfig  `mapstructure:"websocket"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded schema
}

// WorkflowConfig bounds the time a transition may spend waiting
type WorkflowConfig struct {
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
}

// DispatcherConfig holds notification dispatcher configuration
type DispatcherConfig struct {
	Shards         int           `mapstructure:"shards"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
}

// RedisConfig enables cross-instance notification fanout
type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	DeliverTimeout time.Duration `mapstructure:"deliver_timeout"`
}

// LarkConfig posts claim notifications to Lark group chats
type LarkConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	AppID       string          `mapstructure:"app_id"`
	AppSecret   string          `mapstructure:"app_secret"`
	BaseURL     string          `mapstructure:"base_url"`
	Chats       LarkChatsConfig `mapstructure:"chats"`
	SendBuffer  int             `mapstructure:"send_buffer"`
	SendTimeout time.Duration   `mapstructure:"send_timeout"`
}

// LarkChatsConfig holds the chat ID for each notification topic; empty skips the topic
type LarkChatsConfig struct {
	Coordinators string `mapstructure:"coordinators"`
	Managers     string `mapstructure:"managers"`
	HR           string `mapstructure:"hr"`
	All          string `mapstructure:"all"`
}

// WebsocketConfig holds realtime connection settings
type WebsocketConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// AuditConfig controls the background audit trail check
type AuditConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from an optional YAML file, a .env file in the
// working directory and CLAIMS_* environment variables, in rising priority.
func Load(configPath string) (*Config, error) {
	// Values already in the environment win over .env
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/claims.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "")

	// Workflow defaults
	v.SetDefault("workflow.store_timeout", 5*time.Second)
	v.SetDefault("workflow.lock_timeout", 5*time.Second)

	// Dispatcher defaults
	v.SetDefault("dispatcher.shards", 8)
	v.SetDefault("dispatcher.publish_timeout", 2*time.Second)
	v.SetDefault("dispatcher.drain_timeout", 5*time.Second)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "claims:notify:")
	v.SetDefault("redis.deliver_timeout", 2*time.Second)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.base_url", "")
	v.SetDefault("lark.chats.coordinators", "")
	v.SetDefault("lark.chats.managers", "")
	v.SetDefault("lark.chats.hr", "")
	v.SetDefault("lark.chats.all", "")
	v.SetDefault("lark.send_buffer", 256)
	v.SetDefault("lark.send_timeout", 10*time.Second)

	// Websocket defaults
	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.pong_timeout", 60*time.Second)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.allowed_origins", []string{})

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.poll_interval", time.Minute)
	v.SetDefault("audit.batch_size", 50)
	v.SetDefault("audit.check_timeout", 10*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "claim-workflow")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// bindEnvVars binds the conventional unprefixed names for external services
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"redis.addr":         {EnvPrefix + "_REDIS_ADDR", "REDIS_ADDR"},
		"redis.password":     {EnvPrefix + "_REDIS_PASSWORD", "REDIS_PASSWORD"},
		"telemetry.endpoint": {EnvPrefix + "_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
		"lark.app_id":        {EnvPrefix + "_LARK_APP_ID", "LARK_APP_ID"},
		"lark.app_secret":    {EnvPrefix + "_LARK_APP_SECRET", "LARK_APP_SECRET"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}

	if c.Workflow.LockTimeout <= 0 {
		return fmt.Errorf("workflow.lock_timeout must be positive")
	}
	if c.Dispatcher.Shards <= 0 {
		return fmt.Errorf("dispatcher.shards must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required when lark is enabled")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required when lark is enabled")
		}
		if len(c.Lark.Chats.byTopic()) == 0 {
			return fmt.Errorf("lark.chats needs at least one chat when lark is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit.batch_size must be positive")
	}

	if c.Telemetry.SampleRatio < 0 {
		return fmt.Errorf("telemetry.sample_ratio cannot be negative")
	}

	return nil
}
