package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/claims.db", cfg.Database.Path)
	assert.Empty(t, cfg.Database.MigrationsDir)
	assert.Equal(t, 5*time.Second, cfg.Workflow.LockTimeout)
	assert.Equal(t, 8, cfg.Dispatcher.Shards)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "claims:notify:", cfg.Redis.ChannelPrefix)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, 256, cfg.Lark.SendBuffer)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
workflow:
  lock_timeout: 250ms
redis:
  enabled: true
lark:
  enabled: true
  chats:
    managers: oc_managers
    hr: oc_hr
websocket:
  allowed_origins:
    - https://claims.example.edu
`)

	t.Setenv("CLAIMS_SERVER_PORT", "9191")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("CLAIMS_DISPATCHER_SHARDS", "4")
	t.Setenv("LARK_APP_ID", "cli_env")
	t.Setenv("CLAIMS_LARK_APP_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Workflow.LockTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 4, cfg.Dispatcher.Shards)
	assert.Equal(t, []string{"https://claims.example.edu"}, cfg.Websocket.AllowedOrigins)
	assert.True(t, cfg.Lark.Enabled)
	assert.Equal(t, "cli_env", cfg.Lark.AppID)
	assert.Equal(t, "env-secret", cfg.Lark.AppSecret)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())
	assert.Equal(t, map[entity.Topic]string{
		entity.TopicManagers: "oc_managers",
		entity.TopicHR:       "oc_hr",
	}, cc.Lark.Chats)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080},
			Database:   DatabaseConfig{Driver: DriverSQLite, Path: "claims.db"},
			Workflow:   WorkflowConfig{LockTimeout: time.Second},
			Dispatcher: DispatcherConfig{Shards: 2},
			Audit:      AuditConfig{Enabled: true, BatchSize: 10},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"memory needs no path", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverMemory} }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"no lock timeout", func(c *Config) { c.Workflow.LockTimeout = 0 }, "workflow.lock_timeout"},
		{"no shards", func(c *Config) { c.Dispatcher.Shards = 0 }, "dispatcher.shards"},
		{"redis without addr", func(c *Config) { c.Redis = RedisConfig{Enabled: true} }, "redis.addr"},
		{"lark without app id", func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppSecret: "s", Chats: LarkChatsConfig{HR: "oc_hr"}}
		}, "lark.app_id"},
		{"lark without secret", func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppID: "cli", Chats: LarkChatsConfig{HR: "oc_hr"}}
		}, "lark.app_secret"},
		{"lark without chats", func(c *Config) {
			c.Lark = LarkConfig{Enabled: true, AppID: "cli", AppSecret: "s"}
		}, "lark.chats"},
		{"audit batch", func(c *Config) { c.Audit.BatchSize = 0 }, "audit.batch_size"},
		{"negative sampling", func(c *Config) { c.Telemetry.SampleRatio = -1 }, "sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())
	assert.Equal(t, cfg.Database.Path, cc.Database.Path)
	assert.Equal(t, cfg.Server.ShutdownTimeout, cc.Server.ShutdownTimeout)
	assert.Equal(t, cfg.Audit.BatchSize, cc.Worker.AuditBatchSize)
	assert.Equal(t, cfg.Redis.ChannelPrefix, cc.Redis.ChannelPrefix)
}
