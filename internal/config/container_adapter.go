package config

import (
	"github.com/garyjia/claim-workflow/internal/container"
	"github.com/garyjia/claim-workflow/internal/domain/entity"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Workflow: container.WorkflowConfig{
			StoreTimeout: c.Workflow.StoreTimeout,
			LockTimeout:  c.Workflow.LockTimeout,
		},
		Dispatcher: container.DispatcherConfig{
			Shards:         c.Dispatcher.Shards,
			PublishTimeout: c.Dispatcher.PublishTimeout,
			DrainTimeout:   c.Dispatcher.DrainTimeout,
		},
		Redis: container.RedisConfig{
			Enabled:        c.Redis.Enabled,
			Addr:           c.Redis.Addr,
			Password:       c.Redis.Password,
			DB:             c.Redis.DB,
			ChannelPrefix:  c.Redis.ChannelPrefix,
			DeliverTimeout: c.Redis.DeliverTimeout,
		},
		Lark: container.LarkConfig{
			Enabled:     c.Lark.Enabled,
			AppID:       c.Lark.AppID,
			AppSecret:   c.Lark.AppSecret,
			BaseURL:     c.Lark.BaseURL,
			Chats:       c.Lark.Chats.byTopic(),
			SendBuffer:  c.Lark.SendBuffer,
			SendTimeout: c.Lark.SendTimeout,
		},
		Websocket: container.WebsocketConfig{
			SendBuffer:     c.Websocket.SendBuffer,
			WriteTimeout:   c.Websocket.WriteTimeout,
			PongTimeout:    c.Websocket.PongTimeout,
			MaxMessageSize: c.Websocket.MaxMessageSize,
			AllowedOrigins: c.Websocket.AllowedOrigins,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Worker: container.WorkerConfig{
			AuditEnabled:      c.Audit.Enabled,
			AuditPollInterval: c.Audit.PollInterval,
			AuditBatchSize:    c.Audit.BatchSize,
			AuditCheckTimeout: c.Audit.CheckTimeout,
		},
	}
}

// byTopic returns the configured chats keyed by notification topic
func (l LarkChatsConfig) byTopic() map[entity.Topic]string {
	chats := make(map[entity.Topic]string, 4)
	for topic, chatID := range map[entity.Topic]string{
		entity.TopicCoordinators: l.Coordinators,
		entity.TopicManagers:     l.Managers,
		entity.TopicHR:           l.HR,
		entity.TopicAll:          l.All,
	} {
		if chatID != "" {
			chats[topic] = chatID
		}
	}
	return chats
}
