package lark

import (
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

// Config holds Lark client configuration
type Config struct {
	AppID     string
	AppSecret string

	// BaseURL selects the open platform domain; empty keeps the SDK default
	BaseURL string
}

// NewClient creates a Lark SDK client with tenant token caching
func NewClient(cfg Config) *lark.Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	return lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}

// NewChatNotifierFromClient creates a ChatNotifier posting through client's IM message API
func NewChatNotifierFromClient(client *lark.Client, config NotifierConfig, opts ...NotifierOption) *ChatNotifier {
	return NewChatNotifier(client.Im.Message, config, opts...)
}
