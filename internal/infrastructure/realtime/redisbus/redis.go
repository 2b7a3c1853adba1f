// Package redisbus carries claim notifications between server instances
// over Redis pub/sub.
package redisbus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces notification channels
const DefaultChannelPrefix = "claims:notify:"

// OpenRedis connects and pings the server
func OpenRedis(addr, password string, db int) (*redis.Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}
