// Package redisclient holds the Redis connection and the per-appointment lock built on it.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ClientOptions struct {
	// URL, when set, is parsed by go-redis and wins over the discrete fields, so
	// rediss:// keeps its TLS config and the path selects the DB.
	URL      string
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds dial, read and write. Lock calls are single round trips.
	Timeout time.Duration
}

func (o ClientOptions) redisOptions() (*redis.Options, error) {
	var opt *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: o.Addr, Username: o.Username, Password: o.Password, DB: o.DB}
	}

	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	opt.DialTimeout = o.Timeout
	opt.ReadTimeout = o.Timeout
	opt.WriteTimeout = o.Timeout
	opt.PoolSize = o.PoolSize
	opt.MinIdleConns = 1
	return opt, nil
}

// NewRedisClient connects and pings. The lock holds a connection only for one SETNX or
// release, so the pool stays small.
func NewRedisClient(ctx context.Context, opts ClientOptions) (*redis.Client, error) {
	opt, err := opts.redisOptions()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}
	return rdb, nil
}
