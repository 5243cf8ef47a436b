package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOpts configure the upload cache client. The cache sits on the preview
// path, so every operation is short and a dead server is reported at connect.
type RedisOpts struct {
	Addr        string        // "127.0.0.1:6379"
	Password    string        // optional
	DB          int           // default 0
	DialTimeout time.Duration // default 2s
	ReadTimeout time.Duration // default 500ms, also used for writes
	MaxRetries  int           // default 1; -1 disables retries
	PoolSize    int           // default 2; one run does a GET and a SET
	PingTimeout time.Duration // default DialTimeout
}

func NewRedisClient(opts RedisOpts) (*redis.Client, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 500 * time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 1
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = opts.DialTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.ReadTimeout,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
