package uploader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Uploader is the contract both HTTP and Cached satisfy.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// Cached remembers hosted urls by artifact md5 so an identical preview code
// is not uploaded twice. Redis errors fall through to the real upload.
type Cached struct {
	next      Uploader
	rds       *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewCached(next Uploader, rds *redis.Client, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, rds: rds, keyPrefix: "wxci:qrcode:", ttl: ttl, logger: logger}
}

func (c *Cached) key(data []byte) string {
	sum := md5.Sum(data)
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Upload(ctx context.Context, data []byte) (string, error) {
	key := c.key(data)

	url, err := c.rds.Get(ctx, key).Result()
	switch {
	case err == nil && url != "":
		c.logger.Debug("qr code upload cache hit", zap.String("key", key))
		return url, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("qr code upload cache read failed", zap.Error(err))
	}

	url, err = c.next.Upload(ctx, data)
	if err != nil {
		return "", err
	}

	if err := c.rds.Set(ctx, key, url, c.ttl).Err(); err != nil {
		c.logger.Warn("qr code upload cache write failed", zap.Error(err))
	}
	return url, nil
}
