package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "genstudio:account_by_email:"

// AccountLookup resolves an email to an account id.
type AccountLookup interface {
	FindIDByEmail(ctx context.Context, email string) (string, error)
}

// CachedAccountLookup keeps email to account id mappings in redis. Only positive
// results are cached so a newly registered account is visible immediately. Redis
// errors fall through to the wrapped lookup.
type CachedAccountLookup struct {
	inner  AccountLookup
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Ping checks connectivity with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func NewCachedAccountLookup(inner AccountLookup, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedAccountLookup {
	return &CachedAccountLookup{inner: inner, client: client, ttl: ttl, log: log.Named("account_cache")}
}

func (c *CachedAccountLookup) FindIDByEmail(ctx context.Context, email string) (string, error) {
	key := keyPrefix + email

	id, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil && id != "":
		return id, nil
	case err != nil && !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed", zap.Error(err))
	}

	id, err = c.inner.FindIDByEmail(ctx, email)
	if err != nil || id == "" {
		return id, err
	}

	if err := c.client.Set(ctx, key, id, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.Error(err))
	}
	return id, nil
}
