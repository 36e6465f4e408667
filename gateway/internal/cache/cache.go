// Package cache keeps proxied read responses in Redis, keyed per tenant.
// A nil *Cache is valid and caches nothing.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "epos:cache"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

// New connects to Redis and returns nil when the server does not answer a
// ping, which leaves caching disabled for the life of the process.
func New(ctx context.Context, addr string, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("addr", addr).Warn("Redis not available, caching disabled")
		_ = client.Close()
		return nil
	}

	logger.WithField("addr", addr).Info("Redis cache enabled")
	return NewWithClient(client, ttl, logger)
}

func NewWithClient(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cache) Enabled() bool {
	return c != nil
}

func Key(tenantID, uri string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, tenantID, uri)
}

// Get reports a miss on any error; the cache never fails a request.
func (c *Cache) Get(ctx context.Context, tenantID, uri string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	body, err := c.client.Get(ctx, Key(tenantID, uri)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Cache read failed")
		}
		return nil, false
	}
	return body, true
}

func (c *Cache) Set(ctx context.Context, tenantID, uri string, body []byte) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, Key(tenantID, uri), body, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Cache write failed")
	}
}

// Invalidate drops every cached read of the tenant.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) {
	if c == nil {
		return
	}

	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, tenantID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Cache invalidation failed")
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
