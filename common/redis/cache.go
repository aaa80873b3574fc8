package redis

import (
	"context"
	"time"
)

// Cache adapts the Redis client to the common cache.Cache interface so
// deployments with Redis share one idempotency-token store across nodes.
type Cache struct {
	client *Client
}

// NewCache creates a Redis-backed cache
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get retrieves a value by key
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.client.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	return []byte(val), true, nil
}

// Set stores a value with TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.SetWithExpiry(ctx, key, string(value), ttl)
}

// SetNX stores a value only if the key is absent
func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, string(value), ttl)
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, key)
}

// Close closes the underlying client
func (c *Cache) Close() error {
	return c.client.Close()
}
