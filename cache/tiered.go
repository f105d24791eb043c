package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyNamespace = "buchat:"

// Tiered stores JSON-encoded values in a local FIFO and, when a Redis client
// is configured, in a shared second tier. Redis errors degrade to local-only.
type Tiered struct {
	local  *FIFO[string, []byte]
	remote *redis.Client
	logger zerolog.Logger
}

// TieredOptions configures NewTiered.
type TieredOptions struct {
	Capacity int
	Redis    *redis.Client
	Logger   *zerolog.Logger
}

// NewTiered creates the cache front used by the sync engine.
func NewTiered(options TieredOptions) *Tiered {
	logger := zerolog.Nop()
	if options.Logger != nil {
		logger = *options.Logger
	}
	return &Tiered{
		local:  NewFIFO[string, []byte](options.Capacity),
		remote: options.Redis,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// RemoteAvailable reports whether a Redis tier is configured.
func (c *Tiered) RemoteAvailable() bool {
	return c.remote != nil
}

// GetJSON decodes the cached value for key into dest. It reports false on a
// miss, an expired entry, or an undecodable payload.
func (c *Tiered) GetJSON(ctx context.Context, key string, dest any) bool {
	if raw, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(raw, dest); err == nil {
			return true
		}
		c.local.Delete(key)
	}

	if c.remote == nil {
		return false
	}

	raw, err := c.remote.Get(ctx, redisKeyNamespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable redis entry")
		return false
	}

	ttl, err := c.remote.PTTL(ctx, redisKeyNamespace+key).Result()
	if err == nil && ttl > 0 {
		c.local.Put(key, raw, ttl)
	}
	return true
}

// SetJSON encodes value and stores it in every tier for ttl.
func (c *Tiered) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.local.Put(key, raw, ttl)

	if c.remote != nil {
		if err := c.remote.Set(ctx, redisKeyNamespace+key, raw, ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		}
	}
	return nil
}

// Delete removes key from every tier.
func (c *Tiered) Delete(ctx context.Context, key string) {
	c.local.Delete(key)
	if c.remote != nil {
		if err := c.remote.Del(ctx, redisKeyNamespace+key).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
		}
	}
}

// DeletePrefix removes every key starting with prefix from every tier.
func (c *Tiered) DeletePrefix(ctx context.Context, prefix string) {
	c.local.DeleteFunc(HasPrefix(prefix))
	if c.remote == nil {
		return
	}

	iter := c.remote.Scan(ctx, 0, redisKeyNamespace+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("redis scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.remote.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("redis delete failed")
	}
}

// Clear empties the local tier. The shared tier is left to its own TTLs.
func (c *Tiered) Clear() {
	c.local.Clear()
}
