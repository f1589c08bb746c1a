package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chainflow:"

// incrWithExpiry starts the window on the first increment only.
var incrWithExpiry = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisCache stores entries in Redis under chainflow:<tenant>:<key>.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	val, err := c.client.Get(ctx, redisKey(tenantID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores value; a zero ttl keeps the key until deleted.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if err := c.client.Set(ctx, redisKey(tenantID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return c.client.Del(ctx, redisKey(tenantID, key)).Err()
}

func (c *RedisCache) GetShipment(ctx context.Context, tenantID string, shipmentID string) (*domain.Shipment, error) {
	return getShipment(ctx, c, tenantID, shipmentID)
}

func (c *RedisCache) SetShipment(ctx context.Context, tenantID string, s *domain.Shipment, ttl time.Duration) error {
	return setShipment(ctx, c, tenantID, s, ttl)
}

// IncrementCounter runs INCR and PEXPIRE atomically in a Lua script.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	n, err := incrWithExpiry.Run(ctx, c.client, []string{redisKey(tenantID, counterPrefix+key)}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(tenantID, key string) string {
	return redisKeyPrefix + tenantID + ":" + key
}
