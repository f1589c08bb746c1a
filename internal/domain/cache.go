package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (community) + Redis (pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetShipment retrieves a tracked shipment. Returns nil, nil if not found.
	GetShipment(ctx context.Context, tenantID string, shipmentID string) (*Shipment, error)

	// SetShipment stores a tracked shipment.
	SetShipment(ctx context.Context, tenantID string, shipment *Shipment, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `koanf:"type" validate:"omitempty,oneof=memory redis"`

	LocalMaxSize int           `koanf:"local_max_size"`
	LocalTTL     time.Duration `koanf:"local_ttl"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// EnableTwoPhase checks the local LRU first, then Redis.
	EnableTwoPhase bool `koanf:"enable_two_phase"`

	// ShipmentTTL bounds how long tracked shipments are kept.
	ShipmentTTL time.Duration `koanf:"shipment_ttl"`
}
