// Package cache provides the tenant-scoped key-value caches used for
// shipment tracking and counters.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// ErrTenantRequired is returned when a call omits the tenant ID.
var ErrTenantRequired = errors.New("cache: tenantID is required")

const (
	shipmentPrefix = "shipment:"
	counterPrefix  = "counter:"
)

// New creates a cache from configuration:
// "memory" gives an in-process LRU, "redis" gives Redis, optionally fronted
// by an LRU when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

func encodeShipment(s *domain.Shipment) ([]byte, error) {
	if s == nil || s.ID == "" {
		return nil, errors.New("cache: shipment with ID is required")
	}
	return json.Marshal(s)
}

func decodeShipment(data []byte) (*domain.Shipment, error) {
	var s domain.Shipment
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("cache: corrupt shipment entry: %w", err)
	}
	return &s, nil
}

// byteStore is the subset of domain.Cache the shipment helpers build on.
type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

func getShipment(ctx context.Context, c byteStore, tenantID, shipmentID string) (*domain.Shipment, error) {
	data, err := c.Get(ctx, tenantID, shipmentPrefix+shipmentID)
	if err != nil || data == nil {
		return nil, err
	}
	return decodeShipment(data)
}

func setShipment(ctx context.Context, c byteStore, tenantID string, s *domain.Shipment, ttl time.Duration) error {
	data, err := encodeShipment(s)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, shipmentPrefix+s.ID, data, ttl)
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2) and writes to both.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache connects to Redis and builds the L1 in front of it.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// localTTL caps the L1 lifetime at the L1 TTL. A zero ttl (no expiry in L2)
// still expires from L1.
func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

// Get checks L1, then L2, back-filling L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L2 first so L1 never holds a value L2 rejected.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, tenantID, key, value, c.localTTL(ttl))
}

// Delete removes the key from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

func (c *TwoPhaseCache) GetShipment(ctx context.Context, tenantID string, shipmentID string) (*domain.Shipment, error) {
	return getShipment(ctx, c, tenantID, shipmentID)
}

func (c *TwoPhaseCache) SetShipment(ctx context.Context, tenantID string, s *domain.Shipment, ttl time.Duration) error {
	return setShipment(ctx, c, tenantID, s, ttl)
}

// IncrementCounter always goes to Redis so counts agree across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports L1 occupancy.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
