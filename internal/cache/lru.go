package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/chainflow-labs/chainflow/internal/domain"
)

// LRUCache is an in-process, size-bounded cache with per-entry TTL.
// A zero TTL means the entry never expires and is only evicted by size.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*counter
	now      func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero: no expiry
}

type counter struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates an LRU holding at most maxSize entries (default 10000).
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

func (c *LRUCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	k := tenantKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*lruEntry)
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		c.remove(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return e.value, nil
}

func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	k := tenantKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		e := elem.Value.(*lruEntry)
		e.value = value
		e.expiresAt = c.expiry(ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	c.items[k] = c.order.PushFront(&lruEntry{key: k, value: value, expiresAt: c.expiry(ttl)})
	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
	return nil
}

func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	k := tenantKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		c.remove(elem)
	}
	return nil
}

func (c *LRUCache) GetShipment(ctx context.Context, tenantID string, shipmentID string) (*domain.Shipment, error) {
	return getShipment(ctx, c, tenantID, shipmentID)
}

func (c *LRUCache) SetShipment(ctx context.Context, tenantID string, s *domain.Shipment, ttl time.Duration) error {
	return setShipment(ctx, c, tenantID, s, ttl)
}

// IncrementCounter counts within a fixed window that starts at the first
// increment after the previous window expired.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	k := tenantKey(tenantID, counterPrefix+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ctr, ok := c.counters[k]
	if !ok || now.After(ctr.expiresAt) {
		if !ok && len(c.counters) >= c.maxSize {
			c.pruneCounters(now)
		}
		c.counters[k] = &counter{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	ctr.count++
	return ctr.count, nil
}

// pruneCounters drops expired windows. Live windows are kept even past
// maxSize since dropping one would reset its count.
func (c *LRUCache) pruneCounters(now time.Time) {
	for k, ctr := range c.counters {
		if now.After(ctr.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.counters = make(map[string]*counter)
	return nil
}

// Stats returns the current entry count and capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) remove(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*lruEntry).key)
}

func tenantKey(tenantID, key string) string {
	return tenantID + ":" + key
}
