package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process Cache: a mutex-guarded map with LRU
// eviction and per-entry TTL. Expired entries are evicted on access.
type MemoryCache struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	items      map[string]*memNode
	head       *memNode
	tail       *memNode
}

type memNode struct {
	key       string
	value     []byte
	expiresAt time.Time
	prev      *memNode
	next      *memNode
}

const (
	defaultCapacity  = 1000
	defaultMemoryTTL = time.Hour
)

// NewMemoryCache creates a MemoryCache. Non-positive capacity or ttl fall
// back to 1000 entries and one hour.
func NewMemoryCache(capacity int, defaultTTL time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = defaultMemoryTTL
	}
	return &MemoryCache{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		items:      make(map[string]*memNode),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, ErrCacheMiss
	}
	c.moveToHead(node)
	return node.value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.value = value
		node.expiresAt = time.Now().Add(ttl)
		c.moveToHead(node)
		return nil
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &memNode{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	c.items[key] = node
	c.addToHead(node)
	return nil
}

// Has implements Cache.
func (c *MemoryCache) Has(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	if err == ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memNode)
	c.head = nil
	c.tail = nil
	return nil
}

// Len returns the number of entries, counting any not-yet-evicted expired ones.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) addToHead(node *memNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *MemoryCache) removeNode(node *memNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *MemoryCache) moveToHead(node *memNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *MemoryCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
