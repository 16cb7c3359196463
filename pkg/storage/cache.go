package storage

import (
	"container/list"
)

// valueCache é um LRU limitado por bytes que guarda valores lidos do disco,
// indexados pelo offset do payload no arquivo (conteúdo em um offset é
// imutável até a próxima compactação, quando o cache inteiro é descartado).
type valueCache struct {
	capacity int64
	used     int64
	order    *list.List // Frente = mais recente
	entries  map[int64]*list.Element

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	offset int64
	value  []byte
}

func newValueCache(capacity int64) *valueCache {
	return &valueCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int64]*list.Element),
	}
}

func (c *valueCache) get(offset int64) ([]byte, bool) {
	el, ok := c.entries[offset]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *valueCache) put(offset int64, value []byte) {
	if c.capacity <= 0 || int64(len(value)) > c.capacity {
		return
	}
	if el, ok := c.entries[offset]; ok {
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{offset: offset, value: value})
	c.entries[offset] = el
	c.used += int64(len(value))

	// Eviction LRU até caber
	for c.used > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, entry.offset)
		c.used -= int64(len(entry.value))
	}
}

func (c *valueCache) invalidate(offset int64) {
	if el, ok := c.entries[offset]; ok {
		entry := el.Value.(*cacheEntry)
		c.order.Remove(el)
		delete(c.entries, offset)
		c.used -= int64(len(entry.value))
	}
}

func (c *valueCache) reset() {
	c.order.Init()
	c.entries = make(map[int64]*list.Element)
	c.used = 0
}

// CacheStats expõe contadores do cache de valores.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Used   int64
}
