package entitycache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Cache is a process-wide store of partial entities keyed by (collection, id).
//
// Writes merge into the existing entry: fields supplied by the write replace
// the stored value for that field, every other stored field is kept. An entry
// therefore only ever gains fields until it is removed. There is no eviction;
// staleness is handled by explicit removal.
//
// Cache is safe for concurrent use. Entries are copied on the way in and out so
// callers can never mutate stored state.
type Cache struct {
	entries *xsync.MapOf[Key, Entity]
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: xsync.NewMapOf[Key, Entity]()}
}

// Get returns a copy of the entry stored for key.
func (c *Cache) Get(key Key) (Entity, bool) {
	e, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Put merges partial into the entry for key, creating it when absent.
// The identifier field is stamped from the key when the partial lacks it.
func (c *Cache) Put(key Key, partial Entity) {
	c.entries.Compute(key, func(old Entity, loaded bool) (Entity, bool) {
		merged := make(Entity, len(old)+len(partial)+1)
		for k, v := range old {
			merged[k] = v
		}
		for k, v := range partial {
			merged[k] = v
		}
		if _, ok := merged[IDField]; !ok {
			merged[IDField] = key.ID
		}
		return merged, false
	})
}

// Has reports whether an entry exists for key and holds every required field.
// With no required fields it only checks existence.
func (c *Cache) Has(key Key, required ...string) bool {
	e, ok := c.entries.Load(key)
	if !ok {
		return false
	}
	return e.HasFields(required...)
}

// Remove drops the entry for key. It returns false when nothing was cached.
func (c *Cache) Remove(key Key) bool {
	_, ok := c.entries.LoadAndDelete(key)
	return ok
}

// RemoveCollection drops every entry of collection and returns how many were removed.
func (c *Cache) RemoveCollection(collection string) int {
	var keys []Key
	c.entries.Range(func(k Key, _ Entity) bool {
		if k.Collection == collection {
			keys = append(keys, k)
		}
		return true
	})

	removed := 0
	for _, k := range keys {
		if c.Remove(k) {
			removed++
		}
	}
	return removed
}

// Keys lists the ids cached for collection, unordered.
func (c *Cache) Keys(collection string) []string {
	var ids []string
	c.entries.Range(func(k Key, _ Entity) bool {
		if k.Collection == collection {
			ids = append(ids, k.ID)
		}
		return true
	})
	return ids
}

// Len returns the number of cached entries across all collections.
func (c *Cache) Len() int {
	return c.entries.Size()
}
