// Package cache provides the read-through memo and key serialization used for
// index pages.
//
// # Overview
//
// This package exports two interfaces and their default implementations:
//
//   - CacheService: read-through memoization with prefix and bulk invalidation
//   - KeySerializer: builds stable cache keys from a method name and arguments
//
// The default CacheService is backed by sturdyc (see internal/cacheinfra).
// Concurrent misses on the same key share one fetch, and fetch errors are
// never stored.
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("index", "course", encodedQuery)
//
//	page, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (query.PageIndex, error) {
//		return source.FetchIndex(ctx, "course", values)
//	})
//
// # Key Layout
//
// Keys are segments joined with KeySeparator. The default serializer keeps
// short segments verbatim and replaces segments longer than DefaultMaxSegment
// with an xxhash digest, so
//
//	index::course::h:9f1c2b3a4d5e6f70
//
// still shares the prefix returned by KeyPrefix(serializer, "index", "course").
// Collection names must not contain KeySeparator.
//
// # See Also
//
// The refcache package uses this memo for its IndexFetcher.
package cache
