// Package refcache loads paginated views of a remote document store while
// fetching every document body at most once per session.
//
// # Overview
//
// The remote store answers two kinds of reads: an index read that returns one
// page of ids for a query, and a batch read that returns documents for many
// ids at once. refcache splits every paginated read into those two steps:
//
//	query  -> IndexFetcher -> [id, id, id]   (memoized per canonical query)
//	ids    -> Hydrator     -> [doc, doc, doc] (served from entitycache.Cache)
//
// Documents live in a single entitycache.Cache keyed by (collection, id).
// Different views over the same collection reuse the same entries, and a
// partial fetch (a subset of fields) only ever adds fields to an entry.
//
// # Components
//
//   - IndexFetcher: memoizes index pages in a cache.CacheService
//   - Hydrator: resolves ids, batching every miss into one remote call
//   - Paginator: GetPage (server paginated), GetSlice (caller-held ids), GetPages
//   - Invalidator: drops index pages and entities after writes
//   - Mutator: remote writes followed by the matching invalidation
//   - Collection[T]: typed views decoded through json tags
//
// # Basic Usage
//
//	client, _ := remote.New(remote.Config{BaseURL: "https://api.example.com"})
//	memo, _ := cache.NewCacheService(cache.DefaultConfig())
//	entities := entitycache.New()
//
//	indexes := refcache.NewIndexFetcher(client, memo, cache.NewDefaultKeySerializer())
//	hydrator := refcache.NewHydrator(entities, client)
//	pages := refcache.NewPaginator(indexes, hydrator)
//
//	view, err := pages.GetPage(ctx, "course", query.New(1, 20).SortBy("name", query.Asc))
//
// The pkg/di container performs this wiring from a single Config.
//
// # Partial Failures
//
// Hydrate returns the entities it could resolve together with a
// *HydrationError listing the ids it could not. GetPage and GetSlice never
// return a partially filled view: any hydration failure is returned as is.
//
// # Concurrency
//
// All components are safe for concurrent use. Overlapping hydrations join a
// batch already in flight for the same ids unless WithCoalescing(false) is
// given. Concurrent first reads of the same index page share one remote call.
package refcache
