package refcache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/goliatone/go-refcache/entitycache"
)

// BatchSource resolves many ids of one collection in a single call.
// Ids the store does not know are absent from the returned map.
type BatchSource interface {
	FetchBatch(ctx context.Context, collection string, ids []string, fields []string) (map[string]entitycache.Entity, error)
}

// Hydrator turns ids into entities, serving what the EntityCache already holds
// and fetching everything else in at most one batched call per Hydrate.
type Hydrator struct {
	entities *entitycache.Cache
	source   BatchSource
	coalesce bool
	tel      *telemetry
	logger   *slog.Logger

	mu      sync.Mutex
	flights map[entitycache.Key]*flight
}

// flight is one batched fetch. Waiters block on done; returned and err are
// written before done is closed.
type flight struct {
	fields   []string // nil for full documents
	done     chan struct{}
	returned map[string]struct{}
	err      error
}

// covers reports whether an entry produced by f satisfies a request for fields.
func (f *flight) covers(fields []string) bool {
	if f.fields == nil || len(fields) == 0 {
		return true
	}
	for _, field := range fields {
		if !slices.Contains(f.fields, field) {
			return false
		}
	}
	return true
}

// NewHydrator creates a Hydrator over entities and source.
func NewHydrator(entities *entitycache.Cache, source BatchSource, opts ...Option) *Hydrator {
	o := buildOptions(opts)
	return &Hydrator{
		entities: entities,
		source:   source,
		coalesce: o.coalesce,
		tel:      newTelemetry(o),
		logger:   o.logger,
		flights:  make(map[entitycache.Key]*flight),
	}
}

// Hydrate returns the entities for ids keyed by id. With fields, cached entries
// holding all of them are served from cache and only the rest are fetched,
// restricted to those fields. Without fields any cached entry is a hit and
// misses are fetched as full documents.
//
// Duplicate ids are resolved once. When some ids cannot be resolved Hydrate
// returns the entities it has together with a *HydrationError naming the rest.
// Cancelling ctx releases the caller but does not abort a batch that is
// already running; its results still land in the cache.
func (h *Hydrator) Hydrate(ctx context.Context, collection string, ids []string, fields ...string) (map[string]entitycache.Entity, error) {
	return h.hydrate(ctx, collection, ids, fields, false)
}

// Refresh re-fetches ids regardless of what is cached and merges the response
// over the existing entries.
func (h *Hydrator) Refresh(ctx context.Context, collection string, ids []string, fields ...string) (map[string]entitycache.Entity, error) {
	return h.hydrate(ctx, collection, ids, fields, true)
}

func (h *Hydrator) hydrate(ctx context.Context, collection string, ids []string, fields []string, force bool) (map[string]entitycache.Entity, error) {
	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return map[string]entitycache.Entity{}, nil
	}
	fields = dedupeStrings(fields)

	ctx, span := h.tel.start(ctx, "refcache.Hydrate", collection)
	defer span.End()
	start := time.Now()

	var (
		hits    int
		joined  int
		missing []string
		waits   = map[*flight][]string{}
		failed  = map[string]error{}
	)

	h.mu.Lock()
	for _, id := range unique {
		if id == "" {
			failed[id] = ErrEmptyID
			continue
		}
		key := entitycache.NewKey(collection, id)
		if !force && h.entities.Has(key, fields...) {
			hits++
			continue
		}
		if h.coalesce && !force {
			if fl, ok := h.flights[key]; ok && fl.covers(fields) {
				waits[fl] = append(waits[fl], id)
				joined++
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		own := &flight{fields: fields, done: make(chan struct{})}
		if h.coalesce {
			for _, id := range missing {
				h.flights[entitycache.NewKey(collection, id)] = own
			}
		}
		waits[own] = missing
		go h.run(context.WithoutCancel(ctx), collection, own, missing)
	}
	h.mu.Unlock()

	attrs := collectionAttr(collection)
	h.tel.hits.Add(ctx, int64(hits), attrs)
	h.tel.misses.Add(ctx, int64(len(missing)), attrs)
	h.tel.coalesced.Add(ctx, int64(joined), attrs)

	for fl, flIDs := range waits {
		select {
		case <-fl.done:
			for _, id := range flIDs {
				if fl.err != nil {
					failed[id] = fl.err
					continue
				}
				if _, ok := fl.returned[id]; !ok && !h.entities.Has(entitycache.NewKey(collection, id), fields...) {
					failed[id] = ErrNotReturned
				}
			}
		case <-ctx.Done():
			for _, id := range flIDs {
				failed[id] = ctx.Err()
			}
		}
	}

	out := make(map[string]entitycache.Entity, len(unique))
	var (
		unavailable []string
		causes      []error
	)
	for _, id := range unique {
		if cause, ok := failed[id]; ok {
			unavailable = append(unavailable, id)
			causes = appendCause(causes, cause)
			continue
		}
		entity, ok := h.entities.Get(entitycache.NewKey(collection, id))
		if !ok {
			// Removed between the fetch and now.
			unavailable = append(unavailable, id)
			causes = appendCause(causes, ErrNotReturned)
			continue
		}
		out[id] = entity
	}

	h.tel.hydrateMs.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	h.logger.DebugContext(ctx, "hydrate",
		"collection", collection,
		"requested", len(unique),
		"hits", hits,
		"fetched", len(missing),
		"coalesced", joined,
		"unavailable", len(unavailable),
	)

	if len(unavailable) > 0 {
		herr := &HydrationError{Collection: collection, Missing: unavailable, Err: errors.Join(causes...)}
		failSpan(span, herr)
		return out, herr
	}
	return out, nil
}

// run performs the batch for fl and publishes the result to its waiters.
func (h *Hydrator) run(ctx context.Context, collection string, fl *flight, ids []string) {
	defer func() {
		if h.coalesce {
			h.mu.Lock()
			for _, id := range ids {
				key := entitycache.NewKey(collection, id)
				if h.flights[key] == fl {
					delete(h.flights, key)
				}
			}
			h.mu.Unlock()
		}
		close(fl.done)
	}()

	h.tel.batches.Add(ctx, 1, collectionAttr(collection))

	docs, err := h.source.FetchBatch(ctx, collection, ids, fl.fields)
	if err != nil {
		h.logger.WarnContext(ctx, "hydrate batch failed",
			"collection", collection,
			"ids", len(ids),
			"error", err,
		)
		fl.err = err
		return
	}

	fl.returned = make(map[string]struct{}, len(docs))
	for _, id := range ids {
		doc, ok := docs[id]
		if !ok || doc == nil {
			continue
		}
		h.entities.Put(entitycache.NewKey(collection, id), doc)
		fl.returned[id] = struct{}{}
	}
}

func appendCause(causes []error, err error) []error {
	for _, c := range causes {
		if errors.Is(c, err) {
			return causes
		}
	}
	return append(causes, err)
}

// dedupeIDs keeps the first occurrence of each id, in order. Unlike
// dedupeStrings it keeps the empty id so it can be reported.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
