package refcache

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

// Invalidator drops memoized index pages and cached entities after writes.
// Entity entries and index pages are independent: dropping a collection's
// pages keeps its entities, which later pages will still reuse.
type Invalidator struct {
	entities *entitycache.Cache
	indexes  *IndexFetcher
	logger   *slog.Logger
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(entities *entitycache.Cache, indexes *IndexFetcher, opts ...Option) *Invalidator {
	o := buildOptions(opts)
	return &Invalidator{
		entities: entities,
		indexes:  indexes,
		logger:   o.logger,
	}
}

// InvalidateCollection drops every memoized index page of collection.
func (i *Invalidator) InvalidateCollection(ctx context.Context, collection string) error {
	if err := i.indexes.forgetCollection(ctx, collection); err != nil {
		i.logger.WarnContext(ctx, "invalidate collection failed", "collection", collection, "error", err)
		return err
	}
	i.logger.DebugContext(ctx, "invalidated collection indexes", "collection", collection)
	return nil
}

// InvalidateEntity removes one cached entity. It reports false when nothing
// was cached for it.
func (i *Invalidator) InvalidateEntity(collection, id string) bool {
	return i.entities.Remove(entitycache.NewKey(collection, id))
}

// InvalidateIndex drops the memoized page for desc, or every page of the
// collection when desc is nil.
func (i *Invalidator) InvalidateIndex(ctx context.Context, collection string, desc *query.Descriptor) error {
	if desc == nil {
		return i.InvalidateCollection(ctx, collection)
	}
	return i.indexes.forgetQuery(ctx, collection, *desc)
}

// InvalidateTag drops every index page fetched under a context carrying tag.
func (i *Invalidator) InvalidateTag(ctx context.Context, tag string) error {
	n, err := i.indexes.forgetTag(ctx, tag)
	if err != nil {
		i.logger.WarnContext(ctx, "invalidate tag failed", "tag", tag, "error", err)
		return err
	}
	i.logger.DebugContext(ctx, "invalidated tag", "tag", tag, "keys", n)
	return nil
}

// WriteThrough merges fields into the cached entity so readers see a write
// without another fetch.
func (i *Invalidator) WriteThrough(collection, id string, fields entitycache.Entity) {
	if id == "" || len(fields) == 0 {
		return
	}
	i.entities.Put(entitycache.NewKey(collection, id), fields)
}

// AfterCreate runs after a document was created. A new document can shift
// every page of its collection.
func (i *Invalidator) AfterCreate(ctx context.Context, collection string) error {
	return i.InvalidateCollection(ctx, collection)
}

// AfterUpdate runs after a document was updated. fresh, when given, is
// written through; otherwise the stale entity is dropped.
func (i *Invalidator) AfterUpdate(ctx context.Context, collection, id string, fresh entitycache.Entity) error {
	if len(fresh) > 0 {
		i.WriteThrough(collection, id, fresh)
	} else {
		i.InvalidateEntity(collection, id)
	}
	return i.InvalidateCollection(ctx, collection)
}

// AfterDelete runs after a document was deleted.
func (i *Invalidator) AfterDelete(ctx context.Context, collection, id string) error {
	i.InvalidateEntity(collection, id)
	return i.InvalidateCollection(ctx, collection)
}
