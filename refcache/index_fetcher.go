package refcache

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-refcache/cache"
	"github.com/goliatone/go-refcache/query"
)

// indexMethod namespaces memo keys: index::{collection}::{encoded query}.
const indexMethod = "index"

// IndexSource returns one page of ids for a collection and a query.
type IndexSource interface {
	FetchIndex(ctx context.Context, collection string, params url.Values) (query.PageIndex, error)
}

// IndexFetcher memoizes index pages keyed by (collection, canonical query).
// A memoized page is served until it is invalidated or its TTL expires;
// failed lookups are never memoized.
type IndexFetcher struct {
	source        IndexSource
	memo          cache.CacheService
	keySerializer cache.KeySerializer
	tagRegistry   *sync.Map // tag -> *sync.Map of memo keys
	tel           *telemetry
	logger        *slog.Logger
}

// NewIndexFetcher creates an IndexFetcher reading through memo into source.
func NewIndexFetcher(source IndexSource, memo cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *IndexFetcher {
	o := buildOptions(opts)
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}
	return &IndexFetcher{
		source:        source,
		memo:          memo,
		keySerializer: keySerializer,
		tagRegistry:   &sync.Map{},
		tel:           newTelemetry(o),
		logger:        o.logger,
	}
}

// FetchIndex returns the page of ids for desc, fetching it at most once per
// distinct query. Concurrent first requests for the same query share one call.
func (f *IndexFetcher) FetchIndex(ctx context.Context, collection string, desc query.Descriptor, opts ...CallOption) (query.PageIndex, error) {
	cfg := buildCallConfig(opts)

	ctx, span := f.tel.start(ctx, "refcache.FetchIndex", collection)
	defer span.End()

	if err := desc.Validate(); err != nil {
		ferr := &IndexFetchError{Collection: collection, Err: errors.Join(ErrInvalidQuery, err)}
		failSpan(span, ferr)
		return query.PageIndex{}, ferr
	}

	encoded := desc.Encode()
	key := f.key(collection, encoded)
	f.registerTags(ctx, key)

	var remote atomic.Bool
	fetch := func(ctx context.Context) (query.PageIndex, error) {
		remote.Store(true)
		page, err := f.source.FetchIndex(ctx, collection, desc.Values())
		if err != nil {
			return query.PageIndex{}, &IndexFetchError{Collection: collection, Query: encoded, Err: err}
		}
		if page.IDs == nil {
			page.IDs = []string{}
		}
		return page, nil
	}

	var (
		page query.PageIndex
		err  error
	)
	if cfg.force {
		page, err = fetch(ctx)
		if err == nil {
			if serr := f.memo.Set(ctx, key, page); serr != nil {
				f.logger.WarnContext(ctx, "index memo write failed", "collection", collection, "key", key, "error", serr)
			}
		}
	} else {
		page, err = cache.GetOrFetch(ctx, f.memo, key, fetch)
	}

	if err != nil {
		var ferr *IndexFetchError
		if !errors.As(err, &ferr) {
			err = &IndexFetchError{Collection: collection, Query: encoded, Err: err}
		}
		failSpan(span, err)
		f.logger.WarnContext(ctx, "index fetch failed", "collection", collection, "query", encoded, "error", err)
		return query.PageIndex{}, err
	}

	source := "memo"
	if remote.Load() {
		source = "remote"
	}
	f.tel.indexFetches.Add(ctx, 1, metric.WithAttributes(attrCollection.String(collection), attrSource.String(source)))
	span.SetAttributes(attrSource.String(source))
	f.logger.DebugContext(ctx, "index page",
		"collection", collection,
		"query", encoded,
		"source", source,
		"ids", len(page.IDs),
	)

	return page.Clone(), nil
}

func (f *IndexFetcher) key(collection, encoded string) string {
	return f.keySerializer.SerializeKey(indexMethod, collection, encoded)
}

func (f *IndexFetcher) registerTags(ctx context.Context, key string) {
	for _, tag := range cacheTagsFromContext(ctx) {
		keys, _ := f.tagRegistry.LoadOrStore(tag, &sync.Map{})
		keys.(*sync.Map).Store(key, struct{}{})
	}
}

// forgetCollection drops every memoized page of collection.
func (f *IndexFetcher) forgetCollection(ctx context.Context, collection string) error {
	return f.memo.DeleteByPrefix(ctx, cache.KeyPrefix(f.keySerializer, indexMethod, collection))
}

// forgetQuery drops the memoized page for exactly desc.
func (f *IndexFetcher) forgetQuery(ctx context.Context, collection string, desc query.Descriptor) error {
	return f.memo.Delete(ctx, f.key(collection, desc.Encode()))
}

// forgetTag drops every page registered under tag and reports how many keys it held.
func (f *IndexFetcher) forgetTag(ctx context.Context, tag string) (int, error) {
	v, ok := f.tagRegistry.LoadAndDelete(tag)
	if !ok {
		return 0, nil
	}
	var keys []string
	v.(*sync.Map).Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	if len(keys) == 0 {
		return 0, nil
	}
	return len(keys), f.memo.InvalidateKeys(ctx, keys)
}
