package refcache

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/goliatone/go-refcache/cache"
	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

// fakeIndexSource answers index reads from a map keyed by encoded query.
type fakeIndexSource struct {
	mu    sync.Mutex
	pages map[string]query.PageIndex
	err   error
	calls []url.Values
}

func newFakeIndexSource() *fakeIndexSource {
	return &fakeIndexSource{pages: map[string]query.PageIndex{}}
}

func (f *fakeIndexSource) set(desc query.Descriptor, page query.PageIndex) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[desc.Encode()] = page
}

func (f *fakeIndexSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeIndexSource) FetchIndex(_ context.Context, _ string, params url.Values) (query.PageIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.err != nil {
		return query.PageIndex{}, f.err
	}
	return f.pages[params.Encode()].Clone(), nil
}

func (f *fakeIndexSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type batchCall struct {
	Collection string
	IDs        []string
	Fields     []string
}

// fakeBatchSource serves documents from an in-memory store. When gate is set
// every call blocks until it is closed.
type fakeBatchSource struct {
	mu    sync.Mutex
	docs  map[string]entitycache.Entity
	err   error
	gate  chan struct{}
	calls []batchCall
}

func newFakeBatchSource(docs ...entitycache.Entity) *fakeBatchSource {
	f := &fakeBatchSource{docs: map[string]entitycache.Entity{}}
	for _, d := range docs {
		f.docs[d.ID()] = d
	}
	return f
}

func (f *fakeBatchSource) FetchBatch(ctx context.Context, collection string, ids []string, fields []string) (map[string]entitycache.Entity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, batchCall{
		Collection: collection,
		IDs:        append([]string(nil), ids...),
		Fields:     append([]string(nil), fields...),
	})
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]entitycache.Entity{}
	for _, id := range ids {
		doc, ok := f.docs[id]
		if !ok {
			continue
		}
		if len(fields) == 0 {
			out[id] = doc.Clone()
			continue
		}
		partial := entitycache.Entity{entitycache.IDField: id}
		for _, field := range fields {
			if v, ok := doc[field]; ok {
				partial[field] = v
			}
		}
		out[id] = partial
	}
	return out, nil
}

func (f *fakeBatchSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBatchSource) call(i int) batchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type stack struct {
	entities *entitycache.Cache
	index    *fakeIndexSource
	batch    *fakeBatchSource
	memo     cache.CacheService
	reader   *sdkmetric.ManualReader
	fetcher  *IndexFetcher
	hydrator *Hydrator
	pages    *Paginator
	inv      *Invalidator
}

func newStack(t *testing.T, batch *fakeBatchSource, opts ...Option) *stack {
	t.Helper()

	memo, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	opts = append([]Option{WithMeterProvider(mp)}, opts...)

	s := &stack{
		entities: entitycache.New(),
		index:    newFakeIndexSource(),
		batch:    batch,
		memo:     memo,
		reader:   reader,
	}
	s.fetcher = NewIndexFetcher(s.index, memo, cache.NewDefaultKeySerializer(), opts...)
	s.hydrator = NewHydrator(s.entities, batch, opts...)
	s.pages = NewPaginator(s.fetcher, s.hydrator, opts...)
	s.inv = NewInvalidator(s.entities, s.fetcher, opts...)
	return s
}

// counter sums every data point of the named Int64 counter.
func (s *stack) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, s.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is %T", name, m.Data)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func course(id, name, description string) entitycache.Entity {
	return entitycache.Entity{
		entitycache.IDField: id,
		"name":              name,
		"description":       description,
	}
}
