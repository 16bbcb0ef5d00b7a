package refcache

import (
	"context"

	"github.com/goliatone/go-refcache/entitycache"
)

// MutationSink performs writes against the remote store.
type MutationSink interface {
	Create(ctx context.Context, collection string, body any) (entitycache.Entity, error)
	Update(ctx context.Context, collection, id string, body any) (entitycache.Entity, error)
	Delete(ctx context.Context, collection, id string) error
}

// Mutator pairs each remote write with the matching invalidation. Nothing is
// invalidated when the write itself fails.
type Mutator struct {
	sink        MutationSink
	invalidator *Invalidator
}

// NewMutator creates a Mutator.
func NewMutator(sink MutationSink, invalidator *Invalidator) *Mutator {
	return &Mutator{sink: sink, invalidator: invalidator}
}

// Create stores body and caches the created document when the store echoes it back.
func (m *Mutator) Create(ctx context.Context, collection string, body any) (entitycache.Entity, error) {
	created, err := m.sink.Create(ctx, collection, body)
	if err != nil {
		return nil, err
	}
	m.invalidator.WriteThrough(collection, created.ID(), created)
	return created, m.invalidator.AfterCreate(ctx, collection)
}

// Update writes body to id and merges the returned document into the cache.
func (m *Mutator) Update(ctx context.Context, collection, id string, body any) (entitycache.Entity, error) {
	updated, err := m.sink.Update(ctx, collection, id, body)
	if err != nil {
		return nil, err
	}
	return updated, m.invalidator.AfterUpdate(ctx, collection, id, updated)
}

// Delete removes id remotely and forgets it locally.
func (m *Mutator) Delete(ctx context.Context, collection, id string) error {
	if err := m.sink.Delete(ctx, collection, id); err != nil {
		return err
	}
	return m.invalidator.AfterDelete(ctx, collection, id)
}
