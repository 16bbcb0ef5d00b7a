package refcache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

// TypedView is a PaginatedView decoded into T.
type TypedView[T any] struct {
	Page           int      `json:"page" yaml:"page"`
	Limit          int      `json:"limit" yaml:"limit"`
	TotalPages     int      `json:"totalPages" yaml:"totalPages"`
	TotalDocuments int      `json:"totalDocuments" yaml:"totalDocuments"`
	IDs            []string `json:"ids" yaml:"ids"`
	Documents      []T      `json:"documents" yaml:"documents"`
}

// Collection is a typed handle on one remote collection. Documents are
// decoded through their json tags.
type Collection[T any] struct {
	name     string
	pages    *Paginator
	hydrator *Hydrator
}

// NewCollection binds T to a collection. An empty name is derived with CollectionName.
func NewCollection[T any](name string, pages *Paginator, hydrator *Hydrator) *Collection[T] {
	if name == "" {
		name = CollectionName[T]()
	}
	return &Collection[T]{name: name, pages: pages, hydrator: hydrator}
}

// CollectionName derives a collection name from T: Course is "course",
// StudyGroup is "study_group".
func CollectionName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return toSnake(t.Name())
}

// Name returns the remote collection name.
func (c *Collection[T]) Name() string { return c.name }

// GetPage returns one index page with its documents decoded into T.
func (c *Collection[T]) GetPage(ctx context.Context, desc query.Descriptor, opts ...CallOption) (TypedView[T], error) {
	view, err := c.pages.GetPage(ctx, c.name, desc, opts...)
	if err != nil {
		return TypedView[T]{}, err
	}
	return decodeView[T](c.name, view)
}

// GetSlice pages through ids and decodes the documents into T.
func (c *Collection[T]) GetSlice(ctx context.Context, ids []string, page, limit int, opts ...CallOption) (TypedView[T], error) {
	view, err := c.pages.GetSlice(ctx, c.name, ids, page, limit, opts...)
	if err != nil {
		return TypedView[T]{}, err
	}
	return decodeView[T](c.name, view)
}

// Hydrate decodes whatever could be resolved. A *HydrationError is passed
// through next to the decoded subset.
func (c *Collection[T]) Hydrate(ctx context.Context, ids []string, fields ...string) (map[string]T, error) {
	entities, herr := c.hydrator.Hydrate(ctx, c.name, ids, fields...)
	out := make(map[string]T, len(entities))
	for id, e := range entities {
		v, err := Decode[T](e)
		if err != nil {
			return nil, fmt.Errorf("refcache: decode %s %q: %w", c.name, id, err)
		}
		out[id] = v
	}
	return out, herr
}

// Decode converts an entity into T using T's json tags. RFC 3339 strings
// decode into time.Time fields.
func Decode[T any](e entitycache.Entity) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(e)); err != nil {
		return out, err
	}
	return out, nil
}

func decodeView[T any](collection string, view PaginatedView) (TypedView[T], error) {
	out := TypedView[T]{
		Page:           view.Page,
		Limit:          view.Limit,
		TotalPages:     view.TotalPages,
		TotalDocuments: view.TotalDocuments,
		IDs:            view.IDs,
		Documents:      make([]T, len(view.Documents)),
	}
	for i, doc := range view.Documents {
		v, err := Decode[T](doc)
		if err != nil {
			return TypedView[T]{}, fmt.Errorf("refcache: decode %s %q: %w", collection, view.IDs[i], err)
		}
		out.Documents[i] = v
	}
	return out, nil
}
