package entitycache

import "fmt"

// IDField is the field every remote document carries its identifier in.
const IDField = "_id"

// Key identifies one logical remote document regardless of which view requested it.
type Key struct {
	Collection string
	ID         string
}

// NewKey returns the cache key for id within collection.
func NewKey(collection, id string) Key {
	return Key{Collection: collection, ID: id}
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Entity is a partial remote document: field name to decoded JSON value.
type Entity map[string]any

// ID returns the document identifier or an empty string when the entity lacks one.
func (e Entity) ID() string {
	switch v := e[IDField].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// HasFields reports whether every named field is present.
// Present means the key exists; a JSON null still counts as known.
func (e Entity) HasFields(fields ...string) bool {
	for _, f := range fields {
		if _, ok := e[f]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy. Nested values are shared.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	out := make(Entity, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Fields returns the field names known for the entity, unordered.
func (e Entity) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	return out
}
