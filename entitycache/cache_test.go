package entitycache

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutMergesMonotonically(t *testing.T) {
	c := New()
	key := NewKey("course", "a")

	writes := []Entity{
		{"name": "Go 101"},
		{"description": "intro", "name": "Go 102"},
		{"tags": []string{"go"}},
		{"description": "updated"},
	}
	for _, w := range writes {
		c.Put(key, w)
	}

	got, ok := c.Get(key)
	require.True(t, ok)

	assert.Equal(t, Entity{
		"_id":         "a",
		"name":        "Go 102",
		"description": "updated",
		"tags":        []string{"go"},
	}, got)
}

func TestCache_PutKeepsExplicitID(t *testing.T) {
	c := New()
	key := NewKey("course", "a")

	c.Put(key, Entity{"_id": "a", "name": "x"})
	got, _ := c.Get(key)
	assert.Equal(t, "a", got.ID())
}

func TestCache_Has(t *testing.T) {
	c := New()
	key := NewKey("course", "a")

	assert.False(t, c.Has(key), "missing entry")

	c.Put(key, Entity{"name": "Go", "description": nil})

	tests := []struct {
		name     string
		required []string
		want     bool
	}{
		{name: "existence only", required: nil, want: true},
		{name: "present field", required: []string{"name"}, want: true},
		{name: "null counts as known", required: []string{"description"}, want: true},
		{name: "absent field", required: []string{"name", "creator"}, want: false},
		{name: "id always present", required: []string{IDField}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Has(key, tt.required...))
		})
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := New()
	key := NewKey("course", "a")
	partial := Entity{"name": "Go"}
	c.Put(key, partial)

	partial["name"] = "mutated input"
	got, _ := c.Get(key)
	got["name"] = "mutated output"

	again, _ := c.Get(key)
	assert.Equal(t, "Go", again["name"])
}

func TestCache_Remove(t *testing.T) {
	c := New()
	key := NewKey("course", "a")

	assert.False(t, c.Remove(key), "removing an unknown key is a no-op")

	c.Put(key, Entity{"name": "Go"})
	assert.True(t, c.Remove(key))
	assert.False(t, c.Has(key))
}

func TestCache_RemoveCollection(t *testing.T) {
	c := New()
	c.Put(NewKey("course", "a"), Entity{"name": "a"})
	c.Put(NewKey("course", "b"), Entity{"name": "b"})
	c.Put(NewKey("user", "a"), Entity{"name": "alice"})

	assert.Equal(t, 2, c.RemoveCollection("course"))
	assert.Equal(t, 0, c.RemoveCollection("course"))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has(NewKey("user", "a")))
}

func TestCache_Keys(t *testing.T) {
	c := New()
	c.Put(NewKey("course", "b"), Entity{})
	c.Put(NewKey("course", "a"), Entity{})
	c.Put(NewKey("user", "c"), Entity{})

	ids := c.Keys("course")
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestCache_ConcurrentPutsUnionFields(t *testing.T) {
	c := New()
	key := NewKey("course", "a")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put(key, Entity{fmt.Sprintf("f%d", i): i})
		}(i)
	}
	wg.Wait()

	got, ok := c.Get(key)
	require.True(t, ok)
	for i := 0; i < 64; i++ {
		assert.Equal(t, i, got[fmt.Sprintf("f%d", i)])
	}
}

func TestEntity_ID(t *testing.T) {
	assert.Equal(t, "", Entity{}.ID())
	assert.Equal(t, "x", Entity{"_id": "x"}.ID())
	assert.Equal(t, "42", Entity{"_id": 42}.ID())
}
