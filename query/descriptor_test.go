package query

import (
	"errors"
	"math"
	"net/url"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_Values(t *testing.T) {
	d := New(2, 10).
		ByCreator("user-1").
		Search([]string{"go", "rust"}, "name", "description").
		Search([]string{"published"}, "status").
		Exclude([]string{"archived"}, "status").
		Param("institution", "inst-9").
		SortBy("createdAt", Desc).
		SortBy("name", "")

	v := d.Values()

	assert.Equal(t, "2", v.Get("page"))
	assert.Equal(t, "10", v.Get("limit"))
	assert.Equal(t, "user-1", v.Get("creatorId"))
	assert.Equal(t, []string{"go", "rust"}, v["search1"])
	assert.Equal(t, []string{"name", "description"}, v["search1fields"])
	assert.Equal(t, []string{"published"}, v["search2"])
	assert.Equal(t, []string{"status"}, v["search2fields"])
	assert.Equal(t, []string{"archived"}, v["exclude1"])
	assert.Equal(t, []string{"status"}, v["exclude1fields"])
	assert.Equal(t, "inst-9", v.Get("institution"))
	assert.Equal(t, []string{"createdAt:desc", "name:asc"}, v["sortOptions"])
}

func TestDescriptor_OmitsEmptyCreator(t *testing.T) {
	v := New(1, 5).Values()
	_, ok := v["creatorId"]
	assert.False(t, ok)
	assert.Equal(t, url.Values{"page": {"1"}, "limit": {"5"}}, v)
}

func TestDescriptor_EncodeIsCanonical(t *testing.T) {
	a := New(1, 5).Param("b", "2").Param("a", "1").SortBy("name", Asc)
	b := New(1, 5).Param("a", "1").Param("b", "2").SortBy("name", Asc)

	assert.Equal(t, a.Encode(), b.Encode())
	assert.Equal(t, "a=1&b=2&limit=5&page=1&sortOptions=name%3Aasc", a.Encode())

	c := b.SortBy("createdAt", Desc)
	assert.NotEqual(t, b.Encode(), c.Encode())
}

func TestDescriptor_BuildersDoNotAlias(t *testing.T) {
	base := New(1, 5).Search([]string{"go"}, "name").Param("x", "1")
	derived := base.Search([]string{"rust"}, "name").Param("x", "2")

	assert.Len(t, base.Filters, 1)
	assert.Equal(t, "1", base.Extra["x"])
	assert.Len(t, derived.Filters, 2)
	assert.Equal(t, "2", derived.Extra["x"])

	derived.Filters[0].Values[0] = "mutated"
	assert.Equal(t, "go", base.Filters[0].Values[0])
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantKey string
	}{
		{name: "valid", desc: New(1, 10).Search([]string{"a"}, "name").SortBy("name", Desc)},
		{name: "zero page", desc: New(0, 10), wantKey: "Page"},
		{name: "negative limit", desc: New(1, -1), wantKey: "Limit"},
		{name: "group without fields", desc: New(1, 10).Search([]string{"a"}), wantKey: "Filters"},
		{name: "exclude without values", desc: New(1, 10).Exclude(nil, "name"), wantKey: "Excludes"},
		{name: "bad direction", desc: New(1, 10).SortBy("name", "sideways"), wantKey: "Sort"},
		{name: "missing sort field", desc: New(1, 10).SortBy("", Asc), wantKey: "Sort"},
		{name: "reserved extra", desc: New(1, 10).Param("page", "3"), wantKey: "Extra"},
		{name: "reserved group extra", desc: New(1, 10).Param("search2fields", "x"), wantKey: "Extra"},
		{name: "non reserved look-alike", desc: New(1, 10).Param("searchTerm", "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantKey == "" {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs), "expected validation.Errors, got %T", err)
			assert.Contains(t, verrs, tt.wantKey)
		})
	}
}

func TestPageIndex_Clone(t *testing.T) {
	p := PageIndex{Page: 1, IDs: []string{"a", "b"}}
	c := p.Clone()
	c.IDs[0] = "z"
	assert.Equal(t, "a", p.IDs[0])

	empty := PageIndex{IDs: []string{}}.Clone()
	assert.NotNil(t, empty.IDs)
	assert.Nil(t, PageIndex{}.Clone().IDs)
}

func TestTotalPagesFor(t *testing.T) {
	tests := []struct{ total, limit, want int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{5, 2, 3},
		{5, 0, 0},
		{5, math.MaxInt, 1},
		{math.MaxInt, 1, math.MaxInt},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPagesFor(tt.total, tt.limit), "total=%d limit=%d", tt.total, tt.limit)
	}
}
