package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Wire parameter names understood by the remote paginate endpoint.
const (
	ParamPage      = "page"
	ParamLimit     = "limit"
	ParamCreatorID = "creatorId"
	ParamSort      = "sortOptions"

	searchPrefix  = "search"
	excludePrefix = "exclude"
	fieldsSuffix  = "fields"
)

// Sort directions accepted by the remote store.
const (
	Asc  = "asc"
	Desc = "desc"
)

// Group is one filter group: a row matches when any of Fields matches any of Values.
type Group struct {
	Values []string
	Fields []string
}

// Validate implements validation.Validatable.
func (g Group) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.Values, validation.Required),
		validation.Field(&g.Fields, validation.Required),
	)
}

// SortField orders results by Field. An empty Direction means ascending.
type SortField struct {
	Field     string
	Direction string
}

// Validate implements validation.Validatable.
func (s SortField) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Field, validation.Required),
		validation.Field(&s.Direction, validation.In(Asc, Desc, "1", "-1")),
	)
}

func (s SortField) encode() string {
	dir := s.Direction
	if dir == "" {
		dir = Asc
	}
	return s.Field + ":" + dir
}

// Descriptor describes one page of an index query.
//
// Filters and Excludes are numbered on the wire in slice order starting at 1
// (search1, search2, exclude1...). Sort entries are sent in priority order.
// A Descriptor is only ever identified by its encoded form.
type Descriptor struct {
	Page      int
	Limit     int
	CreatorID string
	Filters   []Group
	Excludes  []Group
	Extra     map[string]string
	Sort      []SortField
}

// New returns a descriptor for page with limit entries per page.
func New(page, limit int) Descriptor {
	return Descriptor{Page: page, Limit: limit}
}

// Search returns a copy with an additional filter group.
func (d Descriptor) Search(values []string, fields ...string) Descriptor {
	out := d.Clone()
	out.Filters = append(out.Filters, Group{Values: cloneStrings(values), Fields: cloneStrings(fields)})
	return out
}

// Exclude returns a copy with an additional exclusion group.
func (d Descriptor) Exclude(values []string, fields ...string) Descriptor {
	out := d.Clone()
	out.Excludes = append(out.Excludes, Group{Values: cloneStrings(values), Fields: cloneStrings(fields)})
	return out
}

// SortBy returns a copy with an additional sort entry of lower priority than existing ones.
func (d Descriptor) SortBy(field, direction string) Descriptor {
	out := d.Clone()
	out.Sort = append(out.Sort, SortField{Field: field, Direction: direction})
	return out
}

// Param returns a copy with a pass-through parameter set.
func (d Descriptor) Param(key, value string) Descriptor {
	out := d.Clone()
	if out.Extra == nil {
		out.Extra = make(map[string]string, 1)
	}
	out.Extra[key] = value
	return out
}

// ByCreator returns a copy restricted to documents created by creatorID.
func (d Descriptor) ByCreator(creatorID string) Descriptor {
	out := d.Clone()
	out.CreatorID = creatorID
	return out
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Filters = cloneGroups(d.Filters)
	out.Excludes = cloneGroups(d.Excludes)
	if d.Sort != nil {
		out.Sort = append([]SortField(nil), d.Sort...)
	}
	if d.Extra != nil {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Validate checks the descriptor can be sent to the remote store.
func (d Descriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Page, validation.Required, validation.Min(1)),
		validation.Field(&d.Limit, validation.Required, validation.Min(1)),
		validation.Field(&d.Filters),
		validation.Field(&d.Excludes),
		validation.Field(&d.Sort),
		validation.Field(&d.Extra, validation.By(validateExtra)),
	)
}

func validateExtra(value any) error {
	extra, _ := value.(map[string]string)
	for k := range extra {
		if isReserved(k) {
			return fmt.Errorf("parameter %q is reserved", k)
		}
	}
	return nil
}

func isReserved(key string) bool {
	switch key {
	case ParamPage, ParamLimit, ParamCreatorID, ParamSort, "":
		return true
	}
	return isGroupParam(key, searchPrefix) || isGroupParam(key, excludePrefix)
}

// isGroupParam matches prefix{N} and prefix{N}fields.
func isGroupParam(key, prefix string) bool {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return false
	}
	rest = strings.TrimSuffix(rest, fieldsSuffix)
	if rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// Values serializes the descriptor into query parameters.
func (d Descriptor) Values() url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(d.Page))
	v.Set(ParamLimit, strconv.Itoa(d.Limit))
	if d.CreatorID != "" {
		v.Set(ParamCreatorID, d.CreatorID)
	}

	addGroups(v, searchPrefix, d.Filters)
	addGroups(v, excludePrefix, d.Excludes)

	for k, val := range d.Extra {
		v.Set(k, val)
	}
	for _, s := range d.Sort {
		v.Add(ParamSort, s.encode())
	}
	return v
}

// Encode returns the canonical query string. Equal descriptors encode equally.
func (d Descriptor) Encode() string {
	return d.Values().Encode()
}

func addGroups(v url.Values, prefix string, groups []Group) {
	for i, g := range groups {
		name := prefix + strconv.Itoa(i+1)
		for _, val := range g.Values {
			v.Add(name, val)
		}
		for _, f := range g.Fields {
			v.Add(name+fieldsSuffix, f)
		}
	}
}

func cloneGroups(groups []Group) []Group {
	if groups == nil {
		return nil
	}
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group{Values: cloneStrings(g.Values), Fields: cloneStrings(g.Fields)}
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
