package main

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-refcache/query"
)

// queryFlags collects the raw page command flags.
type queryFlags struct {
	page, limit int
	creator     string
	searches    []string
	excludes    []string
	params      []string
	sorts       []string
}

func (qf queryFlags) descriptor() (query.Descriptor, error) {
	desc := query.New(qf.page, qf.limit)
	if qf.creator != "" {
		desc = desc.ByCreator(qf.creator)
	}

	for _, raw := range qf.searches {
		g, err := parseGroup(raw)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("--search %q: %w", raw, err)
		}
		desc = desc.Search(g.Values, g.Fields...)
	}
	for _, raw := range qf.excludes {
		g, err := parseGroup(raw)
		if err != nil {
			return query.Descriptor{}, fmt.Errorf("--exclude %q: %w", raw, err)
		}
		desc = desc.Exclude(g.Values, g.Fields...)
	}

	for _, raw := range qf.params {
		key, value, ok := strings.Cut(raw, "=")
		if !ok || key == "" {
			return query.Descriptor{}, fmt.Errorf("--param %q: want key=value", raw)
		}
		desc = desc.Param(key, value)
	}

	for _, raw := range qf.sorts {
		field, dir, _ := strings.Cut(raw, ":")
		desc = desc.SortBy(field, strings.ToLower(dir))
	}

	if err := desc.Validate(); err != nil {
		return query.Descriptor{}, err
	}
	return desc, nil
}

// parseGroup reads "values=a,b;fields=x,y". Either part may come first.
func parseGroup(raw string) (query.Group, error) {
	var g query.Group
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, list, ok := strings.Cut(part, "=")
		if !ok {
			return query.Group{}, fmt.Errorf("want values=...;fields=..., got %q", part)
		}
		switch strings.TrimSpace(key) {
		case "values":
			g.Values = append(g.Values, splitList(list)...)
		case "fields":
			g.Fields = append(g.Fields, splitList(list)...)
		default:
			return query.Group{}, fmt.Errorf("unknown group key %q", key)
		}
	}
	if len(g.Values) == 0 || len(g.Fields) == 0 {
		return query.Group{}, fmt.Errorf("group needs both values and fields")
	}
	return g, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
