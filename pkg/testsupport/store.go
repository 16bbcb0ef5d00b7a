package testsupport

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

//go:embed testdata/courses.json
var coursesJSON []byte

// Courses returns the bundled "course" dataset: eight documents with
// name, description, level, tags, seats and creatorId fields.
func Courses() []entitycache.Entity {
	var docs []entitycache.Entity
	if err := json.Unmarshal(coursesJSON, &docs); err != nil {
		panic(fmt.Sprintf("testsupport: bundled courses: %v", err))
	}
	return docs
}

// Endpoint names one kind of remote store request.
type Endpoint string

const (
	EndpointIndex  Endpoint = "index"
	EndpointBatch  Endpoint = "batch"
	EndpointCreate Endpoint = "create"
	EndpointUpdate Endpoint = "update"
	EndpointDelete Endpoint = "delete"
)

// Request is one request received by a Store.
type Request struct {
	Endpoint   Endpoint
	Collection string
	IDs        []string
	Fields     []string
	Query      url.Values
	RequestID  string
}

// Store is an in-process fake of the remote document store speaking its HTTP
// protocol: paginated index reads with search, exclude, creator, extra-param
// and sort support, batched reads with field subsets, and writes.
type Store struct {
	server *httptest.Server

	mu       sync.Mutex
	docs     map[string][]entitycache.Entity
	failures map[Endpoint]int
	gate     chan struct{}
	requests []Request
}

// NewStore starts a Store. Call Close when done; StartStore does it for tests.
func NewStore() *Store {
	s := &Store{
		docs:     map[string][]entitycache.Entity{},
		failures: map[Endpoint]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{collection}/paginate", s.handleIndex)
	mux.HandleFunc("GET /{collection}/get/{ids}", s.handleBatch)
	mux.HandleFunc("POST /{collection}", s.handleCreate)
	mux.HandleFunc("PUT /{collection}/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /{collection}/{id}", s.handleDelete)
	s.server = httptest.NewServer(mux)
	return s
}

// StartStore starts a Store that is closed with the test.
func StartStore(tb testing.TB) *Store {
	tb.Helper()
	s := NewStore()
	tb.Cleanup(s.Close)
	return s
}

// URL is the base URL to configure remote.Client with.
func (s *Store) URL() string { return s.server.URL }

// Close stops the server. It waits for held batch requests, so release them first.
func (s *Store) Close() { s.server.Close() }

// Seed appends documents to collection in index order.
func (s *Store) Seed(collection string, docs ...entitycache.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.docs[collection] = append(s.docs[collection], d.Clone())
	}
}

// SeedFixture seeds collection from a JSON array fixture file.
func (s *Store) SeedFixture(tb testing.TB, collection, fixture string) {
	tb.Helper()
	s.Seed(collection, LoadEntities(tb, fixture)...)
}

// Fail makes every request to endpoint answer status. Zero restores normal answers.
func (s *Store) Fail(endpoint Endpoint, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, endpoint)
		return
	}
	s.failures[endpoint] = status
}

// Hold blocks batch responses until the returned release func is called.
// The request is recorded before it blocks.
func (s *Store) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Requests returns every request received so far.
func (s *Store) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Calls counts requests to endpoint for collection.
func (s *Store) Calls(endpoint Endpoint, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Endpoint == endpoint && r.Collection == collection {
			n++
		}
	}
	return n
}

// Doc returns the stored document for id.
func (s *Store) Doc(collection, id string) (entitycache.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(collection, id)
	if i < 0 {
		return nil, false
	}
	return s.docs[collection][i].Clone(), true
}

// record stores req and reports the injected failure status, if any.
func (s *Store) record(req Request) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.failures[req.Endpoint]
}

func (s *Store) indexOf(collection, id string) int {
	return slices.IndexFunc(s.docs[collection], func(d entitycache.Entity) bool { return d.ID() == id })
}

func (s *Store) handleIndex(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	params := r.URL.Query()
	if status := s.record(Request{Endpoint: EndpointIndex, Collection: collection, Query: params, RequestID: r.Header.Get("X-Request-Id")}); status != 0 {
		writeError(w, status, "injected failure")
		return
	}

	page, err1 := strconv.Atoi(params.Get(query.ParamPage))
	limit, err2 := strconv.Atoi(params.Get(query.ParamLimit))
	if err1 != nil || err2 != nil || page < 1 || limit < 1 {
		writeError(w, http.StatusBadRequest, "page and limit must be positive integers")
		return
	}

	s.mu.Lock()
	matched := filterDocs(s.docs[collection], params)
	s.mu.Unlock()

	if sortErr := sortDocs(matched, params[query.ParamSort]); sortErr != nil {
		writeError(w, http.StatusBadRequest, sortErr.Error())
		return
	}

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	ids := make([]string, 0, end-start)
	for _, d := range matched[start:end] {
		ids = append(ids, d.ID())
	}

	writeJSON(w, http.StatusOK, query.PageIndex{
		Page:           page,
		Limit:          limit,
		TotalPages:     query.TotalPagesFor(total, limit),
		TotalDocuments: total,
		IDs:            ids,
	})
}

func (s *Store) handleBatch(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	// Split the escaped segment so ids containing commas survive.
	var ids []string
	for _, raw := range strings.Split(path.Base(r.URL.EscapedPath()), ",") {
		id, err := url.PathUnescape(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad id encoding")
			return
		}
		ids = append(ids, id)
	}
	var fields []string
	if f := r.URL.Query().Get("fields"); f != "" {
		fields = strings.Split(f, ",")
	}

	req := Request{Endpoint: EndpointBatch, Collection: collection, IDs: ids, Fields: fields, RequestID: r.Header.Get("X-Request-Id")}
	if status := s.record(req); status != 0 {
		writeError(w, status, "injected failure")
		return
	}

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	out := make(map[string]entitycache.Entity, len(ids))
	for _, id := range ids {
		i := s.indexOf(collection, id)
		if i < 0 {
			continue
		}
		out[id] = project(s.docs[collection][i], fields)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Store) handleCreate(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	if status := s.record(Request{Endpoint: EndpointCreate, Collection: collection, RequestID: r.Header.Get("X-Request-Id")}); status != 0 {
		writeError(w, status, "injected failure")
		return
	}

	var doc entitycache.Entity
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	if doc.ID() == "" {
		doc[entitycache.IDField] = uuid.NewString()
	}

	s.mu.Lock()
	if s.indexOf(collection, doc.ID()) >= 0 {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "duplicate id")
		return
	}
	s.docs[collection] = append(s.docs[collection], doc.Clone())
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, doc)
}

func (s *Store) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection, id := r.PathValue("collection"), r.PathValue("id")
	if status := s.record(Request{Endpoint: EndpointUpdate, Collection: collection, IDs: []string{id}, RequestID: r.Header.Get("X-Request-Id")}); status != 0 {
		writeError(w, status, "injected failure")
		return
	}

	var patch entitycache.Entity
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	s.mu.Lock()
	i := s.indexOf(collection, id)
	if i < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "no such document")
		return
	}
	doc := s.docs[collection][i]
	for k, v := range patch {
		if k != entitycache.IDField {
			doc[k] = v
		}
	}
	out := doc.Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Store) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, id := r.PathValue("collection"), r.PathValue("id")
	if status := s.record(Request{Endpoint: EndpointDelete, Collection: collection, IDs: []string{id}, RequestID: r.Header.Get("X-Request-Id")}); status != 0 {
		writeError(w, status, "injected failure")
		return
	}

	s.mu.Lock()
	i := s.indexOf(collection, id)
	if i >= 0 {
		s.docs[collection] = slices.Delete(s.docs[collection], i, i+1)
	}
	s.mu.Unlock()

	if i < 0 {
		writeError(w, http.StatusNotFound, "no such document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// filterDocs applies creatorId, search{N}, exclude{N} and extra params.
// The caller holds s.mu; matches are copied.
func filterDocs(docs []entitycache.Entity, params url.Values) []entitycache.Entity {
	out := make([]entitycache.Entity, 0, len(docs))
	for _, d := range docs {
		if matches(d, params) {
			out = append(out, d.Clone())
		}
	}
	return out
}

func matches(d entitycache.Entity, params url.Values) bool {
	for key, values := range params {
		switch {
		case key == query.ParamPage, key == query.ParamLimit, key == query.ParamSort, key == "fields":
		case strings.HasSuffix(key, "fields"):
		case key == query.ParamCreatorID:
			if fmt.Sprint(d["creatorId"]) != values[0] {
				return false
			}
		case groupIndex(key, "search") > 0:
			if !anyMatch(d, values, params[key+"fields"], containsFold) {
				return false
			}
		case groupIndex(key, "exclude") > 0:
			if anyMatch(d, values, params[key+"fields"], equalFold) {
				return false
			}
		default:
			if fmt.Sprint(d[key]) != values[0] {
				return false
			}
		}
	}
	return true
}

// groupIndex returns N for "{prefix}{N}" keys and 0 otherwise.
func groupIndex(key, prefix string) int {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// anyMatch reports whether any value matches any of fields. Without fields
// every field of the document is searched.
func anyMatch(d entitycache.Entity, values, fields []string, match func(field any, value string) bool) bool {
	if len(fields) == 0 {
		fields = d.Fields()
	}
	for _, f := range fields {
		fv, ok := d[f]
		if !ok {
			continue
		}
		for _, v := range values {
			if match(fv, v) {
				return true
			}
		}
	}
	return false
}

func containsFold(field any, value string) bool {
	if list, ok := field.([]any); ok {
		return slices.ContainsFunc(list, func(item any) bool { return containsFold(item, value) })
	}
	return strings.Contains(strings.ToLower(fmt.Sprint(field)), strings.ToLower(value))
}

func equalFold(field any, value string) bool {
	if list, ok := field.([]any); ok {
		return slices.ContainsFunc(list, func(item any) bool { return equalFold(item, value) })
	}
	return strings.EqualFold(fmt.Sprint(field), value)
}

// sortDocs orders docs by "field:direction" entries in priority order.
func sortDocs(docs []entitycache.Entity, options []string) error {
	type key struct {
		field string
		desc  bool
	}
	keys := make([]key, 0, len(options))
	for _, opt := range options {
		field, dir, _ := strings.Cut(opt, ":")
		switch dir {
		case "", query.Asc, "1":
			keys = append(keys, key{field: field})
		case query.Desc, "-1":
			keys = append(keys, key{field: field, desc: true})
		default:
			return fmt.Errorf("bad sort direction %q", dir)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	slices.SortStableFunc(docs, func(a, b entitycache.Entity) int {
		for _, k := range keys {
			c := compareValues(a[k.field], b[k.field])
			if k.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

func compareValues(a, b any) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	if a == nil && b != nil {
		return -1
	}
	if a != nil && b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// project keeps _id plus the requested fields; no fields keeps everything.
func project(doc entitycache.Entity, fields []string) entitycache.Entity {
	if len(fields) == 0 {
		return doc.Clone()
	}
	out := entitycache.Entity{entitycache.IDField: doc.ID()}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
