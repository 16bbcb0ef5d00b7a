package refcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReturned marks ids the remote store left out of a batch response.
	ErrNotReturned = errors.New("refcache: entity not returned by remote store")
	// ErrEmptyID marks empty ids, which can never name an entity.
	ErrEmptyID = errors.New("refcache: empty entity id")
	// ErrInvalidPage is returned by GetSlice for a non-positive page or limit.
	ErrInvalidPage = errors.New("refcache: page and limit must be positive")
	// ErrInvalidQuery wraps descriptor validation failures.
	ErrInvalidQuery = errors.New("refcache: invalid query")
)

// IndexFetchError reports a failed index lookup. Nothing is memoized for it.
type IndexFetchError struct {
	Collection string
	Query      string
	Err        error
}

func (e *IndexFetchError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("refcache: fetch index %s: %v", e.Collection, e.Err)
	}
	return fmt.Sprintf("refcache: fetch index %s?%s: %v", e.Collection, e.Query, e.Err)
}

func (e *IndexFetchError) Unwrap() error { return e.Err }

// HydrationError reports ids that could not be resolved to entities.
// Hydrate returns it next to the entities it did resolve.
type HydrationError struct {
	Collection string
	Missing    []string
	Err        error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("refcache: hydrate %s: %d unavailable [%s]: %v",
		e.Collection, len(e.Missing), strings.Join(e.Missing, ","), e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }
