package refcache

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

// PaginatedView is one page of fully hydrated documents. Documents[i] is the
// entity for IDs[i].
type PaginatedView struct {
	Page           int                  `json:"page" yaml:"page"`
	Limit          int                  `json:"limit" yaml:"limit"`
	TotalPages     int                  `json:"totalPages" yaml:"totalPages"`
	TotalDocuments int                  `json:"totalDocuments" yaml:"totalDocuments"`
	IDs            []string             `json:"ids" yaml:"ids"`
	Documents      []entitycache.Entity `json:"documents" yaml:"documents"`
}

// Paginator composes index lookups with hydration.
type Paginator struct {
	indexes  *IndexFetcher
	hydrator *Hydrator
	tel      *telemetry
	logger   *slog.Logger
}

// NewPaginator creates a Paginator.
func NewPaginator(indexes *IndexFetcher, hydrator *Hydrator, opts ...Option) *Paginator {
	o := buildOptions(opts)
	return &Paginator{
		indexes:  indexes,
		hydrator: hydrator,
		tel:      newTelemetry(o),
		logger:   o.logger,
	}
}

// GetPage resolves desc to a page of ids, then hydrates them. An index failure
// is returned without hydrating anything; a hydration failure returns no view.
func (p *Paginator) GetPage(ctx context.Context, collection string, desc query.Descriptor, opts ...CallOption) (PaginatedView, error) {
	cfg := buildCallConfig(opts)

	ctx, span := p.tel.start(ctx, "refcache.GetPage", collection)
	defer span.End()

	index, err := p.indexes.FetchIndex(ctx, collection, desc, opts...)
	if err != nil {
		failSpan(span, err)
		return PaginatedView{}, err
	}

	view, err := p.assemble(ctx, collection, index, cfg)
	if err != nil {
		failSpan(span, err)
		return PaginatedView{}, err
	}
	return view, nil
}

// GetSlice paginates a caller-held id list without touching the index memo.
// Pages past the end yield an empty view with the right totals.
func (p *Paginator) GetSlice(ctx context.Context, collection string, ids []string, page, limit int, opts ...CallOption) (PaginatedView, error) {
	if page < 1 || limit < 1 {
		return PaginatedView{}, fmt.Errorf("%w: page=%d limit=%d", ErrInvalidPage, page, limit)
	}
	cfg := buildCallConfig(opts)

	total := len(ids)
	start := total
	if page-1 <= total/limit {
		start = min((page-1)*limit, total)
	}
	end := start + min(limit, total-start)

	index := query.PageIndex{
		Page:           page,
		Limit:          limit,
		TotalPages:     query.TotalPagesFor(total, limit),
		TotalDocuments: total,
		IDs:            append([]string{}, ids[start:end]...),
	}
	return p.assemble(ctx, collection, index, cfg)
}

// GetPages fetches several pages concurrently. Results keep the order of descs;
// the first failure cancels the remaining pages.
func (p *Paginator) GetPages(ctx context.Context, collection string, descs []query.Descriptor, opts ...CallOption) ([]PaginatedView, error) {
	views := make([]PaginatedView, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range descs {
		g.Go(func() error {
			view, err := p.GetPage(gctx, collection, desc, opts...)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (p *Paginator) assemble(ctx context.Context, collection string, index query.PageIndex, cfg callConfig) (PaginatedView, error) {
	hydrate := p.hydrator.Hydrate
	if cfg.force {
		hydrate = p.hydrator.Refresh
	}

	docs, err := hydrate(ctx, collection, index.IDs, cfg.fields...)
	if err != nil {
		return PaginatedView{}, err
	}

	view := PaginatedView{
		Page:           index.Page,
		Limit:          index.Limit,
		TotalPages:     index.TotalPages,
		TotalDocuments: index.TotalDocuments,
		IDs:            index.IDs,
		Documents:      make([]entitycache.Entity, len(index.IDs)),
	}
	var absent []string
	for i, id := range index.IDs {
		doc, ok := docs[id]
		if !ok {
			absent = append(absent, id)
			continue
		}
		view.Documents[i] = doc
	}
	if len(absent) > 0 {
		return PaginatedView{}, &HydrationError{Collection: collection, Missing: absent, Err: ErrNotReturned}
	}

	p.logger.DebugContext(ctx, "page assembled",
		"collection", collection,
		"page", view.Page,
		"documents", len(view.Documents),
	)
	return view, nil
}
