package di

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-refcache/cache"
	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/refcache"
	"github.com/goliatone/go-refcache/remote"
)

// Config aggregates everything the container needs to wire a session.
type Config struct {
	Remote remote.Config `mapstructure:"remote" yaml:"remote"`
	Cache  cache.Config  `mapstructure:"cache" yaml:"cache"`

	// Coalesce lets overlapping hydrations share in-flight batches.
	Coalesce bool `mapstructure:"coalesce" yaml:"coalesce"`
}

// DefaultConfig returns defaults for everything but Remote.BaseURL.
func DefaultConfig() Config {
	return Config{
		Remote:   remote.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Coalesce: true,
	}
}

// Validate checks both nested configurations.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Remote),
		validation.Field(&c.Cache),
	)
}

// Option customizes container wiring beyond Config.
type Option func(*containerOptions)

type containerOptions struct {
	logger     *slog.Logger
	meter      metric.MeterProvider
	tracer     trace.TracerProvider
	httpClient *http.Client
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithMeterProvider sets the metric provider shared by every component.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *containerOptions) { o.meter = mp }
}

// WithTracerProvider sets the tracer provider shared by every component.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *containerOptions) { o.tracer = tp }
}

// WithHTTPClient replaces the http.Client used to reach the remote store.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *containerOptions) { o.httpClient = hc }
}

// Container owns one session's worth of caches and the components reading
// through them. Every accessor returns the same instance for the container's
// lifetime.
type Container struct {
	config        Config
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	client        *remote.Client
	entities      *entitycache.Cache
	indexes       *refcache.IndexFetcher
	hydrator      *refcache.Hydrator
	paginator     *refcache.Paginator
	invalidator   *refcache.Invalidator
	mutator       *refcache.Mutator
}

// NewContainer validates config and wires the remote client, the index memo,
// the entity cache and the refcache components on top of them.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o containerOptions
	for _, opt := range opts {
		opt(&o)
	}

	var remoteOpts []remote.Option
	var refOpts []refcache.Option
	if o.logger != nil {
		remoteOpts = append(remoteOpts, remote.WithLogger(o.logger))
		refOpts = append(refOpts, refcache.WithLogger(o.logger))
	}
	if o.httpClient != nil {
		remoteOpts = append(remoteOpts, remote.WithHTTPClient(o.httpClient))
	}
	if o.meter != nil {
		refOpts = append(refOpts, refcache.WithMeterProvider(o.meter))
	}
	if o.tracer != nil {
		refOpts = append(refOpts, refcache.WithTracerProvider(o.tracer))
	}
	refOpts = append(refOpts, refcache.WithCoalescing(config.Coalesce))

	client, err := remote.New(config.Remote, remoteOpts...)
	if err != nil {
		return nil, err
	}

	cacheService, err := cache.NewCacheService(config.Cache)
	if err != nil {
		return nil, err
	}

	keySerializer := cache.NewDefaultKeySerializer()
	entities := entitycache.New()

	indexes := refcache.NewIndexFetcher(client, cacheService, keySerializer, refOpts...)
	hydrator := refcache.NewHydrator(entities, client, refOpts...)
	invalidator := refcache.NewInvalidator(entities, indexes, refOpts...)

	return &Container{
		config:        config,
		cacheService:  cacheService,
		keySerializer: keySerializer,
		client:        client,
		entities:      entities,
		indexes:       indexes,
		hydrator:      hydrator,
		paginator:     refcache.NewPaginator(indexes, hydrator, refOpts...),
		invalidator:   invalidator,
		mutator:       refcache.NewMutator(client, invalidator),
	}, nil
}

// NewContainerWithDefaults wires a container for baseURL using default configuration.
func NewContainerWithDefaults(baseURL string, opts ...Option) (*Container, error) {
	cfg := DefaultConfig()
	cfg.Remote.BaseURL = baseURL
	return NewContainer(cfg, opts...)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() Config { return c.config }

// CacheService returns the index memo.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// KeySerializer returns the serializer used for memo keys.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Client returns the remote store client.
func (c *Container) Client() *remote.Client { return c.client }

// Entities returns the session's entity cache.
func (c *Container) Entities() *entitycache.Cache { return c.entities }

func (c *Container) Indexes() *refcache.IndexFetcher    { return c.indexes }
func (c *Container) Hydrator() *refcache.Hydrator       { return c.hydrator }
func (c *Container) Paginator() *refcache.Paginator     { return c.paginator }
func (c *Container) Invalidator() *refcache.Invalidator { return c.invalidator }
func (c *Container) Mutator() *refcache.Mutator         { return c.mutator }

// NewCollection returns a typed handle on a collection. An empty name is
// derived from T.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCollection[Course](container, "")
func NewCollection[T any](container *Container, name string) *refcache.Collection[T] {
	return refcache.NewCollection[T](name, container.paginator, container.hydrator)
}
