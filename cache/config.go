package cache

import (
	"time"

	"github.com/goliatone/go-refcache/internal/cacheinfra"
)

// Config exposes the index memo configuration for consumers of the cache package.
type Config struct {
	Capacity           int           `mapstructure:"capacity" yaml:"capacity"`
	NumShards          int           `mapstructure:"num_shards" yaml:"num_shards"`
	TTL                time.Duration `mapstructure:"ttl" yaml:"ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage" yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval" yaml:"eviction_interval"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewCacheService constructs the default cache service implementation using the provided configuration.
func NewCacheService(cfg Config) (CacheService, error) {
	svc, err := cacheinfra.NewSturdycService(cfg.toInternal())
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
