package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goliatone/go-refcache/pkg/di"
)

const envPrefix = "REFCACHE"

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"base-url":   "remote.base_url",
	"timeout":    "remote.timeout",
	"rate-limit": "remote.rate_limit",
	"format":     "format",
	"verbose":    "verbose",
}

// bind layers the config file, the environment and the command line onto
// the cli's viper instance.
func (c *cli) bind(cmd *cobra.Command) error {
	v := c.v

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("refcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.refcache")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, di.DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		// An explicit path must exist; discovery may come up empty.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	if f := cmd.Flags().Lookup("no-coalesce"); f != nil && f.Changed {
		v.Set("coalesce", f.Value.String() != "true")
	}

	switch format := v.GetString("format"); format {
	case formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown format %q, want %s or %s", format, formatJSON, formatYAML)
	}
	return nil
}

// setDefaults registers every config key so environment variables can
// reach keys missing from the config file.
func setDefaults(v *viper.Viper, d di.Config) {
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.rate_limit", d.Remote.RateLimit)
	v.SetDefault("remote.burst", d.Remote.Burst)
	v.SetDefault("remote.user_agent", d.Remote.UserAgent)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.num_shards", d.Cache.NumShards)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.eviction_percentage", d.Cache.EvictionPercentage)
	v.SetDefault("cache.eviction_interval", d.Cache.EvictionInterval)
	v.SetDefault("coalesce", d.Coalesce)
	v.SetDefault("format", formatJSON)
	v.SetDefault("verbose", false)
}

// config decodes the layered settings into a validated di.Config.
func (c *cli) config() (di.Config, error) {
	cfg := di.DefaultConfig()
	if err := c.v.Unmarshal(&cfg); err != nil {
		return di.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return di.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
