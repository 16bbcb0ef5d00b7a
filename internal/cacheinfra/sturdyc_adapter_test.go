package cacheinfra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5000, cfg.Capacity)
	assert.Equal(t, 64, cfg.NumShards)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
	assert.Equal(t, 10, cfg.EvictionPercentage)
	assert.Zero(t, cfg.EvictionInterval)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "zero capacity", mutate: func(c *Config) { c.Capacity = 0 }, wantKey: "Capacity"},
		{name: "negative shards", mutate: func(c *Config) { c.NumShards = -1 }, wantKey: "NumShards"},
		{name: "zero TTL", mutate: func(c *Config) { c.TTL = 0 }, wantKey: "TTL"},
		{name: "eviction percentage too low", mutate: func(c *Config) { c.EvictionPercentage = 0 }, wantKey: "EvictionPercentage"},
		{name: "eviction percentage too high", mutate: func(c *Config) { c.EvictionPercentage = 101 }, wantKey: "EvictionPercentage"},
		{name: "negative eviction interval", mutate: func(c *Config) { c.EvictionInterval = -time.Second }, wantKey: "EvictionInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantKey == "" {
				assert.NoError(t, err)
				return
			}

			var verrs validation.Errors
			require.True(t, errors.As(err, &verrs), "expected validation.Errors, got %v", err)
			assert.Contains(t, verrs, tt.wantKey)
		})
	}
}

func TestNewSturdycService_InvalidConfig(t *testing.T) {
	svc, err := NewSturdycService(Config{})
	assert.Error(t, err)
	assert.Nil(t, svc)
}

func newTestService(t *testing.T) *SturdycService {
	t.Helper()
	svc, err := NewSturdycService(DefaultConfig())
	require.NoError(t, err)
	return svc
}

func TestSturdycService_GetOrFetchMemoizes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "page-1", nil
	}

	for i := 0; i < 3; i++ {
		got, err := svc.GetOrFetch(ctx, "index::course::abc", fetch)
		require.NoError(t, err)
		assert.Equal(t, "page-1", got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSturdycService_ErrorsAreNotCached(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var calls int32
	fetch := func(context.Context) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	_, err := svc.GetOrFetch(ctx, "k", fetch)
	assert.ErrorIs(t, err, boom)

	got, err := svc.GetOrFetch(ctx, "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSturdycService_NilFetchFn(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.GetOrFetch(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrNilFetchFn)
}

func TestSturdycService_NilResults(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		got, err := svc.GetOrFetch(ctx, "nil", fetch)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a nil result is memoized like any other")

	require.NoError(t, svc.Set(ctx, "set-nil", nil))
	got, err := svc.GetOrFetch(ctx, "set-nil", func(context.Context) (any, error) {
		t.Error("fetch must not run after Set")
		return "x", nil
	})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSturdycService_SetOverwrites(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrFetch(ctx, "k", func(context.Context) (any, error) { return "old", nil })
	require.NoError(t, err)
	require.NoError(t, svc.Set(ctx, "k", "new"))

	got, err := svc.GetOrFetch(ctx, "k", func(context.Context) (any, error) {
		t.Error("fetch must not run after Set")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestSturdycService_DeleteByPrefix(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	keys := []string{"index::course::a", "index::course::b", "index::user::a"}
	for _, k := range keys {
		require.NoError(t, svc.Set(ctx, k, k))
	}

	require.NoError(t, svc.DeleteByPrefix(ctx, "index::course::"))
	assert.Equal(t, 1, svc.Size())

	var refetched int32
	_, err := svc.GetOrFetch(ctx, "index::course::a", func(context.Context) (any, error) {
		atomic.AddInt32(&refetched, 1)
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), refetched)
}

func TestSturdycService_InvalidateKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, "a", 1))
	require.NoError(t, svc.Set(ctx, "b", 2))
	require.NoError(t, svc.Set(ctx, "c", 3))

	require.NoError(t, svc.InvalidateKeys(ctx, []string{"a", "c", "missing"}))
	assert.Equal(t, 1, svc.Size())
}

func TestSturdycService_ConcurrentMissesShareFetch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	release := make(chan struct{})
	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := svc.GetOrFetch(ctx, "shared-key", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give every goroutine time to park on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}
