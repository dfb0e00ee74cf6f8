/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package catalog

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d-incubation/dial-relay/internal/dial"
)

type fakeLister struct {
	calls   atomic.Int32
	models  []string
	err     *dial.ClientError
	release chan struct{}
}

func (f *fakeLister) ListModels(ctx context.Context) ([]string, *dial.ClientError) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.models...), nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *gredis.Client) {
	t.Helper()
	m := miniredis.RunT(t)
	rds := gredis.NewClient(&gredis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rds.Close() })
	return m, rds
}

func TestCache(t *testing.T) {
	t.Run("Hit", testCacheHit)
	t.Run("Expiry", testCacheExpiry)
	t.Run("Failures", testCacheFailures)
	t.Run("RedisDegraded", testRedisDegraded)
	t.Run("PassThrough", testPassThrough)
	t.Run("Singleflight", testSingleflight)
	t.Run("CallerCancellation", testCallerCancellation)
}

func testCacheHit(t *testing.T) {
	m, rds := newRedis(t)
	lister := &fakeLister{models: []string{"gpt-4o", "o1-mini-2024-09-12"}}
	cache := NewCache(lister, rds, "test:", time.Minute)

	first, err := cache.ListModels(context.Background())
	require.Nil(t, err)
	second, err := cache.ListModels(context.Background())
	require.Nil(t, err)

	assert.Equal(t, []string{"gpt-4o", "o1-mini-2024-09-12"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), lister.calls.Load())
	assert.True(t, m.Exists("test:catalog:models"))
	assert.Equal(t, time.Minute, m.TTL("test:catalog:models"))

	require.NoError(t, cache.Invalidate(context.Background()))
	assert.False(t, m.Exists("test:catalog:models"))
	_, err = cache.ListModels(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(2), lister.calls.Load())
}

func testCacheExpiry(t *testing.T) {
	m, rds := newRedis(t)
	lister := &fakeLister{models: []string{"gpt-4o"}}
	cache := NewCache(lister, rds, "test:", 30*time.Second)

	_, err := cache.ListModels(context.Background())
	require.Nil(t, err)
	m.FastForward(31 * time.Second)
	_, err = cache.ListModels(context.Background())
	require.Nil(t, err)

	assert.Equal(t, int32(2), lister.calls.Load())
}

func testCacheFailures(t *testing.T) {
	t.Run("should not cache a failed listing", func(t *testing.T) {
		m, rds := newRedis(t)
		lister := &fakeLister{err: &dial.ClientError{Kind: dial.KindCatalog, HTTPStatus: http.StatusForbidden, Message: "forbidden"}}
		cache := NewCache(lister, rds, "test:", time.Minute)

		models, err := cache.ListModels(context.Background())
		assert.Nil(t, models)
		require.NotNil(t, err)
		assert.Equal(t, dial.KindCatalog, err.Kind)
		assert.Equal(t, http.StatusForbidden, err.HTTPStatus)
		assert.False(t, m.Exists("test:catalog:models"))

		_, _ = cache.ListModels(context.Background())
		assert.Equal(t, int32(2), lister.calls.Load())
	})

	t.Run("should pass transport errors through unchanged", func(t *testing.T) {
		_, rds := newRedis(t)
		lister := &fakeLister{err: &dial.ClientError{Kind: dial.KindTransport, Timeout: true, Message: "request timeout"}}
		cache := NewCache(lister, rds, "test:", time.Minute)

		_, err := cache.ListModels(context.Background())
		require.NotNil(t, err)
		assert.Equal(t, dial.KindTransport, err.Kind)
		assert.True(t, err.Timeout)
	})

	t.Run("should ignore a corrupt cache entry", func(t *testing.T) {
		m, rds := newRedis(t)
		require.NoError(t, m.Set("test:catalog:models", "{not json"))
		lister := &fakeLister{models: []string{"gpt-4o"}}
		cache := NewCache(lister, rds, "test:", time.Minute)

		models, err := cache.ListModels(context.Background())
		require.Nil(t, err)
		assert.Equal(t, []string{"gpt-4o"}, models)
		assert.Equal(t, int32(1), lister.calls.Load())
	})
}

func testRedisDegraded(t *testing.T) {
	m, rds := newRedis(t)
	m.SetError("LOADING redis is loading the dataset in memory")
	lister := &fakeLister{models: []string{"gpt-4o"}}
	cache := NewCache(lister, rds, "test:", time.Minute)

	models, err := cache.ListModels(context.Background())
	require.Nil(t, err)
	assert.Equal(t, []string{"gpt-4o"}, models)

	m.SetError("")
	_, err = cache.ListModels(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(2), lister.calls.Load(), "nothing was stored while redis failed")
}

func testPassThrough(t *testing.T) {
	lister := &fakeLister{models: []string{"gpt-4o"}}
	cache := NewCache(lister, nil, "test:", time.Minute)

	for i := 0; i < 3; i++ {
		models, err := cache.ListModels(context.Background())
		require.Nil(t, err)
		assert.Equal(t, []string{"gpt-4o"}, models)
	}
	assert.Equal(t, int32(3), lister.calls.Load())
	assert.NoError(t, cache.Invalidate(context.Background()))
}

func testSingleflight(t *testing.T) {
	_, rds := newRedis(t)
	lister := &fakeLister{models: []string{"gpt-4o", "gemini-2.0-flash"}, release: make(chan struct{})}
	cache := NewCache(lister, rds, "test:", time.Minute)

	const callers = 10
	results := make([][]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			models, err := cache.ListModels(context.Background())
			if err == nil {
				results[i] = models
			}
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	assert.Equal(t, int32(1), lister.calls.Load())
	for i := 0; i < callers; i++ {
		assert.Equal(t, []string{"gpt-4o", "gemini-2.0-flash"}, results[i])
	}

	// shared results must not alias each other
	results[0][0] = "mutated"
	for i := 1; i < callers; i++ {
		assert.Equal(t, "gpt-4o", results[i][0])
	}
}

func testCallerCancellation(t *testing.T) {
	t.Run("should serve followers when the first caller cancels", func(t *testing.T) {
		m, rds := newRedis(t)
		lister := &fakeLister{models: []string{"gpt-4o"}, release: make(chan struct{})}
		cache := NewCache(lister, rds, "test:", time.Minute)

		leaderCtx, cancelLeader := context.WithCancel(context.Background())
		leaderErr := make(chan *dial.ClientError, 1)
		go func() {
			_, err := cache.ListModels(leaderCtx)
			leaderErr <- err
		}()
		require.Eventually(t, func() bool { return lister.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		type result struct {
			models []string
			err    *dial.ClientError
		}
		follower := make(chan result, 1)
		go func() {
			models, err := cache.ListModels(context.Background())
			follower <- result{models, err}
		}()
		time.Sleep(50 * time.Millisecond)

		cancelLeader()
		select {
		case err := <-leaderErr:
			require.NotNil(t, err)
			assert.Equal(t, dial.KindTransport, err.Kind)
			assert.False(t, err.Timeout)
		case <-time.After(time.Second):
			t.Fatal("cancelled caller kept waiting")
		}

		close(lister.release)
		got := <-follower
		require.Nil(t, got.err)
		assert.Equal(t, []string{"gpt-4o"}, got.models)
		assert.Equal(t, int32(1), lister.calls.Load())
		assert.True(t, m.Exists("test:catalog:models"))
	})

	t.Run("should report a caller deadline as a timeout", func(t *testing.T) {
		lister := &fakeLister{models: []string{"gpt-4o"}, release: make(chan struct{})}
		defer close(lister.release)
		cache := NewCache(lister, nil, "test:", time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		models, err := cache.ListModels(ctx)
		assert.Nil(t, models)
		require.NotNil(t, err)
		assert.Equal(t, dial.KindTransport, err.Kind)
		assert.True(t, err.Timeout)
	})
}
