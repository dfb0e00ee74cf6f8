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

// Package catalog caches the provider's model listing in redis.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/dial-relay/internal/dial"
	"github.com/llm-d-incubation/dial-relay/internal/metrics"
	"github.com/llm-d-incubation/dial-relay/internal/util/logging"
)

const (
	modelsKey = "catalog:models"
	flightKey = "models"

	// upper bound for a shared refresh that no caller can cancel
	flightTimeout = 2 * time.Minute
)

// Lister is the part of dial.Client the cache fronts.
type Lister interface {
	ListModels(ctx context.Context) ([]string, *dial.ClientError)
}

// Cache serves model listings from redis and refreshes them from the provider on a miss.
// Concurrent misses share one provider call. The shared call is detached from the
// context of the caller that started it, and each caller stops waiting when its own
// context is done. Only successful listings are stored.
// A nil redis client turns the cache into a pass-through that still collapses concurrent calls.
type Cache struct {
	lister Lister
	rds    *gredis.Client
	key    string
	ttl    time.Duration
	group  singleflight.Group
}

func NewCache(lister Lister, rds *gredis.Client, keyPrefix string, ttl time.Duration) *Cache {
	return &Cache{
		lister: lister,
		rds:    rds,
		key:    keyPrefix + modelsKey,
		ttl:    ttl,
	}
}

// ListModels has the same contract as dial.Client.ListModels.
// Redis failures are logged and the provider is asked directly.
func (c *Cache) ListModels(ctx context.Context) ([]string, *dial.ClientError) {
	logger := klog.FromContext(ctx)

	if models, ok := c.lookup(ctx); ok {
		metrics.RecordCatalogRequest(metrics.SourceCache)
		logger.V(logging.DEBUG).Info("Model listing served from cache", "count", len(models))
		return models, nil
	}

	flight := c.group.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()
		models, cerr := c.lister.ListModels(fctx)
		if cerr != nil {
			return nil, cerr
		}
		c.store(fctx, models)
		return models, nil
	})

	var res singleflight.Result
	select {
	case res = <-flight:
	case <-ctx.Done():
		metrics.RecordCatalogRequest(metrics.SourceError)
		logger.V(logging.INFO).Info("Stopped waiting for model listing", "reason", ctx.Err())
		return nil, contextError(ctx)
	}

	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		metrics.RecordCatalogRequest(metrics.SourceError)
		var cerr *dial.ClientError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, &dial.ClientError{Kind: dial.KindCatalog, Message: err.Error(), RawError: err}
	}

	metrics.RecordCatalogRequest(metrics.SourceProvider)
	models := v.([]string)
	if shared {
		// callers must not share the backing array
		models = append([]string(nil), models...)
	}
	return models, nil
}

func contextError(ctx context.Context) *dial.ClientError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &dial.ClientError{Kind: dial.KindTransport, Timeout: true, Message: "request timeout", RawError: ctx.Err()}
	}
	return &dial.ClientError{Kind: dial.KindTransport, Message: "request cancelled", RawError: ctx.Err()}
}

// Invalidate drops the cached listing.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rds == nil {
		return nil
	}
	return c.rds.Del(ctx, c.key).Err()
}

func (c *Cache) lookup(ctx context.Context) ([]string, bool) {
	if c.rds == nil || c.ttl <= 0 {
		return nil, false
	}
	logger := klog.FromContext(ctx)

	data, err := c.rds.Get(ctx, c.key).Bytes()
	if errors.Is(err, gredis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Error(err, "Catalog cache read failed, asking provider", "key", c.key)
		return nil, false
	}

	var models []string
	if err := json.Unmarshal(data, &models); err != nil {
		logger.Error(err, "Catalog cache entry is corrupt, asking provider", "key", c.key)
		return nil, false
	}
	return models, true
}

func (c *Cache) store(ctx context.Context, models []string) {
	if c.rds == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(models)
	if err != nil {
		klog.FromContext(ctx).Error(err, "Failed to encode model listing")
		return
	}
	if err := c.rds.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		klog.FromContext(ctx).Error(err, "Catalog cache write failed", "key", c.key)
	}
}
