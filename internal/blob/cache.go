// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package blob

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached is a read-through cache in front of another Store.
// Misses are not cached, so a blob stored later is picked up.
type Cached struct {
	inner Store
	cache *cache.Cache
}

// NewCached wraps inner with an in-memory cache whose entries expire after ttl.
func NewCached(inner Store, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get returns the cached blob or loads it from the inner store.
func (c *Cached) Get(ctx context.Context, id string) (Blob, error) {
	if v, ok := c.cache.Get(id); ok {
		return v.(Blob), nil
	}
	b, err := c.inner.Get(ctx, id)
	if err != nil {
		return Blob{}, err
	}
	c.cache.Set(id, b, cache.DefaultExpiration)
	return b, nil
}

// Put writes through to the inner store and caches the blob.
func (c *Cached) Put(ctx context.Context, b Blob) error {
	b.DetectMIME()
	if err := c.inner.Put(ctx, b); err != nil {
		return err
	}
	c.cache.Set(b.ID, b, cache.DefaultExpiration)
	return nil
}

// Delete removes the blob from both layers.
func (c *Cached) Delete(ctx context.Context, id string) error {
	c.cache.Delete(id)
	return c.inner.Delete(ctx, id)
}

// Len returns the number of cached entries.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
