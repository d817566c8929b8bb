// Package cache keeps generated content in memory so the same sprite or banner is
// never paid for twice. It is not the source of truth: a miss just means generating again.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Asset is one piece of generated content.
type Asset struct {
	Key       string    `json:"key"`    // what was asked for, e.g. "sprite:Tony"
	Handle    string    `json:"handle"` // what the simulation shows
	Style     string    `json:"style"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetCache is a bounded LRU of assets, addressable by request key and by handle.
type AssetCache struct {
	byKey    *lru.Cache[string, Asset]
	byHandle *lru.Cache[string, string]
}

// NewAssetCache creates a cache holding at most size assets.
func NewAssetCache(size int) (*AssetCache, error) {
	if size <= 0 {
		size = 256
	}
	byHandle, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	byKey, err := lru.NewWithEvict[string, Asset](size, func(_ string, a Asset) {
		byHandle.Remove(a.Handle)
	})
	if err != nil {
		return nil, err
	}
	return &AssetCache{byKey: byKey, byHandle: byHandle}, nil
}

// Get looks an asset up by request key.
func (c *AssetCache) Get(key string) (Asset, bool) {
	return c.byKey.Get(key)
}

// Put stores a, replacing any asset with the same key.
func (c *AssetCache) Put(a Asset) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if old, ok := c.byKey.Peek(a.Key); ok && old.Handle != a.Handle {
		c.byHandle.Remove(old.Handle)
	}
	c.byKey.Add(a.Key, a)
	c.byHandle.Add(a.Handle, a.Key)
}

// ByHandle resolves a handle shown in a snapshot back to its content.
func (c *AssetCache) ByHandle(handle string) (Asset, bool) {
	key, ok := c.byHandle.Get(handle)
	if !ok {
		return Asset{}, false
	}
	return c.byKey.Peek(key)
}

// Len reports how many assets are cached.
func (c *AssetCache) Len() int { return c.byKey.Len() }
