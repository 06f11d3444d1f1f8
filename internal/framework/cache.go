package framework

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of distinct monikers remembered by a
// CachingProvider.
const DefaultCacheSize = 512

type cached struct {
	tf TargetFramework
	ok bool
}

// CachingProvider memoizes moniker lookups. Package rule batches repeat the
// same target prefix on every resolved item, so lookups are hot.
type CachingProvider struct {
	inner Provider
	cache *lru.Cache[string, cached]
}

// NewCachingProvider wraps inner (Parse when nil) with an LRU cache of the
// given size (DefaultCacheSize when size <= 0).
func NewCachingProvider(inner Provider, size int) (*CachingProvider, error) {
	if inner == nil {
		inner = ParserProvider{}
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, cache: c}, nil
}

// GetTargetFramework implements Provider. Negative results are cached too.
func (p *CachingProvider) GetTargetFramework(moniker string) (TargetFramework, bool) {
	key := strings.ToLower(strings.TrimSpace(moniker))
	if v, ok := p.cache.Get(key); ok {
		return v.tf, v.ok
	}
	tf, ok := p.inner.GetTargetFramework(moniker)
	p.cache.Add(key, cached{tf: tf, ok: ok})
	return tf, ok
}

// Len returns the number of cached monikers.
func (p *CachingProvider) Len() int {
	return p.cache.Len()
}
