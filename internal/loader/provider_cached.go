package loader

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider keeps the sources read from another provider in memory.
// Missing files and errors are not cached.
type CachedProvider struct {
	provider AsyncProvider
	cache    *ristretto.Cache
	ttl      time.Duration
}

// NewCachedProvider creates a cached provider holding up to maxBytes of sources for ttl.
// A zero ttl keeps the sources until they are evicted.
func NewCachedProvider(provider AsyncProvider, maxBytes int64, ttl time.Duration) (*CachedProvider, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{provider: provider, cache: cache, ttl: ttl}, nil
}

func (p *CachedProvider) FetchFile(ctx context.Context, path string) (string, bool, error) {
	if v, ok := p.cache.Get(path); ok {
		return v.(string), true, nil
	}
	content, ok, err := p.provider.FetchFile(ctx, path)
	if err != nil || !ok {
		return content, ok, err
	}
	if p.cache.SetWithTTL(path, content, int64(len(content))+1, p.ttl) {
		p.cache.Wait()
	}
	return content, true, nil
}

func (p *CachedProvider) GetFile(path string) (string, bool, error) {
	return p.FetchFile(context.Background(), path)
}

func (p *CachedProvider) ListFiles() ([]string, error) {
	if l, ok := p.provider.(Lister); ok {
		return l.ListFiles()
	}
	return nil, nil
}

// Invalidate drops the cached source of the path.
func (p *CachedProvider) Invalidate(path string) {
	p.cache.Del(path)
	p.cache.Wait()
}

// Close stops the cache goroutines.
func (p *CachedProvider) Close() {
	p.cache.Close()
}
