package loader

import (
	"context"
	"sort"
	"sync"
)

// FileProvider reads module sources for the eager graph loader.
// A missing file is reported as `ok == false` without error, an empty file is `("", true, nil)`.
type FileProvider interface {
	GetFile(path string) (content string, ok bool, err error)
}

// AsyncProvider reads module sources for the lazy loader.
type AsyncProvider interface {
	FetchFile(ctx context.Context, path string) (content string, ok bool, err error)
}

// Lister is implemented by providers that can enumerate their files,
// it enables `require.context` lookups.
type Lister interface {
	ListFiles() ([]string, error)
}

// MapProvider serves modules from memory.
type MapProvider struct {
	lock  sync.RWMutex
	files map[string]string
}

// NewMapProvider creates a provider of the given files keyed by module path.
func NewMapProvider(files map[string]string) *MapProvider {
	p := &MapProvider{files: make(map[string]string, len(files))}
	for k, v := range files {
		p.files[k] = v
	}
	return p
}

func (p *MapProvider) GetFile(path string) (string, bool, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	content, ok := p.files[path]
	return content, ok, nil
}

func (p *MapProvider) FetchFile(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return p.GetFile(path)
}

func (p *MapProvider) ListFiles() ([]string, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	paths := make([]string, 0, len(p.files))
	for k := range p.files {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	return paths, nil
}

// Set adds or replaces a file.
func (p *MapProvider) Set(path string, content string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.files[path] = content
}

// Async adapts a FileProvider to the AsyncProvider interface.
func Async(p FileProvider) AsyncProvider {
	if ap, ok := p.(AsyncProvider); ok {
		return ap
	}
	return &asyncProvider{p}
}

type asyncProvider struct {
	FileProvider
}

func (p *asyncProvider) FetchFile(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return p.GetFile(path)
}

func (p *asyncProvider) ListFiles() ([]string, error) {
	if l, ok := p.FileProvider.(Lister); ok {
		return l.ListFiles()
	}
	return nil, nil
}
