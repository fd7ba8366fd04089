package loader

import (
	"context"
	"strings"

	"github.com/portending/ScriptFlow/internal/storage"
)

// StorageProvider serves the modules of a project kept in a storage under `<prefix>/`.
type StorageProvider struct {
	storage storage.Storage
	prefix  string
}

// NewStorageProvider creates a provider reading `<prefix>/<path>` keys.
func NewStorageProvider(s storage.Storage, prefix string) *StorageProvider {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &StorageProvider{storage: s, prefix: prefix}
}

func (p *StorageProvider) GetFile(path string) (string, bool, error) {
	return storage.ReadText(p.storage, p.prefix+path)
}

func (p *StorageProvider) FetchFile(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return p.GetFile(path)
}

// ListFiles returns the module paths of the project.
func (p *StorageProvider) ListFiles() ([]string, error) {
	keys, err := p.storage.List(p.prefix)
	if err != nil {
		return nil, err
	}
	files := make([]string, len(keys))
	for i, key := range keys {
		files[i] = strings.TrimPrefix(key, p.prefix)
	}
	return files, nil
}
