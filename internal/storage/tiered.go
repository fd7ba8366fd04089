package storage

import (
	"bytes"
	"io"

	"github.com/ije/gox/sync"
)

// NewTieredStorage creates a storage that reads through a local cache storage.
// Files read from the remote storage are copied to the cache, writes go to both.
func NewTieredStorage(cache Storage, remote Storage) Storage {
	return &tieredStorage{cache: cache, remote: remote}
}

type tieredStorage struct {
	cache    Storage
	remote   Storage
	fillLock sync.KeyedMutex
}

func (t *tieredStorage) Stat(key string) (Stat, error) {
	stat, err := t.cache.Stat(key)
	if err == ErrNotFound {
		stat, err = t.remote.Stat(key)
	}
	return stat, err
}

func (t *tieredStorage) Get(key string) (io.ReadCloser, Stat, error) {
	content, stat, err := t.cache.Get(key)
	if err != ErrNotFound {
		return content, stat, err
	}

	unlock := t.fillLock.Lock(key)
	defer unlock()

	// filled by another reader while waiting
	content, stat, err = t.cache.Get(key)
	if err != ErrNotFound {
		return content, stat, err
	}
	content, stat, err = t.remote.Get(key)
	if err != nil {
		return nil, nil, err
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, nil, err
	}
	// a failed cache write only costs another remote read
	t.cache.Put(key, bytes.NewReader(data))
	return io.NopCloser(bytes.NewReader(data)), stat, nil
}

func (t *tieredStorage) List(prefix string) ([]string, error) {
	return t.remote.List(prefix)
}

func (t *tieredStorage) Put(key string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	if err := t.remote.Put(key, bytes.NewReader(data)); err != nil {
		return err
	}
	unlock := t.fillLock.Lock(key)
	defer unlock()
	return t.cache.Put(key, bytes.NewReader(data))
}

func (t *tieredStorage) Delete(key string) error {
	err := t.remote.Delete(key)
	if e := t.cache.Delete(key); e != nil && e != ErrNotFound && err == nil {
		err = e
	}
	return err
}

func (t *tieredStorage) DeleteAll(prefix string) ([]string, error) {
	t.cache.DeleteAll(prefix)
	return t.remote.DeleteAll(prefix)
}
