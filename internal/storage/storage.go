package storage

import (
	"errors"
	"io"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidKey is returned for empty keys and keys escaping the storage root.
	ErrInvalidKey = errors.New("invalid key")
)

// Stat describes a stored file.
type Stat interface {
	Size() int64
	ModTime() time.Time
}

// Storage stores project files by slash separated keys.
type Storage interface {
	Stat(key string) (Stat, error)
	Get(key string) (io.ReadCloser, Stat, error)
	List(prefix string) ([]string, error)
	Put(key string, content io.Reader) error
	Delete(key string) error
	DeleteAll(prefix string) ([]string, error)
}

// StorageOptions configures a storage.
type StorageOptions struct {
	// Type is `fs` or `s3`.
	Type string `json:"type"`
	// Endpoint is the root directory of the fs storage, or the `https://host/bucket` url of the s3 storage.
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey"`
	// CacheDir keeps a local copy of the files read from a remote storage.
	CacheDir string `json:"cacheDir"`
}

// New creates a storage by the options.
func New(options *StorageOptions) (Storage, error) {
	switch options.Type {
	case "fs", "":
		return NewFSStorage(options)
	case "s3":
		remote, err := NewS3Storage(options)
		if err != nil {
			return nil, err
		}
		if options.CacheDir == "" {
			return remote, nil
		}
		cache, err := NewFSStorage(&StorageOptions{Type: "fs", Endpoint: options.CacheDir})
		if err != nil {
			return nil, err
		}
		return NewTieredStorage(cache, remote), nil
	default:
		return nil, errors.New("unsupported storage type: " + options.Type)
	}
}

// CleanKey normalizes the key, keys with `..` segments are rejected.
func CleanKey(key string) (string, error) {
	segments := strings.Split(strings.ReplaceAll(key, "\\", "/"), "/")
	n := 0
	for _, s := range segments {
		switch s {
		case "", ".":
		case "..":
			return "", ErrInvalidKey
		default:
			segments[n] = s
			n++
		}
	}
	if n == 0 {
		return "", ErrInvalidKey
	}
	return strings.Join(segments[:n], "/"), nil
}

// cleanPrefix normalizes a list prefix, an empty prefix lists everything.
func cleanPrefix(prefix string) (string, error) {
	if strings.Trim(prefix, "/.") == "" {
		return "", nil
	}
	key, err := CleanKey(prefix)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(prefix, "/") {
		key += "/"
	}
	return key, nil
}

// ReadText reads the file content as a string, a missing key returns `ok == false`.
func ReadText(s Storage, key string) (text string, ok bool, err error) {
	r, _, err := s.Get(key)
	if err != nil {
		if err == ErrNotFound || err == ErrInvalidKey {
			return "", false, nil
		}
		return "", false, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
