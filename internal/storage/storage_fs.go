package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ije/gox/crypto/rand"
)

// NewFSStorage creates a storage that keeps the files in the `Endpoint` directory.
func NewFSStorage(options *StorageOptions) (Storage, error) {
	if options.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	root, err := filepath.Abs(options.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(root); err != nil {
		return nil, err
	}
	return &fsStorage{root: root}, nil
}

type fsStorage struct {
	root string
}

// filename returns the file path of the key inside the root directory.
func (s *fsStorage) filename(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	filename := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(filename, s.root+string(os.PathSeparator)) {
		return "", ErrInvalidKey
	}
	return filename, nil
}

func (s *fsStorage) Stat(key string) (Stat, error) {
	filename, err := s.filename(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(filename)
	if err != nil {
		return nil, notFound(err)
	}
	if fi.IsDir() {
		return nil, ErrNotFound
	}
	return fi, nil
}

func (s *fsStorage) Get(key string) (io.ReadCloser, Stat, error) {
	filename, err := s.filename(key)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, notFound(err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if fi.IsDir() {
		file.Close()
		return nil, nil, ErrNotFound
	}
	return file, fi, nil
}

// List returns the keys starting with the prefix in lexical order.
func (s *fsStorage) List(prefix string) ([]string, error) {
	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}
	dir := s.root
	if i := strings.LastIndexByte(prefix, '/'); i > 0 {
		dir = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}
	keys := []string{}
	err = filepath.WalkDir(dir, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, filename)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Put writes the content to a temporary file first, readers never see a partial file.
func (s *fsStorage) Put(key string, content io.Reader) error {
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filename)
	if err := ensureDir(dir); err != nil {
		return err
	}
	tmp := filepath.Join(dir, ".tmp-"+rand.Hex.String(8))
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = io.Copy(file, content)
	if e := file.Close(); err == nil {
		err = e
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}

func (s *fsStorage) Delete(key string) error {
	filename, err := s.filename(key)
	if err != nil {
		return err
	}
	return notFound(os.Remove(filename))
}

func (s *fsStorage) DeleteAll(prefix string) ([]string, error) {
	if p, _ := cleanPrefix(prefix); p == "" {
		return nil, errors.New("prefix is required")
	}
	keys, err := s.List(prefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	s.removeEmptyDirs(keys)
	return keys, nil
}

// removeEmptyDirs removes the directories left empty by the deleted keys.
func (s *fsStorage) removeEmptyDirs(keys []string) {
	for _, key := range keys {
		for dir := path.Dir(key); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if os.Remove(filepath.Join(s.root, filepath.FromSlash(dir))) != nil {
				break
			}
		}
	}
}

func notFound(err error) error {
	if err != nil && (os.IsNotExist(err) || strings.HasSuffix(err.Error(), "not a directory")) {
		return ErrNotFound
	}
	return err
}

// ensureDir ensures the given directory exists.
func ensureDir(dir string) error {
	_, err := os.Lstat(dir)
	if err != nil && os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return err
}
