package server

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ije/gox/log"
	syncx "github.com/ije/gox/sync"
	"github.com/portending/ScriptFlow/internal/loader"
	"github.com/portending/ScriptFlow/internal/project"
	"github.com/portending/ScriptFlow/internal/storage"
)

// ErrInvalidProjectID is returned for project ids that are not a single path segment.
var ErrInvalidProjectID = errors.New("invalid project id")

// Projects manages the projects kept in the storage under `projects/<id>/`
// and bundles them.
type Projects struct {
	storage   storage.Storage
	db        *BundleDB
	logger    *log.Logger
	userAgent string
	buildLock syncx.KeyedMutex
}

func NewProjects(s storage.Storage, db *BundleDB, userAgent string, logger *log.Logger) *Projects {
	return &Projects{storage: s, db: db, userAgent: userAgent, logger: logger}
}

// Provider returns the file provider of the project.
func (p *Projects) Provider(id string) (*loader.StorageProvider, error) {
	if !isValidProjectID(id) {
		return nil, ErrInvalidProjectID
	}
	return loader.NewStorageProvider(p.storage, "projects/"+id), nil
}

func (p *Projects) ListFiles(id string) ([]string, error) {
	provider, err := p.Provider(id)
	if err != nil {
		return nil, err
	}
	return provider.ListFiles()
}

func (p *Projects) GetFile(id string, filename string) (io.ReadCloser, storage.Stat, error) {
	key, err := fileKey(id, filename)
	if err != nil {
		return nil, nil, err
	}
	return p.storage.Get(key)
}

func (p *Projects) PutFile(id string, filename string, content io.Reader) error {
	key, err := fileKey(id, filename)
	if err != nil {
		return err
	}
	return p.storage.Put(key, content)
}

func (p *Projects) DeleteFile(id string, filename string) error {
	key, err := fileKey(id, filename)
	if err != nil {
		return err
	}
	return p.storage.Delete(key)
}

// Delete removes all files of the project and returns their paths.
func (p *Projects) Delete(id string) ([]string, error) {
	if !isValidProjectID(id) {
		return nil, ErrInvalidProjectID
	}
	prefix := "projects/" + id + "/"
	keys, err := p.storage.DeleteAll(prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

// Bundle builds the bundle of the files. Bundles are stored by the hash of the manifest
// and the files, concurrent builds of the same hash wait for the first one.
func (p *Projects) Bundle(ctx context.Context, files map[string]string, m *project.Manifest) (record *BundleRecord, cached bool, err error) {
	hash := project.Hash(m, files)
	record, err = p.db.Get(hash)
	if err != nil || record != nil {
		return record, record != nil, err
	}

	unlock := p.buildLock.Lock(hash)
	defer unlock()

	// built by another request while waiting
	record, err = p.db.Get(hash)
	if err != nil || record != nil {
		return record, record != nil, err
	}

	start := time.Now()
	ret, err := project.Build(ctx, loader.NewMapProvider(files), m, project.Options{
		Logger:    p.logger,
		UserAgent: p.userAgent,
	})
	if err != nil {
		return nil, false, err
	}
	record = &BundleRecord{
		Hash:    hash,
		Name:    m.Name,
		Entry:   ret.Graph.Entry,
		Modules: ret.Graph.Paths(),
		Code:    ret.Code,
		Created: time.Now().Unix(),
	}
	for _, dep := range ret.Graph.Missing {
		record.Missing = append(record.Missing, dep.From+": "+dep.Specifier)
	}
	if err = p.db.Put(record); err != nil {
		if p.logger != nil {
			p.logger.Errorf("db: %v", err)
		}
		err = nil
	}
	if p.logger != nil {
		p.logger.Infof("bundled %s(%s) in %v", m.Name, hash, time.Since(start))
	}
	return record, false, nil
}

// BundleProject builds the bundle of a stored project, override changes its manifest.
func (p *Projects) BundleProject(ctx context.Context, id string, override func(m *project.Manifest)) (*BundleRecord, bool, error) {
	provider, err := p.Provider(id)
	if err != nil {
		return nil, false, err
	}
	files, err := project.ReadAll(provider)
	if err != nil {
		return nil, false, err
	}
	if len(files) == 0 {
		return nil, false, storage.ErrNotFound
	}
	m, err := project.ReadManifest(loader.NewMapProvider(files))
	if err != nil {
		return nil, false, err
	}
	if m.ID == "" {
		m.ID = id
	}
	if override != nil {
		override(m)
		m.Normalize()
	}
	return p.Bundle(ctx, files, m)
}

func fileKey(id string, filename string) (string, error) {
	if !isValidProjectID(id) {
		return "", ErrInvalidProjectID
	}
	key, err := storage.CleanKey(filename)
	if err != nil {
		return "", err
	}
	return "projects/" + id + "/" + key, nil
}

// isValidProjectID checks the id is made of letters, digits, `-`, `_` and `.`,
// and does not start with a dot.
func isValidProjectID(id string) bool {
	if id == "" || len(id) > 64 || id[0] == '.' {
		return false
	}
	for _, c := range id {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}
