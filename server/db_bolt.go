package server

import (
	"time"

	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

const bundleBucket = "bundles"

// BundleRecord is a built bundle.
type BundleRecord struct {
	Hash    string   `json:"hash"`
	Name    string   `json:"name"`
	Entry   string   `json:"entry"`
	Modules []string `json:"modules"`
	Missing []string `json:"missing,omitempty"`
	Code    string   `json:"code"`
	Created int64    `json:"created"`
}

// DBStat describes the bundle database.
type DBStat struct {
	Records int64 `json:"records"`
	Cached  int   `json:"cached"`
}

// BundleDB stores the bundles by the hash of their project, with an LRU cache
// of the recent records in front of the bolt database.
type BundleDB struct {
	bolt  *bolt.DB
	cache *lru.Cache[string, *BundleRecord]
}

func OpenBundleDB(filename string, cacheSize int) (*BundleDB, error) {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	cache, err := lru.New[string, *BundleRecord](cacheSize)
	if err != nil {
		return nil, err
	}
	boltd, err := bolt.Open(filename, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = boltd.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bundleBucket))
		return err
	})
	if err != nil {
		boltd.Close()
		return nil, err
	}
	return &BundleDB{bolt: boltd, cache: cache}, nil
}

func (db *BundleDB) Stat() (stat DBStat, err error) {
	err = db.bolt.View(func(tx *bolt.Tx) error {
		stat.Records = int64(tx.Bucket([]byte(bundleBucket)).Stats().KeyN)
		return nil
	})
	stat.Cached = db.cache.Len()
	return
}

// Get returns the record of the hash, nil if not found.
func (db *BundleDB) Get(hash string) (record *BundleRecord, err error) {
	if record, ok := db.cache.Get(hash); ok {
		return record, nil
	}
	var value []byte
	err = db.bolt.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bundleBucket)).Get([]byte(hash)); v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil || value == nil {
		return
	}
	record = &BundleRecord{}
	if err = json.Unmarshal(value, record); err != nil {
		return nil, err
	}
	db.cache.Add(hash, record)
	return
}

func (db *BundleDB) Put(record *BundleRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	err = db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bundleBucket)).Put([]byte(record.Hash), value)
	})
	if err == nil {
		db.cache.Add(record.Hash, record)
	}
	return err
}

func (db *BundleDB) Delete(hash string) error {
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bundleBucket)).Delete([]byte(hash))
	})
	if err == nil {
		db.cache.Remove(hash)
	}
	return err
}

func (db *BundleDB) Close() error {
	db.cache.Purge()
	return db.bolt.Close()
}
