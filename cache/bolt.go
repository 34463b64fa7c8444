package cache

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

// assetsBucket holds every cache entry; keys are the raw identifiers, since
// bbolt imposes no charset constraints.
var assetsBucket = []byte("assets")

// Bolt is a persistent store backed by a bbolt database file, for callers
// that prefer a single file over a directory of blobs. The operational
// policy matches FS: after Init, every failure reads as a miss or is
// silently discarded.
type Bolt struct {
	path string
	log  zerolog.Logger

	initOnce sync.Once
	initErr  error
	ready    atomic.Bool
	db       *bolt.DB
}

// BoltOption configures a Bolt store.
type BoltOption func(*Bolt)

// BoltWithLogger sets the logger used to record swallowed errors at debug
// level. The default discards everything.
func BoltWithLogger(log zerolog.Logger) BoltOption {
	return func(b *Bolt) { b.log = log }
}

// NewBolt creates a bbolt-backed store at path. The database file is not
// opened until Init.
func NewBolt(path string, opts ...BoltOption) *Bolt {
	b := &Bolt{path: path, log: zerolog.Nop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Init opens the database and creates the assets bucket. It runs at most
// once; when the file cannot be opened the store stays inert for the life
// of the process and returns the original failure on every call.
func (b *Bolt) Init(_ context.Context) error {
	b.initOnce.Do(func() {
		db, err := bolt.Open(b.path, 0o600, &bolt.Options{Timeout: time.Second})
		if err == nil {
			err = db.Update(func(tx *bolt.Tx) error {
				_, berr := tx.CreateBucketIfNotExists(assetsBucket)
				return berr
			})
			if err != nil {
				_ = db.Close()
			}
		}
		if err != nil {
			b.initErr = err
			b.log.Debug().Err(err).Str("path", b.path).Msg("store init failed, going inert")
			return
		}
		b.db = db
		b.ready.Store(true)
	})
	return b.initErr
}

// Get retrieves the value stored under key. Values are cloned out of the
// transaction, since bbolt slices are only valid inside it.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	if !b.ready.Load() {
		return nil, false, nil
	}
	var (
		val   []byte
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(assetsBucket).Get([]byte(key)); v != nil {
			val = bytes.Clone(v)
			found = true
		}
		return nil
	})
	if err != nil {
		b.log.Debug().Err(err).Str("key", key).Msg("store read failed")
		return nil, false, nil
	}
	return val, found, nil
}

// Put stores a value under key. Errors are silently discarded.
func (b *Bolt) Put(_ context.Context, key string, val []byte) error {
	if !b.ready.Load() {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(assetsBucket).Put([]byte(key), val)
	})
	if err != nil {
		b.log.Debug().Err(err).Str("key", key).Msg("store write failed")
	}
	return nil
}

// Remove deletes the entry for key if present. Errors are silently
// discarded.
func (b *Bolt) Remove(_ context.Context, key string) error {
	if !b.ready.Load() {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(assetsBucket).Delete([]byte(key))
	})
	if err != nil {
		b.log.Debug().Err(err).Str("key", key).Msg("store remove failed")
	}
	return nil
}

// Clear drops and recreates the assets bucket. Errors are silently
// discarded.
func (b *Bolt) Clear(_ context.Context) error {
	if !b.ready.Load() {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(assetsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(assetsBucket)
		return err
	})
	if err != nil {
		b.log.Debug().Err(err).Msg("store clear failed")
	}
	return nil
}

// Close releases the database file lock. Operations on a closed store fail
// soft like any other storage failure.
func (b *Bolt) Close() error {
	if !b.ready.Load() {
		return nil
	}
	return b.db.Close()
}
