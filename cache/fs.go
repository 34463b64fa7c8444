package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// tmpPattern names in-progress writes so Clear can sweep up droppings left
// by a crash mid-write.
const tmpPattern = ".hoard-*"

// FS is a filesystem-backed persistent store. Entries are flat files named
// by the encoded key; there is no index file and no size bound. All
// operations fail soft: when the directory is unusable, reads report a miss
// and writes are silently discarded instead of surfacing the error to the
// caller.
type FS struct {
	dir string
	log zerolog.Logger

	initOnce sync.Once
	initErr  error
	ready    atomic.Bool
}

// FSOption configures an FS store.
type FSOption func(*FS)

// FSWithLogger sets the logger used to record swallowed I/O errors at debug
// level. The default discards everything.
func FSWithLogger(log zerolog.Logger) FSOption {
	return func(f *FS) { f.log = log }
}

// NewFS creates a filesystem store rooted at dir. The disk is not touched
// until Init.
func NewFS(dir string, opts ...FSOption) *FS {
	f := &FS{dir: dir, log: zerolog.Nop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Init establishes the store directory. It runs at most once; when the
// directory cannot be created the store stays inert for the life of the
// process and returns the original failure on every call.
func (f *FS) Init(_ context.Context) error {
	f.initOnce.Do(func() {
		abs, err := filepath.Abs(f.dir)
		if err == nil {
			err = os.MkdirAll(abs, 0o755)
		}
		if err != nil {
			f.initErr = err
			f.log.Debug().Err(err).Str("dir", f.dir).Msg("store init failed, going inert")
			return
		}
		f.dir = abs
		f.ready.Store(true)
	})
	return f.initErr
}

// Dir reports the store directory, resolved to an absolute path once Init
// has run.
func (f *FS) Dir() string {
	return f.dir
}

// Get reads the entry for key. Any failure, including the file not
// existing, reads as a miss.
func (f *FS) Get(_ context.Context, key string) ([]byte, bool, error) {
	if !f.ready.Load() {
		return nil, false, nil
	}
	val, err := os.ReadFile(f.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Debug().Err(err).Str("key", key).Msg("store read failed")
		}
		return nil, false, nil
	}
	return val, true, nil
}

// Put writes the entry through a temp file and a rename, so a concurrent
// reader never observes a partial value. Concurrent writers of the same key
// race with last-write-wins. Errors are silently discarded.
func (f *FS) Put(_ context.Context, key string, val []byte) error {
	if !f.ready.Load() {
		return nil
	}
	if err := f.write(key, val); err != nil {
		f.log.Debug().Err(err).Str("key", key).Msg("store write failed")
	}
	return nil
}

func (f *FS) write(key string, val []byte) error {
	tmp, err := os.CreateTemp(f.dir, tmpPattern)
	if err != nil {
		return err
	}
	_, werr := tmp.Write(val)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), f.path(key))
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
	}
	return werr
}

// Remove deletes the entry for key if present. Errors are silently
// discarded.
func (f *FS) Remove(_ context.Context, key string) error {
	if !f.ready.Load() {
		return nil
	}
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		f.log.Debug().Err(err).Str("key", key).Msg("store remove failed")
	}
	return nil
}

// Clear deletes every file under the store directory, leftover temp files
// included. Errors are silently discarded.
func (f *FS) Clear(_ context.Context) error {
	if !f.ready.Load() {
		return nil
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.log.Debug().Err(err).Msg("store clear failed")
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			f.log.Debug().Err(err).Str("file", e.Name()).Msg("store clear failed")
		}
	}
	return nil
}

func (f *FS) path(key string) string {
	return filepath.Join(f.dir, EncodeKey(key))
}
