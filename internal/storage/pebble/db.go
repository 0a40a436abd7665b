package pebblestore

import (
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

// ErrClosed is returned by reads after Close.
var ErrClosed = errors.New("pebblestore: closed")

// SyncMode selects when commits wait for the WAL to reach disk.
type SyncMode int

const (
	// SyncGrouped lets Pebble coalesce WAL syncs within SyncInterval.
	SyncGrouped SyncMode = iota
	// SyncAlways syncs on every commit.
	SyncAlways
	// SyncNever leaves syncing to Pebble.
	SyncNever
)

// Options configures Open.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory backs the store with an in-memory filesystem.
	InMemory bool
	Sync     SyncMode
	// SyncInterval applies to SyncGrouped. Defaults to 5ms.
	SyncInterval time.Duration
	// Observer receives commit and read timings. Optional.
	Observer Observer
}

// Observer is notified of storage operations.
type Observer interface {
	ObserveCommit(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
}

type nopObserver struct{}

func (nopObserver) ObserveCommit(time.Duration, int) {}
func (nopObserver) ObserveRead(time.Duration, int)   {}

// DB is an open store. Methods return ErrClosed after Close.
type DB struct {
	mu       sync.RWMutex
	inner    *pebble.DB
	sync     bool
	observer Observer
}

// Open creates or opens a store.
func Open(opts Options) (*DB, error) {
	po := &pebble.Options{}
	dir := opts.Dir
	switch {
	case opts.InMemory:
		po.FS = vfs.NewMem()
		if dir == "" {
			dir = "journal"
		}
	case dir == "":
		return nil, errors.New("pebblestore: Dir is required unless InMemory is set")
	}

	if opts.Sync == SyncGrouped && !opts.InMemory {
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(dir, po)
	if err != nil {
		return nil, err
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &DB{inner: inner, sync: opts.Sync != SyncNever, observer: obs}, nil
}

// Close closes the store. Safe on a nil DB and on repeated calls. It waits
// for in-flight reads and commits.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.inner == nil {
		return nil
	}
	err := db.inner.Close()
	db.inner = nil
	return err
}

// NewBatch starts an atomic multi-key write.
func (db *DB) NewBatch() (*pebble.Batch, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.inner == nil {
		return nil, ErrClosed
	}
	return db.inner.NewBatch(), nil
}

// CommitBatch commits b with the configured sync policy.
func (db *DB) CommitBatch(b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblestore: nil batch")
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.inner == nil {
		return ErrClosed
	}
	start := time.Now()
	size := b.Len()
	wo := pebble.NoSync
	if db.sync {
		wo = pebble.Sync
	}
	err := b.Commit(wo)
	db.observer.ObserveCommit(time.Since(start), size)
	return err
}

// Set writes a single key.
func (db *DB) Set(key, value []byte) error {
	b, err := db.NewBatch()
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(b)
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.inner == nil {
		return nil, ErrClosed
	}
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.observer.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewIter opens a raw iterator. The caller closes it before Close.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.inner == nil {
		return nil, ErrClosed
	}
	return db.inner.NewIter(opts)
}
