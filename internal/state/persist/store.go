// Package persist implements the Persistence Actor: a debounced mirror of
// the State Actor's committed entries into an embedded BadgerDB store, and
// the startup hydration path that replays them back as stale entries.
package persist

import (
	"context"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/juliencr/xtouch-gw/internal/logger"
	"github.com/juliencr/xtouch-gw/internal/state/actor"
)

// Config controls the debounce window and storage location.
type Config struct {
	// Dir is the BadgerDB data directory.
	Dir string
	// DebounceWindow collapses consecutive writes to the same (app, addr)
	// key within this window into a single store write. Spec range:
	// 250-500ms; defaults to 350ms if zero.
	DebounceWindow time.Duration
}

func (c Config) debounce() time.Duration {
	if c.DebounceWindow <= 0 {
		return 350 * time.Millisecond
	}
	return c.DebounceWindow
}

// Store wraps a *badger.DB and debounces writes per (app, addr) key.
type Store struct {
	db     *badger.DB
	window time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]pendingWrite
	closed  bool
}

type pendingWrite struct {
	app   string
	entry actor.Entry
}

// Open opens (or creates) the BadgerDB directory at cfg.Dir.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:      db,
		window:  cfg.debounce(),
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]pendingWrite),
	}, nil
}

// Put debounces a write of entry for app: consecutive Put calls for the
// same (app, addr) within the configured window collapse into the last
// value and a single store write.
func (s *Store) Put(app string, entry actor.Entry) {
	key := encodeKey(app, entry.Addr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[key] = pendingWrite{app: app, entry: entry}
	if t, ok := s.timers[key]; ok {
		t.Reset(s.window)
		return
	}
	s.timers[key] = time.AfterFunc(s.window, func() { s.flushKey(key) })
}

func (s *Store) flushKey(key string) {
	s.mu.Lock()
	w, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
		delete(s.timers, key)
	}
	closed := s.closed
	s.mu.Unlock()
	if !ok || closed {
		return
	}
	if err := s.write(key, w.entry); err != nil {
		logger.Error("persistence write failed", logger.StoreKey(key), logger.Err(err))
	}
}

func (s *Store) write(key string, entry actor.Entry) error {
	val, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// LoadAll reads every persisted entry back, grouped by app, for a single
// startup hydration pass. Callers feed each app's slice to the State
// Actor's HydrateFromSnapshot.
func (s *Store) LoadAll(ctx context.Context) (map[string][]actor.Entry, error) {
	out := make(map[string][]actor.Entry)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(keyPrefix)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			app, addr, ok := decodeKey(string(item.Key()))
			if !ok {
				continue
			}
			err := item.Value(func(val []byte) error {
				entry, err := decodeEntry(addr, val)
				if err != nil {
					return err
				}
				entry.Stale = true
				out[app] = append(out[app], entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close flushes every pending debounce timer synchronously and closes the
// underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]pendingWrite)
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	for key, w := range pending {
		if err := s.write(key, w.entry); err != nil {
			logger.Error("persistence flush-on-close failed", logger.StoreKey(key), logger.Err(err))
		}
	}
	return s.db.Close()
}
