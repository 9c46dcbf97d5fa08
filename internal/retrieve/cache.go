package retrieve

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"
	gocid "github.com/ipfs/go-cid"
	"golang.org/x/sync/singleflight"

	"github.com/opencollab/litemono/internal/cob"
	"github.com/opencollab/litemono/internal/store"
)

// CacheOptions configures the retrieval cache store.
type CacheOptions struct {
	// Path is the directory for the cache database. Ignored when InMemory
	// is true.
	Path string

	// InMemory keeps the cache off disk. Useful for testing.
	InMemory bool

	// Logger receives cache diagnostics. Nil disables them.
	Logger *slog.Logger
}

// Cache is a persistent side-index keyed by object id, holding the merged
// state plus a fingerprint of the per-peer reference set it was built from.
// It is derived and disposable: deleting it loses nothing, the engine
// rebuilds entries on demand. Never a source of truth.
type Cache struct {
	engine *Engine
	db     *badger.DB
	logger *slog.Logger
	group  singleflight.Group
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens the cache database and wires it in front of the engine.
func OpenCache(engine *Engine, opts CacheOptions) (*Cache, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("cache path is required for a persistent cache")
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{engine: engine, db: db, logger: logger}, nil
}

// Close releases the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheEntry is the stored value for one object id. Entries are written
// whole inside one transaction; a reader sees the prior complete entry or
// the new complete one, never one under construction.
type cacheEntry struct {
	Fingerprint string     `json:"fingerprint"`
	State       *cob.State `json:"state"`
}

func cacheKey(objectID string) []byte {
	return []byte("cob/" + objectID)
}

// Fingerprint condenses a per-peer reference set into a staleness check:
// SHA-256 over the sorted (peer, tip) pairs.
func Fingerprint(tips map[string]gocid.Cid) string {
	peers := make([]string, 0, len(tips))
	for p := range tips {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	h := sha256.New()
	for _, p := range peers {
		h.Write([]byte(p))
		h.Write([]byte{'='})
		h.Write([]byte(store.CIDToString(tips[p])))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Retrieve returns the object's materialized state, from the cache when the
// current reference set matches the stored fingerprint, otherwise by
// traversal. Concurrent calls for the same object id coalesce: at most one
// traversal runs, other callers wait on its result.
func (c *Cache) Retrieve(objectID string) (*cob.State, error) {
	tips, err := c.engine.tips(objectID)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(tips)

	if st, ok := c.lookup(objectID, fp); ok {
		return st, nil
	}

	v, err, _ := c.group.Do(objectID+"/"+fp, func() (interface{}, error) {
		// Recheck inside the flight: a waiter may arrive after the leader
		// already stored the entry.
		if st, ok := c.lookup(objectID, fp); ok {
			return st, nil
		}
		st, err := c.engine.retrieveTips(objectID, tips)
		if err != nil {
			return nil, err
		}
		if err := c.put(objectID, fp, st); err != nil {
			return nil, err
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cob.State), nil
}

// lookup returns the cached state when present, fresh, and intact. A
// corrupt entry is a cache miss, never a user-visible failure.
func (c *Cache) lookup(objectID, fingerprint string) (*cob.State, bool) {
	var entry cacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(objectID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, false
	case err != nil:
		c.logger.Debug("cache entry unreadable, rebuilding", "object", objectID, "err", err)
		return nil, false
	}
	if entry.State == nil || entry.Fingerprint != fingerprint {
		if entry.State == nil {
			c.logger.Debug("cache entry missing state, rebuilding", "object", objectID)
		}
		return nil, false
	}
	return entry.State, true
}

// put atomically replaces the cache entry for an object id.
func (c *Cache) put(objectID, fingerprint string, st *cob.State) error {
	data, err := json.Marshal(cacheEntry{Fingerprint: fingerprint, State: st})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(objectID), data)
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}
