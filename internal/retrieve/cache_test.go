package retrieve

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func newTestCache(t *testing.T, e *Engine) *Cache {
	t.Helper()
	c, err := OpenCache(e, CacheOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCache_RequiresPath(t *testing.T) {
	if _, err := OpenCache(NewEngine(nil, nil), CacheOptions{}); err == nil {
		t.Error("expected error opening a persistent cache without a path")
	}
}

func TestCache_MatchesEngine(t *testing.T) {
	f := newFixture(t, "obj-cache")
	e := NewEngine(f.objects, f.refs)
	c := newTestCache(t, e)

	direct, err := e.Retrieve("obj-cache")
	if err != nil {
		t.Fatal(err)
	}
	cached, err := c.Retrieve("obj-cache")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(direct, cached) {
		t.Errorf("cached state differs from direct traversal:\n%+v\nvs\n%+v", cached, direct)
	}
}

func TestCache_HitSkipsTraversal(t *testing.T) {
	f := newFixture(t, "obj-hit")
	c := newTestCache(t, NewEngine(f.objects, f.refs))

	if _, err := c.Retrieve("obj-hit"); err != nil {
		t.Fatal(err)
	}
	cold := f.objects.reads.Load()
	if cold == 0 {
		t.Fatal("cold retrieval fetched no nodes")
	}

	if _, err := c.Retrieve("obj-hit"); err != nil {
		t.Fatal(err)
	}
	if got := f.objects.reads.Load(); got != cold {
		t.Errorf("warm retrieval fetched %d nodes", got-cold)
	}
}

func TestCache_StaleAfterRefUpdate(t *testing.T) {
	f := newFixture(t, "obj-stale")
	c := newTestCache(t, NewEngine(f.objects, f.refs))

	before, err := c.Retrieve("obj-stale")
	if err != nil {
		t.Fatal(err)
	}
	if len(before.Comments) != 2 {
		t.Fatalf("got %d comments before extension", len(before.Comments))
	}

	f.extend(t, "obj-stale")

	after, err := c.Retrieve("obj-stale")
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Comments) != 3 {
		t.Fatalf("stale cache served %d comments, want 3", len(after.Comments))
	}
	if after.Comments[2].ID != 199 {
		t.Errorf("new comment missing: %+v", after.Comments)
	}

	// The refreshed entry is itself cached.
	reads := f.objects.reads.Load()
	if _, err := c.Retrieve("obj-stale"); err != nil {
		t.Fatal(err)
	}
	if got := f.objects.reads.Load(); got != reads {
		t.Errorf("retrieval after refresh fetched %d nodes", got-reads)
	}
}

func TestCache_CorruptEntryRebuilt(t *testing.T) {
	f := newFixture(t, "obj-corrupt")
	c := newTestCache(t, NewEngine(f.objects, f.refs))

	if _, err := c.Retrieve("obj-corrupt"); err != nil {
		t.Fatal(err)
	}

	// Clobber the stored entry with garbage.
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey("obj-corrupt"), []byte("{truncated"))
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err := c.Retrieve("obj-corrupt")
	if err != nil {
		t.Fatalf("Retrieve after corruption: %v", err)
	}
	if st.Title != "retrieval fixture" {
		t.Errorf("rebuilt state wrong: %+v", st)
	}

	// The rebuild replaced the corrupt entry.
	var entry cacheEntry
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey("obj-corrupt"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry.State == nil || entry.State.Title != "retrieval fixture" {
		t.Errorf("cache entry not repaired: %+v", entry)
	}
}

func TestCache_MissingObject(t *testing.T) {
	f := newFixture(t, "obj-exists")
	c := newTestCache(t, NewEngine(f.objects, f.refs))

	_, err := c.Retrieve("obj-missing")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Retrieve = %v, want ErrObjectNotFound", err)
	}
}

func TestCache_ConcurrentColdRetrievesCoalesce(t *testing.T) {
	f := newFixture(t, "obj-flight")
	c := newTestCache(t, NewEngine(f.objects, f.refs))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := c.Retrieve("obj-flight")
			if err != nil {
				errs <- err
				return
			}
			if st.Title != "retrieval fixture" {
				errs <- errors.New("wrong state from concurrent retrieve")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	// Coalesced callers share one traversal; a caller arriving after the
	// flight finished hits the freshly written entry. Either way the node
	// set is fetched exactly once.
	want := int64(len(f.enc.Nodes))
	if got := f.objects.reads.Load(); got != want {
		t.Errorf("object reads = %d, want %d", got, want)
	}
}

func TestCache_Persistent(t *testing.T) {
	f := newFixture(t, "obj-disk")
	dir := filepath.Join(t.TempDir(), "cache")

	c1, err := OpenCache(NewEngine(f.objects, f.refs), CacheOptions{Path: dir})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	if _, err := c1.Retrieve("obj-disk"); err != nil {
		t.Fatal(err)
	}
	cold := f.objects.reads.Load()
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen: the entry survives the process boundary.
	c2, err := OpenCache(NewEngine(f.objects, f.refs), CacheOptions{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if _, err := c2.Retrieve("obj-disk"); err != nil {
		t.Fatal(err)
	}
	if got := f.objects.reads.Load(); got != cold {
		t.Errorf("retrieval after reopen fetched %d nodes", got-cold)
	}
}
