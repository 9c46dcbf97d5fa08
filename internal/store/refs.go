package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gocid "github.com/ipfs/go-cid"
)

// ErrRefModified reports a failed compare-and-swap: the reference no longer
// points where the caller expected.
var ErrRefModified = errors.New("reference modified concurrently")

// RefName identifies one mutable reference in the peer namespace:
// peers/<peer>/cob/<kind>/<object id>. Every (peer, object) pair an import
// touches gets exactly one such reference.
type RefName struct {
	Peer     string // peer DID
	Kind     string // object kind, e.g. "issue"
	ObjectID string
}

func (n RefName) String() string {
	return "peers/" + n.Peer + "/cob/" + n.Kind + "/" + n.ObjectID
}

// RefStore manages the mutable reference namespace as files under a
// directory tree mirroring the ref name. Filenames use URL-safe encoding:
// colons become double underscores. Each ref file holds the target CID.
type RefStore struct {
	mu  sync.Mutex // serializes compare-and-swap updates
	dir string
}

// NewRefStore creates a RefStore at the given directory.
func NewRefStore(dir string) (*RefStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create refs dir: %w", err)
	}
	return &RefStore{dir: dir}, nil
}

func escapeSegment(s string) string {
	return strings.ReplaceAll(s, ":", "__")
}

func unescapeSegment(s string) string {
	return strings.ReplaceAll(s, "__", ":")
}

func (r *RefStore) path(name RefName) string {
	return filepath.Join(r.dir, "peers", escapeSegment(name.Peer), "cob", name.Kind, name.ObjectID)
}

// Get resolves a reference to its target CID. A missing reference wraps
// ErrNotFound.
func (r *RefStore) Get(name RefName) (gocid.Cid, error) {
	data, err := os.ReadFile(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return gocid.Undef, fmt.Errorf("ref %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return gocid.Undef, fmt.Errorf("read ref %s: %w", name, err)
	}
	return ParseCID(strings.TrimSpace(string(data)))
}

// Set unconditionally points a reference at the given CID, atomically.
func (r *RefStore) Set(name RefName, c gocid.Cid) error {
	path := r.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create ref dir: %w", err)
	}
	if err := SafeWrite(path, []byte(CIDToString(c)+"\n"), 0644); err != nil {
		return fmt.Errorf("write ref %s: %w", name, err)
	}
	return nil
}

// Update performs a compare-and-swap: the reference must currently point at
// old (CidUndef means it must not exist yet). Returns ErrRefModified when the
// current target differs from old.
func (r *RefStore) Update(name RefName, old, new gocid.Cid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Get(name)
	switch {
	case errors.Is(err, ErrNotFound):
		current = gocid.Undef
	case err != nil:
		return err
	}
	if !current.Equals(old) {
		return fmt.Errorf("ref %s: %w", name, ErrRefModified)
	}
	return r.Set(name, new)
}

// Has checks if a reference exists.
func (r *RefStore) Has(name RefName) bool {
	_, err := os.Stat(r.path(name))
	return err == nil
}

// ListObject enumerates every per-peer reference for one object id,
// returning peer DID -> tip CID. This is the read path's fan-in: each entry
// is one peer's view of the object.
func (r *RefStore) ListObject(kind, objectID string) (map[string]gocid.Cid, error) {
	peersDir := filepath.Join(r.dir, "peers")
	entries, err := os.ReadDir(peersDir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]gocid.Cid{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	tips := make(map[string]gocid.Cid)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		peer := unescapeSegment(e.Name())
		name := RefName{Peer: peer, Kind: kind, ObjectID: objectID}
		c, err := r.Get(name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tips[peer] = c
	}
	return tips, nil
}

// ListObjects returns the distinct object ids of the given kind that have at
// least one reference, across the whole peer namespace.
func (r *RefStore) ListObjects(kind string) ([]string, error) {
	peersDir := filepath.Join(r.dir, "peers")
	entries, err := os.ReadDir(peersDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		kindDir := filepath.Join(peersDir, e.Name(), "cob", kind)
		refs, err := os.ReadDir(kindDir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list refs for %s: %w", e.Name(), err)
		}
		for _, ref := range refs {
			if ref.IsDir() || seen[ref.Name()] {
				continue
			}
			seen[ref.Name()] = true
			ids = append(ids, ref.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListPeer enumerates one peer's references of the given kind, returning
// object id -> tip CID.
func (r *RefStore) ListPeer(peer, kind string) (map[string]gocid.Cid, error) {
	kindDir := filepath.Join(r.dir, "peers", escapeSegment(peer), "cob", kind)
	entries, err := os.ReadDir(kindDir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]gocid.Cid{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs for %s: %w", peer, err)
	}

	refs := make(map[string]gocid.Cid)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := RefName{Peer: peer, Kind: kind, ObjectID: e.Name()}
		c, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		refs[e.Name()] = c
	}
	return refs, nil
}
