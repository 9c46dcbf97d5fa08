// Package monorepo orchestrates the write path: it owns the on-disk layout,
// ensures the synthetic peer pool and project record exist, and imports
// downloaded issues as per-peer change graphs. It is the sole writer of
// references during import.
package monorepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/cob"
	"github.com/opencollab/litemono/internal/identity"
	"github.com/opencollab/litemono/internal/issue"
	"github.com/opencollab/litemono/internal/retrieve"
	"github.com/opencollab/litemono/internal/store"
)

// ErrRewind reports a reference update that would move a peer's ref to a
// node that does not descend from its current target. References only
// advance.
var ErrRewind = errors.New("reference update would rewind")

// Options configures opening a monorepo. Zero values take defaults; values
// persisted by a previous open win over new ones, since the pool must stay
// fixed for the life of the repository.
type Options struct {
	Repo        issue.RepoName
	PoolSize    int    // default identity.DefaultPoolSize
	PoolSeed    string // default Repo.String()
	Concurrency int    // parallel issue imports, default 4
	Logger      *slog.Logger
}

// meta is the persisted repository configuration, written once at creation.
type meta struct {
	V        int    `json:"v"`
	Repo     string `json:"repo"`
	PoolSize int    `json:"pool_size"`
	PoolSeed string `json:"pool_seed"`
}

// Monorepo is the top-level facade over one repository root:
//
//	objects/        content-addressed change nodes and identity documents
//	refs/           per-peer reference namespace
//	peer_map.json   source author -> peer assignments
//	identities.json peer DID -> identity document CID
//	project         project record CID
//	cache/          retrieval cache (derived, disposable)
type Monorepo struct {
	root   string
	repo   issue.RepoName
	logger *slog.Logger

	Objects *store.ObjectStore
	Refs    *store.RefStore
	Pool    *identity.Pool

	assignments *identity.Assignments
	projectCID  gocid.Cid
	concurrency int

	peerMu    sync.Mutex
	peerLocks map[string]*sync.Mutex
}

// Open opens or creates a monorepo at the given root.
func Open(root string, opts Options) (*Monorepo, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create monorepo root: %w", err)
	}

	m, err := loadOrInitMeta(root, opts)
	if err != nil {
		return nil, err
	}

	objects, err := store.NewObjectStore(filepath.Join(root, "objects"))
	if err != nil {
		return nil, err
	}
	refs, err := store.NewRefStore(filepath.Join(root, "refs"))
	if err != nil {
		return nil, err
	}

	pool, err := identity.NewPool(m.PoolSeed, m.PoolSize)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureDocuments(objects); err != nil {
		return nil, err
	}
	if err := writeIdentityIndex(filepath.Join(root, "identities.json"), pool); err != nil {
		return nil, err
	}

	assignments, err := identity.LoadAssignments(filepath.Join(root, "peer_map.json"), pool)
	if err != nil {
		return nil, err
	}

	repo, err := issue.ParseRepoName(m.Repo)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	mono := &Monorepo{
		root:        root,
		repo:        repo,
		logger:      logger,
		Objects:     objects,
		Refs:        refs,
		Pool:        pool,
		assignments: assignments,
		concurrency: concurrency,
		peerLocks:   make(map[string]*sync.Mutex),
	}
	if err := mono.ensureProject(); err != nil {
		return nil, err
	}
	return mono, nil
}

func loadOrInitMeta(root string, opts Options) (*meta, error) {
	path := filepath.Join(root, "monorepo.json")
	data, err := os.ReadFile(path)
	if err == nil {
		var m meta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse monorepo meta: %w", err)
		}
		return &m, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read monorepo meta: %w", err)
	}

	if opts.Repo.Owner == "" {
		return nil, errors.New("repository name is required to create a monorepo")
	}
	m := &meta{
		V:        1,
		Repo:     opts.Repo.String(),
		PoolSize: opts.PoolSize,
		PoolSeed: opts.PoolSeed,
	}
	if m.PoolSize <= 0 {
		m.PoolSize = identity.DefaultPoolSize
	}
	if m.PoolSeed == "" {
		m.PoolSeed = m.Repo
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := store.SafeWrite(path, out, 0644); err != nil {
		return nil, fmt.Errorf("write monorepo meta: %w", err)
	}
	return m, nil
}

// writeIdentityIndex persists the peer -> identity document map. Rewritten
// on every open; the pool is deterministic so the content is stable.
func writeIdentityIndex(path string, pool *identity.Pool) error {
	index := make(map[string]string, pool.Size())
	for _, id := range pool.Identities() {
		c, ok := pool.DocumentCID(id.DID)
		if !ok {
			return fmt.Errorf("identity document missing for %s: %w", id.Petname, identity.ErrPoolExhausted)
		}
		index[id.DID] = store.CIDToString(c)
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity index: %w", err)
	}
	return store.SafeWrite(path, data, 0644)
}

// projectRecord is the root object tying the repository together.
type projectRecord struct {
	V     int      `json:"v"`
	Name  string   `json:"name"`
	Repo  string   `json:"repo"`
	Peers []string `json:"peers"`
}

// ensureProject writes the project record object exactly once per
// repository, keeping its CID in the `project` file.
func (m *Monorepo) ensureProject() error {
	path := filepath.Join(m.root, "project")
	data, err := os.ReadFile(path)
	if err == nil {
		c, err := store.ParseCID(string(data))
		if err != nil {
			return fmt.Errorf("parse project record CID: %w", err)
		}
		m.projectCID = c
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read project record: %w", err)
	}

	peers := make([]string, 0, m.Pool.Size())
	for _, id := range m.Pool.Identities() {
		peers = append(peers, id.DID)
	}
	sort.Strings(peers)

	rec, err := store.CanonicalJSON(projectRecord{
		V:     1,
		Name:  m.repo.Name,
		Repo:  m.repo.String(),
		Peers: peers,
	})
	if err != nil {
		return fmt.Errorf("encode project record: %w", err)
	}
	c, err := m.Objects.Put(rec)
	if err != nil {
		return fmt.Errorf("store project record: %w", err)
	}
	if err := store.SafeWrite(path, []byte(store.CIDToString(c)), 0644); err != nil {
		return fmt.Errorf("write project record CID: %w", err)
	}
	m.projectCID = c
	return nil
}

// ProjectCID returns the CID of the project record object.
func (m *Monorepo) ProjectCID() gocid.Cid {
	return m.projectCID
}

// Repo returns the source repository name.
func (m *Monorepo) Repo() issue.RepoName {
	return m.repo
}

// CachePath returns the directory reserved for the retrieval cache.
func (m *Monorepo) CachePath() string {
	return filepath.Join(m.root, "cache")
}

// Engine returns an uncached traversal engine over this repository.
func (m *Monorepo) Engine() *retrieve.Engine {
	return retrieve.NewEngine(m.Objects, m.Refs)
}

// ListObjects returns every imported object id.
func (m *Monorepo) ListObjects() ([]string, error) {
	return m.Refs.ListObjects(cob.KindIssue)
}

// peerLock returns the exclusive write section for one peer's references.
func (m *Monorepo) peerLock(did string) *sync.Mutex {
	m.peerMu.Lock()
	defer m.peerMu.Unlock()
	mu, ok := m.peerLocks[did]
	if !ok {
		mu = &sync.Mutex{}
		m.peerLocks[did] = mu
	}
	return mu
}
