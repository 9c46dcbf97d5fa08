package identity

import (
	"fmt"
	"sync"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/store"
)

// DefaultPoolSize is the number of synthetic peers created when no size is
// configured.
const DefaultPoolSize = 10

// Pool is the fixed set of synthetic peers for one monorepo, derived once at
// batch start and threaded through encoder calls. A small pool is reused
// across all imported issues rather than one peer per issue.
type Pool struct {
	seed string
	ids  []*Identity

	mu   sync.Mutex
	docs map[string]gocid.Cid // DID -> identity document CID
}

// NewPool derives a pool of size identities from the given seed.
func NewPool(seed string, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size %d: %w", size, ErrPoolExhausted)
	}
	ids := make([]*Identity, size)
	for i := 0; i < size; i++ {
		ids[i] = Derive(seed, i)
	}
	return &Pool{
		seed: seed,
		ids:  ids,
		docs: make(map[string]gocid.Cid, size),
	}, nil
}

// Size returns the number of peers in the pool.
func (p *Pool) Size() int {
	return len(p.ids)
}

// Identity returns the peer at the given index. The index range is bounded
// by the pool size fixed at creation.
func (p *Pool) Identity(index int) (*Identity, error) {
	if index < 0 || index >= len(p.ids) {
		return nil, fmt.Errorf("peer index %d of %d: %w", index, len(p.ids), ErrPoolExhausted)
	}
	return p.ids[index], nil
}

// Identities returns all peers in index order.
func (p *Pool) Identities() []*Identity {
	return p.ids
}

// ByDID looks up a pool member by its DID.
func (p *Pool) ByDID(did string) (*Identity, bool) {
	for _, id := range p.ids {
		if id.DID == did {
			return id, true
		}
	}
	return nil, false
}

// EnsureDocuments writes each peer's identity document to the object store.
// Documents are content-addressed, so a peer whose document already exists
// is reused, never duplicated. A store write failure surfaces unchanged.
func (p *Pool) EnsureDocuments(objects *store.ObjectStore) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.ids {
		data, err := store.CanonicalJSON(id.Document())
		if err != nil {
			return fmt.Errorf("encode identity document for %s: %w", id.Petname, err)
		}
		c, err := objects.Put(data)
		if err != nil {
			return fmt.Errorf("store identity document for %s: %w", id.Petname, err)
		}
		p.docs[id.DID] = c
	}
	return nil
}

// DocumentCID returns the stored identity document CID for a DID, if
// EnsureDocuments has run.
func (p *Pool) DocumentCID(did string) (gocid.Cid, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.docs[did]
	return c, ok
}
