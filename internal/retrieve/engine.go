// Package retrieve implements the read path: enumerate every per-peer
// reference for an object, fetch the referenced change nodes and their
// ancestors, and merge them into a single materialized state. The Cache
// wraps the same interface with a persistent side-index so repeated
// retrievals skip the walk.
package retrieve

import (
	"errors"
	"fmt"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/cob"
	"github.com/opencollab/litemono/internal/store"
)

// ErrObjectNotFound reports that no peer holds a reference for the object
// id. Distinct from a store read failure: the former means "does not
// exist", the latter "system error".
var ErrObjectNotFound = errors.New("object not found")

// ObjectReader is the slice of the object store the engine needs. Tests
// wrap it to count reads.
type ObjectReader interface {
	Get(c gocid.Cid) ([]byte, error)
}

// RefLister enumerates the per-peer references for one object id.
type RefLister interface {
	ListObject(kind, objectID string) (map[string]gocid.Cid, error)
}

// Retriever is the retrieval interface shared by the bare engine and the
// cache, so the cache stays an optional accelerator behind the same
// semantics rather than a divergent code path.
type Retriever interface {
	Retrieve(objectID string) (*cob.State, error)
}

// Engine is the uncached traversal path. Every call re-walks the reference
// namespace and re-fetches every change node of the target object.
type Engine struct {
	objects ObjectReader
	refs    RefLister
}

// NewEngine creates a traversal engine over the given store views.
func NewEngine(objects ObjectReader, refs RefLister) *Engine {
	return &Engine{objects: objects, refs: refs}
}

// Retrieve materializes the object's state from cold storage.
func (e *Engine) Retrieve(objectID string) (*cob.State, error) {
	tips, err := e.tips(objectID)
	if err != nil {
		return nil, err
	}
	return e.retrieveTips(objectID, tips)
}

// DescribeGraph returns the structural view of the object's change graph.
func (e *Engine) DescribeGraph(objectID string) (*cob.GraphDescription, error) {
	tips, err := e.tips(objectID)
	if err != nil {
		return nil, err
	}
	nodes, err := e.fetchNodes(tips)
	if err != nil {
		return nil, err
	}
	tipStrings := make(map[string]string, len(tips))
	for peer, c := range tips {
		tipStrings[peer] = store.CIDToString(c)
	}
	return cob.DescribeGraph(objectID, nodes, tipStrings)
}

func (e *Engine) tips(objectID string) (map[string]gocid.Cid, error) {
	tips, err := e.refs.ListObject(cob.KindIssue, objectID)
	if err != nil {
		return nil, fmt.Errorf("enumerate refs for %s: %w", objectID, err)
	}
	if len(tips) == 0 {
		return nil, fmt.Errorf("object %s: %w", objectID, ErrObjectNotFound)
	}
	return tips, nil
}

// retrieveTips merges the graph reachable from a fixed tip set. The cache
// calls this directly so the state it stores matches the fingerprint it
// computed from the same tips.
func (e *Engine) retrieveTips(objectID string, tips map[string]gocid.Cid) (*cob.State, error) {
	nodes, err := e.fetchNodes(tips)
	if err != nil {
		return nil, err
	}
	return cob.Materialize(objectID, nodes)
}

// fetchNodes walks ancestry from every tip, fetching each change node once.
func (e *Engine) fetchNodes(tips map[string]gocid.Cid) (map[string]*cob.Node, error) {
	nodes := make(map[string]*cob.Node)
	var frontier []gocid.Cid
	for _, c := range tips {
		frontier = append(frontier, c)
	}

	for len(frontier) > 0 {
		c := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		cs := store.CIDToString(c)
		if _, ok := nodes[cs]; ok {
			continue
		}
		data, err := e.objects.Get(c)
		if err != nil {
			return nil, fmt.Errorf("fetch change node: %w", err)
		}
		n, err := cob.DecodeNode(data)
		if err != nil {
			return nil, fmt.Errorf("change node %s: %w", cs, err)
		}
		nodes[cs] = n

		for _, p := range n.Parents {
			if _, ok := nodes[p]; ok {
				continue
			}
			pc, err := store.ParseCID(p)
			if err != nil {
				return nil, fmt.Errorf("change node %s parent: %w", cs, err)
			}
			frontier = append(frontier, pc)
		}
	}
	return nodes, nil
}
