package monorepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	gocid "github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"github.com/opencollab/litemono/internal/cob"
	"github.com/opencollab/litemono/internal/issue"
	"github.com/opencollab/litemono/internal/store"
)

// Report summarizes a batch import. Batch operations report per-item
// outcomes rather than aborting on the first problem.
type Report struct {
	Succeeded int
	Skipped   int
	Failed    int
	Problems  []string // recorded reasons for skipped items
}

// Import materializes one issue as a change graph and links every touched
// peer's reference. Returns the object id and whether anything was written:
// re-importing an already-imported issue detects the existing object id via
// its stable derivation and skips re-encoding.
//
// Ordering is write-then-link: no reference moves before every change node
// it can reach is durably in the object store, so a crash mid-import leaves
// a valid, resumable repository.
func (m *Monorepo) Import(iss *issue.Issue) (string, bool, error) {
	if err := iss.Validate(); err != nil {
		return "", false, err
	}

	objectID := cob.DeriveObjectID(m.repo.String(), iss.ID)

	existing, err := m.Refs.ListObject(cob.KindIssue, objectID)
	if err != nil {
		return "", false, fmt.Errorf("check existing refs: %w", err)
	}
	if len(existing) > 0 {
		return objectID, false, nil
	}

	enc, err := cob.EncodeIssue(iss, m.assignments, objectID)
	if err != nil {
		return "", false, err
	}

	byCID := make(map[string]*cob.Node, len(enc.Nodes))
	for i := range enc.Nodes {
		n := &enc.Nodes[i]
		if _, err := m.Objects.Put(n.Data); err != nil {
			return "", false, fmt.Errorf("issue %d: %w", iss.ID, err)
		}
		byCID[store.CIDToString(n.CID)] = &n.Node
	}

	if err := m.linkTips(objectID, enc.Tips, byCID); err != nil {
		return "", false, fmt.Errorf("issue %d: %w", iss.ID, err)
	}

	m.logger.Debug("imported issue",
		"issue", iss.ID, "object", objectID,
		"nodes", len(enc.Nodes), "peers", len(enc.Tips))
	return objectID, true, nil
}

// linkTips advances one reference per (peer, object) pair, holding each
// peer's exclusive section. Peers lock in sorted order.
func (m *Monorepo) linkTips(objectID string, tips map[string]gocid.Cid, nodes map[string]*cob.Node) error {
	peers := make([]string, 0, len(tips))
	for p := range tips {
		peers = append(peers, p)
	}
	sort.Strings(peers)

	for _, peer := range peers {
		mu := m.peerLock(peer)
		mu.Lock()
		err := m.advanceRef(store.RefName{Peer: peer, Kind: cob.KindIssue, ObjectID: objectID}, tips[peer], nodes)
		mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// advanceRef moves a reference to tip, enforcing monotonicity: the current
// target must be an ancestor of the new tip.
func (m *Monorepo) advanceRef(name store.RefName, tip gocid.Cid, nodes map[string]*cob.Node) error {
	current, err := m.Refs.Get(name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		current = store.CidUndef
	case err != nil:
		return err
	}

	if current.Defined() {
		if current.Equals(tip) {
			return nil
		}
		if !descends(nodes, store.CIDToString(tip), store.CIDToString(current)) {
			return fmt.Errorf("ref %s: %w", name, ErrRewind)
		}
	}
	return m.Refs.Update(name, current, tip)
}

// descends reports whether ancestor is reachable from tip by parent edges
// within the encoded node set. Re-encoding is byte-identical, so a resumed
// import always finds a previously linked node inside its own encoding.
func descends(nodes map[string]*cob.Node, tip, ancestor string) bool {
	seen := make(map[string]bool)
	frontier := []string{tip}
	for len(frontier) > 0 {
		cs := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if cs == ancestor {
			return true
		}
		if seen[cs] {
			continue
		}
		seen[cs] = true
		n, ok := nodes[cs]
		if !ok {
			continue
		}
		frontier = append(frontier, n.Parents...)
	}
	return false
}

// ImportAll imports a batch, parallel across issues. Malformed issues and
// already-imported issues are skipped and recorded; a store-level failure is
// fatal and aborts the batch, leaving already-written references intact.
func (m *Monorepo) ImportAll(ctx context.Context, issues []*issue.Issue) (Report, error) {
	var (
		mu     sync.Mutex
		report Report
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, iss := range issues {
		iss := iss
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, created, err := m.Import(iss)

			mu.Lock()
			defer mu.Unlock()
			var verr *issue.ValidationError
			switch {
			case errors.As(err, &verr):
				report.Skipped++
				report.Problems = append(report.Problems, verr.Error())
				m.logger.Warn("skipping malformed issue", "issue", iss.ID, "err", verr)
				return nil
			case err != nil:
				report.Failed++
				return err
			case !created:
				report.Skipped++
				return nil
			default:
				report.Succeeded++
				return nil
			}
		})
	}

	err := g.Wait()
	return report, err
}
