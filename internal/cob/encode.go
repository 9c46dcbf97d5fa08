package cob

import (
	"fmt"
	"sort"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/identity"
	"github.com/opencollab/litemono/internal/issue"
)

// Assigner chooses the peer that authors a change on behalf of a source
// author. identity.Assignments is the production implementation.
type Assigner interface {
	Assign(authorID int64) (*identity.Identity, error)
}

// EncodedNode is one change node ready to write: the node, its canonical
// bytes, and its CID.
type EncodedNode struct {
	Node Node
	Data []byte
	CID  gocid.Cid
}

// Encoded is the full output of encoding one issue: nodes in causal write
// order and the resulting tip per peer.
type Encoded struct {
	ObjectID string
	Nodes    []EncodedNode
	Tips     map[string]gocid.Cid // peer DID -> tip
}

// EncodeIssue converts one issue into its change graph. Encoding is pure
// with respect to the issue and the assignment state: re-encoding the same
// issue with the same pool configuration yields byte-identical nodes.
//
// The creation node has no parents. Each comment node's parent is the
// previous node in chronological order as observed by the comment's assigned
// peer; a peer that has not yet observed the object links to the nearest
// prior node from any peer, so every peer's local chain is rooted and
// connected to the object's overall history. Comments sharing a timestamp
// are ordered by source id, never by wall clock alone.
func EncodeIssue(iss *issue.Issue, assign Assigner, objectID string) (*Encoded, error) {
	creator, err := assign.Assign(iss.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("assign issue author %d: %w", iss.AuthorID, err)
	}

	comments := make([]issue.Comment, len(iss.Comments))
	copy(comments, iss.Comments)
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})

	enc := &Encoded{
		ObjectID: objectID,
		Tips:     make(map[string]gocid.Cid),
	}

	var lastOverall string
	lastByPeer := make(map[string]string)

	appendNode := func(n Node) error {
		data, c, err := n.Encode()
		if err != nil {
			return err
		}
		enc.Nodes = append(enc.Nodes, EncodedNode{Node: n, Data: data, CID: c})
		cs := cidString(c)
		lastOverall = cs
		lastByPeer[n.Peer] = cs
		enc.Tips[n.Peer] = c
		return nil
	}

	// Root node: the issue's initial state, attributed to the creator's peer.
	root := Node{
		V:         1,
		Object:    objectID,
		Peer:      creator.DID,
		Op:        OpIssueCreate,
		Parents:   []string{},
		Timestamp: iss.CreatedAt.UTC(),
		Seq:       iss.ID,
		Payload: Payload{
			Title:    iss.Title,
			Body:     iss.Body,
			State:    "open",
			AuthorID: iss.AuthorID,
		},
	}
	if err := appendNode(root); err != nil {
		return nil, err
	}

	for _, c := range comments {
		peer, err := assign.Assign(c.AuthorID)
		if err != nil {
			return nil, fmt.Errorf("assign comment author %d: %w", c.AuthorID, err)
		}
		n := Node{
			V:         1,
			Object:    objectID,
			Peer:      peer.DID,
			Op:        OpCommentAdd,
			Parents:   parentsFor(peer.DID, lastByPeer, lastOverall),
			Timestamp: c.CreatedAt.UTC(),
			Seq:       c.ID,
			Payload: Payload{
				Body:      c.Body,
				CommentID: c.ID,
				AuthorID:  c.AuthorID,
			},
		}
		if err := appendNode(n); err != nil {
			return nil, err
		}
	}

	// Closed issues get a terminal state-transition node from the creator.
	if iss.State != "" && iss.State != "open" {
		n := Node{
			V:         1,
			Object:    objectID,
			Peer:      creator.DID,
			Op:        OpIssueState,
			Parents:   parentsFor(creator.DID, lastByPeer, lastOverall),
			Timestamp: iss.UpdatedAt.UTC(),
			Seq:       iss.ID,
			Payload:   Payload{State: iss.State},
		}
		if err := appendNode(n); err != nil {
			return nil, err
		}
	}

	return enc, nil
}

// parentsFor builds the causal parent set for a new node by the given peer:
// the peer's own previous node first, then the cross-peer link to the
// nearest prior node from any peer, deduplicated.
func parentsFor(peer string, lastByPeer map[string]string, lastOverall string) []string {
	own := lastByPeer[peer]
	if own == "" || own == lastOverall {
		return []string{lastOverall}
	}
	return []string{own, lastOverall}
}
