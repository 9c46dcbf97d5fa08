// Package cob implements collaborative objects: immutable, content-addressed
// change nodes forming a causal DAG per object, and the deterministic merge
// that materializes an object's state from all peers' views of it.
package cob

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	gocid "github.com/ipfs/go-cid"

	"github.com/opencollab/litemono/internal/store"
)

// KindIssue is the object kind under which imported issues live in the
// reference namespace.
const KindIssue = "issue"

// Op identifies what a change node does to its object.
type Op string

const (
	OpIssueCreate Op = "issue.create"
	OpCommentAdd  Op = "comment.add"
	OpIssueState  Op = "issue.state"
)

// Payload carries the operation data. Exactly the fields for the node's op
// are set; everything else stays at its zero value and is omitted from the
// canonical encoding.
type Payload struct {
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	State     string `json:"state,omitempty"`
	CommentID int64  `json:"comment_id,omitempty"`
	AuthorID  int64  `json:"author_id,omitempty"`
}

// Node is one immutable change in an object's history. Nodes are hashed over
// their canonical JSON encoding; the resulting CID is the node's identity.
// Parents are the causal predecessors: empty for the object's root node,
// otherwise the assigned peer's previous node plus a cross-peer link to the
// chronologically previous node from any peer.
type Node struct {
	V         int       `json:"v"`
	Object    string    `json:"object"`
	Peer      string    `json:"peer"`
	Op        Op        `json:"op"`
	Parents   []string  `json:"parents"` // base32 CID strings, never nil
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"` // source-provided sequence id
	Payload   Payload   `json:"payload"`
}

// Encode returns the canonical bytes and CID of the node.
func (n *Node) Encode() ([]byte, gocid.Cid, error) {
	if n.Parents == nil {
		n.Parents = []string{}
	}
	data, err := store.CanonicalJSON(n)
	if err != nil {
		return nil, gocid.Undef, fmt.Errorf("encode change node: %w", err)
	}
	c, err := store.ComputeCID(data)
	if err != nil {
		return nil, gocid.Undef, err
	}
	return data, c, nil
}

// DecodeNode parses a stored change node.
func DecodeNode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal change node: %w", err)
	}
	if n.Parents == nil {
		n.Parents = []string{}
	}
	return &n, nil
}

func cidString(c gocid.Cid) string {
	return store.CIDToString(c)
}

// DeriveObjectID computes the stable object id for an issue: hex SHA-256 of
// "<owner>/<repo>#<issue id>". Stable derivation is what makes re-import of
// an interrupted batch idempotent.
func DeriveObjectID(repo string, issueID int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", repo, issueID)))
	return hex.EncodeToString(h[:])
}
