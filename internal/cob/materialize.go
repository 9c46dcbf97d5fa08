package cob

import (
	"fmt"
	"sort"
	"time"
)

// State is the materialized, application-readable representation of a
// collaborative object: the deterministic merge of every change node
// reachable from all peers' references to it.
type State struct {
	Object    string         `json:"object"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	State     string         `json:"state"`
	Author    string         `json:"author"` // creator peer DID
	CreatedAt time.Time      `json:"created_at"`
	Comments  []CommentState `json:"comments"`
}

// CommentState is one comment in merge order.
type CommentState struct {
	ID        int64     `json:"id"`
	Peer      string    `json:"peer"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Materialize merges a node set into the object's state. Nodes are applied
// in topological order; ties among concurrent nodes (no ancestor
// relationship) break by (peer, node CID) so repeated materializations are
// identical regardless of traversal order.
func Materialize(objectID string, nodes map[string]*Node) (*State, error) {
	order, err := MergeOrder(nodes)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", objectID, err)
	}

	st := &State{
		Object:   objectID,
		Comments: []CommentState{},
	}
	for _, cs := range order {
		n := nodes[cs]
		switch n.Op {
		case OpIssueCreate:
			st.Title = n.Payload.Title
			st.Body = n.Payload.Body
			st.State = n.Payload.State
			st.Author = n.Peer
			st.CreatedAt = n.Timestamp
		case OpCommentAdd:
			st.Comments = append(st.Comments, CommentState{
				ID:        n.Payload.CommentID,
				Peer:      n.Peer,
				Body:      n.Payload.Body,
				CreatedAt: n.Timestamp,
			})
		case OpIssueState:
			st.State = n.Payload.State
		default:
			return nil, fmt.Errorf("object %s: unknown op %q in node %s", objectID, n.Op, cs)
		}
	}
	return st, nil
}

// MergeOrder returns the CIDs of the node set in deterministic causal order:
// Kahn's algorithm with the ready set kept sorted by (peer, CID).
func MergeOrder(nodes map[string]*Node) ([]string, error) {
	// Children adjacency and in-degree over parents present in the set.
	children := make(map[string][]string, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for cs, n := range nodes {
		if _, ok := indegree[cs]; !ok {
			indegree[cs] = 0
		}
		for _, p := range n.Parents {
			if _, ok := nodes[p]; !ok {
				continue // parent outside the fetched set; treated as satisfied
			}
			children[p] = append(children[p], cs)
			indegree[cs]++
		}
	}

	var ready []string
	for cs, d := range indegree {
		if d == 0 {
			ready = append(ready, cs)
		}
	}

	less := func(a, b string) bool {
		na, nb := nodes[a], nodes[b]
		if na.Peer != nb.Peer {
			return na.Peer < nb.Peer
		}
		return a < b
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		cs := ready[0]
		ready = ready[1:]
		order = append(order, cs)
		for _, child := range children[cs] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("change graph contains a cycle (%d of %d nodes ordered)", len(order), len(nodes))
	}
	return order, nil
}
