package cob

import (
	"time"
)

// GraphNode is one change node in a graph description, for diagnostic and
// visualization consumers.
type GraphNode struct {
	CID       string    `json:"cid"`
	Peer      string    `json:"peer"`
	Op        Op        `json:"op"`
	Parents   []string  `json:"parents"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// GraphEdge points from a node to one of its causal parents.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphDescription is the structural view of one object's change graph:
// node list in merge order, parent edges, and per-peer tips. It carries no
// payload bodies; an external renderer fetches those if it wants them.
type GraphDescription struct {
	Object string            `json:"object"`
	Nodes  []GraphNode       `json:"nodes"`
	Edges  []GraphEdge       `json:"edges"`
	Tips   map[string]string `json:"tips"` // peer DID -> tip CID
}

// DescribeGraph builds the description of a fetched node set.
func DescribeGraph(objectID string, nodes map[string]*Node, tips map[string]string) (*GraphDescription, error) {
	order, err := MergeOrder(nodes)
	if err != nil {
		return nil, err
	}

	desc := &GraphDescription{
		Object: objectID,
		Nodes:  make([]GraphNode, 0, len(order)),
		Edges:  []GraphEdge{},
		Tips:   tips,
	}
	for _, cs := range order {
		n := nodes[cs]
		desc.Nodes = append(desc.Nodes, GraphNode{
			CID:       cs,
			Peer:      n.Peer,
			Op:        n.Op,
			Parents:   n.Parents,
			Timestamp: n.Timestamp,
			Seq:       n.Seq,
		})
		for _, p := range n.Parents {
			desc.Edges = append(desc.Edges, GraphEdge{From: cs, To: p})
		}
	}
	return desc, nil
}
