package graph

import "sort"

// Subgraph is a small, self-contained piece of a graph extracted around a
// read's candidate location. It is the target handed to the aligner.
type Subgraph struct {
	nodes map[NodeID][]byte
	edges map[Edge]struct{}
}

// NewSubgraph creates an empty subgraph.
func NewSubgraph() *Subgraph {
	return &Subgraph{nodes: map[NodeID][]byte{}, edges: map[Edge]struct{}{}}
}

// AddNode adds a node if it is not present yet. seq is shared, not copied.
func (s *Subgraph) AddNode(id NodeID, seq []byte) {
	if _, ok := s.nodes[id]; !ok {
		s.nodes[id] = seq
	}
}

// HasNode reports whether the node was added.
func (s *Subgraph) HasNode(id NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

// Sequence returns a node's forward sequence, or nil.
func (s *Subgraph) Sequence(id NodeID) []byte { return s.nodes[id] }

// AddEdge adds an edge; its endpoints need not be present yet.
func (s *Subgraph) AddEdge(e Edge) { s.edges[e.Canonical()] = struct{}{} }

// HasEdge reports whether the edge, in either direction, is present.
func (s *Subgraph) HasEdge(e Edge) bool {
	_, ok := s.edges[e.Canonical()]
	return ok
}

// RemoveOrphanEdges drops edges with an endpoint outside the node set.
func (s *Subgraph) RemoveOrphanEdges() {
	for e := range s.edges {
		if !s.HasNode(e.From) || !s.HasNode(e.To) {
			delete(s.edges, e)
		}
	}
}

// Merge adds the nodes and edges of o to s.
func (s *Subgraph) Merge(o *Subgraph) {
	for id, seq := range o.nodes {
		s.AddNode(id, seq)
	}
	for e := range o.edges {
		s.edges[e] = struct{}{}
	}
}

// NodeCount returns the number of nodes.
func (s *Subgraph) NodeCount() int { return len(s.nodes) }

// Length returns the total sequence length of the nodes.
func (s *Subgraph) Length() int {
	n := 0
	for _, seq := range s.nodes {
		n += len(seq)
	}
	return n
}

// NodeIDs returns the node IDs in ascending order.
func (s *Subgraph) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EdgeList returns the edges in a deterministic order.
func (s *Subgraph) EdgeList() []Edge {
	es := make([]Edge, 0, len(s.edges))
	for e := range s.edges {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return edgeLess(es[i], es[j]) })
	return es
}

// Neighborhood extracts the nodes within the given number of edge hops of
// id, together with all edges between them.
func Neighborhood(idx Index, id NodeID, hops int) *Subgraph {
	s := NewSubgraph()
	if !idx.HasNode(id) {
		return s
	}
	s.AddNode(id, idx.Sequence(id))
	frontier := []NodeID{id}
	for h := 0; h < hops && len(frontier) > 0; h++ {
		var next []NodeID
		for _, n := range frontier {
			for _, e := range idx.Edges(n) {
				s.AddEdge(e)
				for _, o := range [2]NodeID{e.From, e.To} {
					if !s.HasNode(o) {
						s.AddNode(o, idx.Sequence(o))
						next = append(next, o)
					}
				}
			}
		}
		frontier = next
	}
	for _, n := range s.NodeIDs() {
		for _, e := range idx.Edges(n) {
			s.AddEdge(e)
		}
	}
	s.RemoveOrphanEdges()
	return s
}
