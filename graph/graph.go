// Package graph implements an in-memory bidirected variation graph: nodes
// carrying DNA sequence, edges that may attach to either end of a node, and
// named paths through the graph. It answers the node, edge, sequence and
// path queries the mapper needs and extracts local subgraphs for alignment.
package graph

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dgryski/go-farm"
	"github.com/dkj/vg/biosimd"
	"github.com/grailbio/base/errors"
)

// NodeID identifies a node. Valid IDs are positive.
type NodeID int64

// Node is a graph node.
type Node struct {
	ID  NodeID
	Seq []byte
}

// Edge connects two node sides. Without flags it leaves the end of From and
// enters the start of To. FromStart makes it leave the start of From; ToEnd
// makes it enter the end of To.
type Edge struct {
	From, To  NodeID
	FromStart bool
	ToEnd     bool
}

// Canonical returns the representation of e under which equivalent edges
// compare equal: the same edge can be written in two directions.
func (e Edge) Canonical() Edge {
	flipped := Edge{From: e.To, To: e.From, FromStart: !e.ToEnd, ToEnd: !e.FromStart}
	if flipped.From < e.From || (flipped.From == e.From && !flipped.FromStart && e.FromStart) {
		return flipped
	}
	return e
}

// Handle is an oriented node.
type Handle struct {
	ID      NodeID
	Reverse bool
}

// Flip returns the handle on the opposite strand.
func (h Handle) Flip() Handle { return Handle{h.ID, !h.Reverse} }

// String prints the handle the way GFA paths do: ">id" or "<id".
func (h Handle) String() string {
	if h.Reverse {
		return fmt.Sprintf("<%d", h.ID)
	}
	return fmt.Sprintf(">%d", h.ID)
}

// NextHandles returns the handles reachable from the end of h, given the
// edges incident to h.ID.
func NextHandles(edges []Edge, h Handle) []Handle {
	var next []Handle
	for _, e := range edges {
		if e.From == h.ID && e.FromStart == h.Reverse {
			next = append(next, Handle{e.To, e.ToEnd})
		}
		if e.To == h.ID && e.ToEnd != h.Reverse {
			// Walking the edge backwards.
			next = append(next, Handle{e.From, !e.FromStart})
		}
	}
	return next
}

// PrevHandles returns the handles from whose end h is reachable.
func PrevHandles(edges []Edge, h Handle) []Handle {
	prev := NextHandles(edges, h.Flip())
	for i := range prev {
		prev[i] = prev[i].Flip()
	}
	return prev
}

// Pos is a single base in the graph: node, offset on the given strand.
// Offsets on the reverse strand count from the end of the node.
type Pos struct {
	Node    NodeID
	Offset  int
	Reverse bool
}

// IsEmpty reports whether p is the zero position, which names no base.
func (p Pos) IsEmpty() bool { return p.Node == 0 }

// Handle returns the oriented node of p.
func (p Pos) Handle() Handle { return Handle{p.Node, p.Reverse} }

// String prints p as "id:offset" with a leading '-' on the reverse strand.
func (p Pos) String() string {
	if p.Reverse {
		return fmt.Sprintf("-%d:%d", p.Node, p.Offset)
	}
	return fmt.Sprintf("%d:%d", p.Node, p.Offset)
}

// Less orders positions by node, strand, then offset.
func (p Pos) Less(o Pos) bool {
	if p.Node != o.Node {
		return p.Node < o.Node
	}
	if p.Reverse != o.Reverse {
		return !p.Reverse
	}
	return p.Offset < o.Offset
}

// ReversePos returns the same base seen from the opposite strand of a node of
// the given length.
func ReversePos(p Pos, nodeLen int) Pos {
	return Pos{Node: p.Node, Offset: nodeLen - p.Offset - 1, Reverse: !p.Reverse}
}

// Index is the set of graph queries the mapper depends on. Implementations
// must be safe for concurrent readers.
type Index interface {
	// HasNode reports whether the node exists.
	HasNode(id NodeID) bool
	// Sequence returns the forward sequence of the node. Callers must not
	// modify it.
	Sequence(id NodeID) []byte
	// Length returns the node's sequence length.
	Length(id NodeID) int
	// Edges returns the edges incident to a node, in either direction.
	Edges(id NodeID) []Edge
	// NodeStart returns the offset of the node in the linear projection of
	// the graph obtained by concatenating node sequences in ID order.
	NodeStart(id NodeID) int
	// NodeAt returns the node covering a position of the linear projection.
	NodeAt(seqPos int) NodeID
	// PositionsInPaths returns, per path name, the offsets at which the node
	// starts along that path.
	PositionsInPaths(id NodeID) map[string][]int
	// SeqLength is the total sequence length of all nodes.
	SeqLength() int
	// NodeCount is the number of nodes.
	NodeCount() int
	// ForEachNode calls fn for every node in ID order until fn returns false.
	ForEachNode(fn func(n Node) bool)
	// Fingerprint identifies the graph content.
	Fingerprint() uint64
}

type pathStep struct {
	name   string
	offset int
}

// Graph is a mutable in-memory graph. After construction, call Finish before
// using it as an Index. A finished Graph is safe for concurrent readers.
type Graph struct {
	nodes    map[NodeID][]byte
	edges    map[NodeID][]Edge
	edgeSet  map[Edge]struct{}
	paths    map[string][]Handle
	ids      []NodeID
	starts   []int // starts[i] is the linear offset of ids[i].
	startMap map[NodeID]int
	pathPos  map[NodeID][]pathStep
	seqLen   int
	fp       uint64
	finished bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   map[NodeID][]byte{},
		edges:   map[NodeID][]Edge{},
		edgeSet: map[Edge]struct{}{},
		paths:   map[string][]Handle{},
	}
}

// AddNode adds a node. IDs must be positive and unique.
func (g *Graph) AddNode(id NodeID, seq []byte) error {
	if id <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("graph: node id %d must be positive", id))
	}
	if _, ok := g.nodes[id]; ok {
		return errors.E(errors.Invalid, fmt.Sprintf("graph: duplicate node %d", id))
	}
	g.nodes[id] = append([]byte(nil), seq...)
	g.finished = false
	return nil
}

// AddEdge adds an edge between existing nodes. Duplicate edges are ignored.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("graph: edge from missing node %d", e.From))
	}
	if _, ok := g.nodes[e.To]; !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("graph: edge to missing node %d", e.To))
	}
	c := e.Canonical()
	if _, ok := g.edgeSet[c]; ok {
		return nil
	}
	g.edgeSet[c] = struct{}{}
	g.edges[c.From] = append(g.edges[c.From], c)
	if c.To != c.From {
		g.edges[c.To] = append(g.edges[c.To], c)
	}
	g.finished = false
	return nil
}

// AddPath records a named walk. Every step must name an existing node.
func (g *Graph) AddPath(name string, steps []Handle) error {
	for _, s := range steps {
		if _, ok := g.nodes[s.ID]; !ok {
			return errors.E(errors.NotExist, fmt.Sprintf("graph: path %s visits missing node %d", name, s.ID))
		}
	}
	g.paths[name] = append([]Handle(nil), steps...)
	g.finished = false
	return nil
}

// Finish computes the linear projection, path offsets and fingerprint.
func (g *Graph) Finish() {
	g.ids = g.ids[:0]
	for id := range g.nodes {
		g.ids = append(g.ids, id)
	}
	sort.Slice(g.ids, func(i, j int) bool { return g.ids[i] < g.ids[j] })
	g.starts = make([]int, len(g.ids))
	g.startMap = make(map[NodeID]int, len(g.ids))
	g.seqLen = 0
	for i, id := range g.ids {
		g.starts[i] = g.seqLen
		g.startMap[id] = g.seqLen
		g.seqLen += len(g.nodes[id])
	}

	names := make([]string, 0, len(g.paths))
	for name := range g.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	g.pathPos = map[NodeID][]pathStep{}
	for _, name := range names {
		off := 0
		for _, s := range g.paths[name] {
			g.pathPos[s.ID] = append(g.pathPos[s.ID], pathStep{name, off})
			off += len(g.nodes[s.ID])
		}
	}
	for _, es := range g.edges {
		sort.Slice(es, func(i, j int) bool { return edgeLess(es[i], es[j]) })
	}
	g.fp = g.fingerprint()
	g.finished = true
}

func edgeLess(a, b Edge) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	if a.To != b.To {
		return a.To < b.To
	}
	if a.FromStart != b.FromStart {
		return !a.FromStart
	}
	return !a.ToEnd && b.ToEnd
}

func (g *Graph) fingerprint() uint64 {
	var buf []byte
	var tmp [binary.MaxVarintLen64]byte
	for _, id := range g.ids {
		buf = append(buf, tmp[:binary.PutVarint(tmp[:], int64(id))]...)
		buf = append(buf, g.nodes[id]...)
		buf = append(buf, 0)
		for _, e := range g.edges[id] {
			if e.From != id {
				continue
			}
			buf = append(buf, tmp[:binary.PutVarint(tmp[:], int64(e.To))]...)
			var flags byte
			if e.FromStart {
				flags |= 1
			}
			if e.ToEnd {
				flags |= 2
			}
			buf = append(buf, flags)
		}
	}
	return farm.Fingerprint64(buf)
}

func (g *Graph) mustBeFinished() {
	if !g.finished {
		panic("graph: Finish must be called before queries")
	}
}

// HasNode implements Index.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Sequence implements Index.
func (g *Graph) Sequence(id NodeID) []byte { return g.nodes[id] }

// Length implements Index.
func (g *Graph) Length(id NodeID) int { return len(g.nodes[id]) }

// Edges implements Index.
func (g *Graph) Edges(id NodeID) []Edge { return g.edges[id] }

// NodeStart implements Index.
func (g *Graph) NodeStart(id NodeID) int {
	g.mustBeFinished()
	return g.startMap[id]
}

// NodeAt implements Index. Positions outside [0, SeqLength) are clamped.
func (g *Graph) NodeAt(seqPos int) NodeID {
	g.mustBeFinished()
	if len(g.ids) == 0 {
		return 0
	}
	i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] > seqPos }) - 1
	if i < 0 {
		i = 0
	}
	return g.ids[i]
}

// PositionsInPaths implements Index.
func (g *Graph) PositionsInPaths(id NodeID) map[string][]int {
	g.mustBeFinished()
	steps := g.pathPos[id]
	if len(steps) == 0 {
		return nil
	}
	r := map[string][]int{}
	for _, s := range steps {
		r[s.name] = append(r[s.name], s.offset)
	}
	return r
}

// SeqLength implements Index.
func (g *Graph) SeqLength() int {
	g.mustBeFinished()
	return g.seqLen
}

// NodeCount implements Index.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// ForEachNode implements Index.
func (g *Graph) ForEachNode(fn func(n Node) bool) {
	g.mustBeFinished()
	for _, id := range g.ids {
		if !fn(Node{id, g.nodes[id]}) {
			return
		}
	}
}

// Fingerprint implements Index.
func (g *Graph) Fingerprint() uint64 {
	g.mustBeFinished()
	return g.fp
}

// Path returns the steps of a named path.
func (g *Graph) Path(name string) []Handle { return g.paths[name] }

// PathNames returns the path names in sorted order.
func (g *Graph) PathNames() []string {
	names := make([]string, 0, len(g.paths))
	for name := range g.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Base returns the base at p on p's strand.
func Base(idx Index, p Pos) byte {
	seq := idx.Sequence(p.Node)
	if p.Reverse {
		return biosimd.Complement8(seq[len(seq)-p.Offset-1])
	}
	return seq[p.Offset]
}

// HandleSequence returns the sequence of a node read along the handle's
// strand.
func HandleSequence(idx Index, h Handle) []byte {
	seq := idx.Sequence(h.ID)
	if !h.Reverse {
		return seq
	}
	rc := make([]byte, len(seq))
	biosimd.ReverseComp8(rc, seq)
	return rc
}

// NextPositions returns the positions one base after p along p's strand.
func NextPositions(idx Index, p Pos) []Pos {
	if p.Offset+1 < idx.Length(p.Node) {
		return []Pos{{p.Node, p.Offset + 1, p.Reverse}}
	}
	var r []Pos
	for _, h := range NextHandles(idx.Edges(p.Node), p.Handle()) {
		r = append(r, Pos{h.ID, 0, h.Reverse})
	}
	return r
}
