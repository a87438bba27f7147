package mapper

import (
	"container/heap"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cachedGraph is a graph.Index that keeps recently used node sequences,
// node starts, path positions and edges in fixed-size LRU caches. Eviction
// only affects speed.
type cachedGraph struct {
	graph.Index
	seqs   *lru.Cache[graph.NodeID, []byte]
	starts *lru.Cache[graph.NodeID, int]
	paths  *lru.Cache[graph.NodeID, map[string][]int]
	edges  *lru.Cache[graph.NodeID, []graph.Edge]
}

func newLRU[V any](size int) *lru.Cache[graph.NodeID, V] {
	if size < 1 {
		size = 1
	}
	c, err := lru.New[graph.NodeID, V](size)
	if err != nil {
		panic(err)
	}
	return c
}

func newCachedGraph(g graph.Index, size int) *cachedGraph {
	return &cachedGraph{
		Index:  g,
		seqs:   newLRU[[]byte](size),
		starts: newLRU[int](size),
		paths:  newLRU[map[string][]int](size),
		edges:  newLRU[[]graph.Edge](size),
	}
}

func (c *cachedGraph) Sequence(id graph.NodeID) []byte {
	if s, ok := c.seqs.Get(id); ok {
		return s
	}
	s := c.Index.Sequence(id)
	c.seqs.Add(id, s)
	return s
}

func (c *cachedGraph) Length(id graph.NodeID) int { return len(c.Sequence(id)) }

func (c *cachedGraph) NodeStart(id graph.NodeID) int {
	if s, ok := c.starts.Get(id); ok {
		return s
	}
	s := c.Index.NodeStart(id)
	c.starts.Add(id, s)
	return s
}

func (c *cachedGraph) PositionsInPaths(id graph.NodeID) map[string][]int {
	if p, ok := c.paths.Get(id); ok {
		return p
	}
	p := c.Index.PositionsInPaths(id)
	c.paths.Add(id, p)
	return p
}

func (c *cachedGraph) Edges(id graph.NodeID) []graph.Edge {
	if e, ok := c.edges.Get(id); ok {
		return e
	}
	e := c.Index.Edges(id)
	c.edges.Add(id, e)
	return e
}

// Worker maps reads for one goroutine at a time. It owns an aligner and a
// set of graph caches.
type Worker struct {
	m       *Mapper
	g       *cachedGraph
	aligner *align.Aligner
	// Stats counts the work done by this worker.
	Stats Stats
}

// NewWorker creates a worker. Create one per concurrent goroutine.
func (m *Mapper) NewWorker() *Worker {
	return &Worker{
		m:       m,
		g:       newCachedGraph(m.graph, m.Opts.CacheSize),
		aligner: align.NewAligner(m.Opts.Scoring),
	}
}

// nodeApproximatelyAt returns the node covering a linear position, clamped
// to the graph.
func (w *Worker) nodeApproximatelyAt(p int) graph.NodeID {
	n := w.g.SeqLength()
	if p >= n {
		p = n - 1
	}
	if p < 0 {
		p = 0
	}
	return w.g.NodeAt(p)
}

// approxPosition is the linear offset of a position on the forward strand.
func (w *Worker) approxPosition(p graph.Pos) int {
	if p.Reverse {
		p = graph.ReversePos(p, w.g.Length(p.Node))
	}
	return w.g.NodeStart(p.Node) + p.Offset
}

func (w *Worker) approxDistance(p1, p2 graph.Pos) int {
	return w.approxPosition(p1) - w.approxPosition(p2)
}

// approxAlignmentPosition is the linear offset of the alignment's first
// placed base, or -1.
func (w *Worker) approxAlignmentPosition(a align.Alignment) int {
	if !a.HasPath() || a.Path.Mappings[0].Position.IsEmpty() {
		return -1
	}
	return w.approxPosition(a.Path.Mappings[0].Position)
}

// ApproxFragmentLength is the linear distance between the starts of two
// alignments, or -1 if either is unplaced.
func (w *Worker) ApproxFragmentLength(a1, a2 align.Alignment) int {
	p1, p2 := w.approxAlignmentPosition(a1), w.approxAlignmentPosition(a2)
	if p1 == -1 || p2 == -1 {
		return -1
	}
	return abs(p1 - p2)
}

type handleDist struct {
	h graph.Handle
	d int
}

type handleHeap []handleDist

func (h handleHeap) Len() int            { return len(h) }
func (h handleHeap) Less(i, j int) bool  { return h[i].d < h[j].d }
func (h handleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *handleHeap) Push(x interface{}) { *h = append(*h, x.(handleDist)) }
func (h *handleHeap) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// GraphDistance is the number of bases walked forward from p1 to reach p2,
// or maxDist if p2 is not reached within maxDist bases.
func (w *Worker) GraphDistance(p1, p2 graph.Pos, maxDist int) int {
	if p1.Handle() == p2.Handle() && p2.Offset >= p1.Offset {
		return p2.Offset - p1.Offset
	}
	best := map[graph.Handle]int{}
	h := &handleHeap{}
	for _, n := range graph.NextHandles(w.g.Edges(p1.Node), p1.Handle()) {
		heap.Push(h, handleDist{n, w.g.Length(p1.Node) - p1.Offset})
	}
	for h.Len() > 0 {
		cur := heap.Pop(h).(handleDist)
		if cur.d >= maxDist {
			break
		}
		if d, ok := best[cur.h]; ok && d <= cur.d {
			continue
		}
		best[cur.h] = cur.d
		if cur.h == p2.Handle() {
			if d := cur.d + p2.Offset; d < maxDist {
				return d
			}
			return maxDist
		}
		next := cur.d + w.g.Length(cur.h.ID)
		for _, n := range graph.NextHandles(w.g.Edges(cur.h.ID), cur.h) {
			if d, ok := best[n]; !ok || next < d {
				heap.Push(h, handleDist{n, next})
			}
		}
	}
	return maxDist
}

// graphContext adds to s the nodes reached by walking forward from pos
// until at least length bases have been covered, with all their edges.
func (w *Worker) graphContext(s *graph.Subgraph, pos graph.Pos, length int) {
	seen := map[graph.Pos]bool{}
	nexts := []graph.Pos{pos}
	distance := -pos.Offset
	for len(nexts) > 0 {
		var todo []graph.Pos
		nextd := 0
		for _, next := range nexts {
			if seen[next] {
				continue
			}
			seen[next] = true
			seq := w.g.Sequence(next.Node)
			if nextd == 0 || len(seq) < nextd {
				nextd = len(seq)
			}
			s.AddNode(next.Node, seq)
			edges := w.g.Edges(next.Node)
			for _, e := range edges {
				s.AddEdge(e)
			}
			for _, h := range graph.NextHandles(edges, next.Handle()) {
				todo = append(todo, graph.Pos{Node: h.ID, Reverse: h.Reverse})
			}
		}
		distance += nextd
		if distance > length {
			break
		}
		nexts = todo
	}
}

// adjacent reports whether p2 immediately follows p1 in the graph.
func (w *Worker) adjacent(p1, p2 graph.Pos) bool {
	if p1.Node == p2.Node && p1.Reverse == p2.Reverse && p1.Offset+1 == p2.Offset {
		return true
	}
	for _, n := range graph.NextPositions(w.g, p1) {
		if n == p2 {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
