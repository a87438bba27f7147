package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/dkj/vg/graph"
	"github.com/willf/bitset"
)

// Transition is the result of weighing a move between two MEMs in the
// chain model: either forbidden or a weight.
type Transition struct {
	Weight  float64
	allowed bool
}

// Forbidden is the transition that cannot be taken.
var Forbidden = Transition{}

// Weight returns an allowed transition of weight w.
func Weight(w float64) Transition { return Transition{Weight: w, allowed: true} }

// Allowed reports whether the transition may be taken.
func (t Transition) Allowed() bool { return t.allowed }

// TransitionFunc weighs the move from MEM a to MEM b, where a precedes b
// by fragment and then by read offset. Each MEM has exactly one position.
type TransitionFunc func(a, b *MEM) Transition

type chainEdge struct {
	from   int
	weight float64
	masked bool
}

type chainVertex struct {
	mem      MEM
	weight   float64
	score    float64
	prev     int
	position int
	in       []chainEdge
	nOut     int
}

// bucket holds the vertices at one approximate position.
type bucket struct {
	pos int
	vs  []int
}

func (b *bucket) Compare(c llrb.Comparable) int { return b.pos - c.(*bucket).pos }

// ChainModel chains the occurrences of MEMs from one or two reads into
// clusters. Vertices live in one slice and refer to each other by index.
type ChainModel struct {
	vertices  []chainVertex
	buckets   llrb.Tree
	redundant *bitset.BitSet
}

func memsOverlap(a, b *MEM) bool {
	return a.Fragment == b.Fragment && !(a.End <= b.Begin || b.End <= a.Begin)
}

func memsOverlapLength(a, b *MEM) int {
	if !memsOverlap(a, b) {
		return 0
	}
	return min(a.End, b.End) - max(a.Begin, b.Begin)
}

// NewChainModel builds a chain model over the MEMs of each read in
// memSets; the i'th set is tagged as fragment i+1. readLengths holds the
// length of each read. position maps a graph position to a linear
// coordinate; vertices are connected only when their coordinates differ by
// less than bandWidth. At most positionDepth of the longest MEMs are kept
// per coordinate and each vertex gets at most maxConnections edges each
// way.
func NewChainModel(readLengths []int, memSets [][]MEM, position func(graph.Pos) int,
	transition TransitionFunc, bandWidth, positionDepth, maxConnections int) *ChainModel {
	c := &ChainModel{}
	if bandWidth < 1 {
		bandWidth = 1
	}
	for f, mems := range memSets {
		for _, mem := range mems {
			for _, p := range mem.Positions {
				v := chainVertex{mem: mem, weight: float64(mem.Length()), prev: -1, position: position(p)}
				v.mem.Positions = []graph.Pos{p}
				v.mem.Fragment = f + 1
				c.vertices = append(c.vertices, v)
			}
		}
	}
	c.redundant = bitset.New(uint(len(c.vertices)))
	for i := range c.vertices {
		key := &bucket{pos: c.vertices[i].position}
		if b := c.buckets.Get(key); b != nil {
			b.(*bucket).vs = append(b.(*bucket).vs, i)
		} else {
			key.vs = []int{i}
			c.buckets.Insert(key)
		}
	}
	c.buckets.Do(func(x llrb.Comparable) bool {
		b := x.(*bucket)
		sort.SliceStable(b.vs, func(i, j int) bool {
			return c.vertices[b.vs[i]].mem.Length() > c.vertices[b.vs[j]].mem.Length()
		})
		if len(b.vs) > positionDepth {
			for _, v := range b.vs[positionDepth:] {
				c.redundant.Set(uint(v))
			}
			b.vs = b.vs[:positionDepth]
		}
		return false
	})

	// A MEM that is a shorter copy of an overlapping one, shifted along the
	// read by exactly its shift along the graph, is the same match.
	merge := func(p, q *bucket) {
		for _, i := range p.vs {
			if c.redundant.Test(uint(i)) {
				continue
			}
			v1 := &c.vertices[i]
			for _, j := range q.vs {
				if c.redundant.Test(uint(j)) {
					continue
				}
				v2 := &c.vertices[j]
				if memsOverlap(&v1.mem, &v2.mem) && abs(v2.mem.Begin-v1.mem.Begin) == abs(q.pos-p.pos) &&
					v2.mem.Length() < v1.mem.Length() {
					c.redundant.Set(uint(j))
					if v2.mem.End > v1.mem.End {
						v1.weight += float64(v2.mem.End - v1.mem.End)
					}
				}
			}
		}
	}
	c.buckets.Do(func(x llrb.Comparable) bool {
		p := x.(*bucket)
		c.buckets.DoRange(func(y llrb.Comparable) bool {
			merge(p, y.(*bucket))
			return false
		}, &bucket{pos: p.pos + 1}, &bucket{pos: p.pos + bandWidth})
		return false
	})
	c.buckets.DoReverse(func(x llrb.Comparable) bool {
		p := x.(*bucket)
		c.buckets.DoRangeReverse(func(y llrb.Comparable) bool {
			merge(p, y.(*bucket))
			return false
		}, &bucket{pos: p.pos - 1}, &bucket{pos: p.pos - bandWidth})
		return false
	})

	c.buckets.Do(func(x llrb.Comparable) bool {
		p := x.(*bucket)
		c.buckets.DoRange(func(y llrb.Comparable) bool {
			q := y.(*bucket)
			for _, i := range p.vs {
				if c.redundant.Test(uint(i)) {
					continue
				}
				for _, j := range q.vs {
					if c.redundant.Test(uint(j)) {
						continue
					}
					c.connect(i, j, transition, maxConnections)
				}
			}
			return false
		}, &bucket{pos: p.pos + 1}, &bucket{pos: p.pos + bandWidth})
		return false
	})
	return c
}

// connect adds the edge between vertices i and j, oriented from the one
// earlier in (fragment, begin) order, if the transition is allowed.
func (c *ChainModel) connect(i, j int, transition TransitionFunc, maxConnections int) {
	v1, v2 := &c.vertices[i], &c.vertices[j]
	if v1.nOut >= maxConnections || len(v2.in) >= maxConnections {
		return
	}
	m1, m2 := &v1.mem, &v2.mem
	var from, to int
	switch {
	case m1.Fragment < m2.Fragment || (m1.Fragment == m2.Fragment && m1.Begin < m2.Begin):
		from, to = i, j
	case m1.Fragment > m2.Fragment || (m1.Fragment == m2.Fragment && m1.Begin > m2.Begin):
		from, to = j, i
	default:
		return
	}
	t := transition(&c.vertices[from].mem, &c.vertices[to].mem)
	if !t.Allowed() {
		return
	}
	c.vertices[from].nOut++
	c.vertices[to].in = append(c.vertices[to].in, chainEdge{from: from, weight: t.Weight})
}

// score computes best-path scores in vertex order, which is topological
// because edges only go forward in (fragment, begin) order. Excluded
// vertices score 0 and are not extended.
func (c *ChainModel) score(exclude *bitset.BitSet) {
	for i := range c.vertices {
		c.vertices[i].score = 0
		c.vertices[i].prev = -1
	}
	for i := range c.vertices {
		if exclude.Test(uint(i)) {
			continue
		}
		v := &c.vertices[i]
		v.score = v.weight
		for _, e := range v.in {
			if e.masked || exclude.Test(uint(e.from)) {
				continue
			}
			if s := v.weight + e.weight + c.vertices[e.from].score; s > v.score {
				v.prev = e.from
				v.score = s
			}
		}
	}
}

func (c *ChainModel) maxVertex() int {
	best := -1
	for i := range c.vertices {
		if best < 0 || c.vertices[i].score > c.vertices[best].score {
			best = i
		}
	}
	return best
}

// Traceback returns up to k clusters, best first. Each cluster is the
// list of MEMs, one position each, along a best-scoring path. After each
// path is taken, its edges are masked; unpaired, its vertices are also
// excluded. Paired, single-vertex paths are excluded and edges between
// path members of different fragments are masked.
func (c *ChainModel) Traceback(k int, paired bool) [][]MEM {
	var traces [][]MEM
	exclude := c.redundant.Clone()
	for len(traces) < k {
		c.score(exclude)
		best := c.maxVertex()
		if best < 0 || c.vertices[best].score == 0 {
			break
		}
		var trace []int
		for v := best; v >= 0; v = c.vertices[v].prev {
			trace = append(trace, v)
		}
		for i, j := 0, len(trace)-1; i < j; i, j = i+1, j-1 {
			trace[i], trace[j] = trace[j], trace[i]
		}
		if paired && len(trace) == 1 {
			exclude.Set(uint(trace[0]))
		}
		members := map[int]bool{}
		if paired {
			for _, v := range trace {
				members[v] = true
			}
		}
		mems := make([]MEM, 0, len(trace))
		for n, v := range trace {
			vertex := &c.vertices[v]
			if !paired {
				exclude.Set(uint(v))
			}
			if n > 0 {
				prev := trace[n-1]
				for e := range vertex.in {
					in := &vertex.in[e]
					if in.from == prev {
						in.masked = true
					} else if paired && members[in.from] && c.vertices[in.from].mem.Fragment != vertex.mem.Fragment {
						in.masked = true
					}
				}
			}
			mems = append(mems, vertex.mem)
		}
		traces = append(traces, mems)
	}
	return traces
}

// String prints the model for debugging.
func (c *ChainModel) String() string {
	var b strings.Builder
	for i, v := range c.vertices {
		fmt.Fprintf(&b, "%d %v frag=%d pos=%d w=%.1f score=%.1f", i, v.mem, v.mem.Fragment, v.position, v.weight, v.score)
		if c.redundant.Test(uint(i)) {
			b.WriteString(" redundant")
		}
		b.WriteString(" prev:")
		for _, e := range v.in {
			if !e.masked {
				fmt.Fprintf(&b, " %d:%.2f", e.from, e.weight)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
