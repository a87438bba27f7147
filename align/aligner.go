package align

import (
	"sort"

	"github.com/dkj/vg/graph"
	"github.com/grailbio/base/log"
)

const negInf = int32(-1 << 29)

// column is one graph base in the DP: a row of the score matrices.
type column struct {
	node   graph.NodeID
	offset int
	base   byte
	preds  []int32
}

// Aligner performs local affine-gap alignment of reads against the forward
// strands of a subgraph. The subgraph is treated as a DAG: nodes are visited
// in topological order and edges that would close a cycle or switch strand
// are ignored. An Aligner reuses its buffers between calls and must not be
// shared between goroutines.
type Aligner struct {
	Scoring
	h, e, f matrix
	cols    []column
}

// NewAligner returns an aligner using the given scores.
func NewAligner(s Scoring) *Aligner {
	return &Aligner{Scoring: s}
}

// Align returns the best local alignment of a.Sequence to g. A gap of
// length L costs GapOpen + (L-1)*GapExtension. The full-length bonus is
// added for each read end reached by the alignment and is included in the
// returned score. If maxQueryGraphRatio > 0 and the graph is more than that
// many times longer than the read, or nothing aligns with a positive score,
// the result has no path.
func (al *Aligner) Align(a Alignment, g *graph.Subgraph, maxQueryGraphRatio int) Alignment {
	r := a.Unaligned()
	read := a.Sequence
	n := len(read)
	if n == 0 || g.NodeCount() == 0 {
		return r
	}
	if maxQueryGraphRatio > 0 && g.Length() > maxQueryGraphRatio*n {
		log.Debug.Printf("align %s: graph of %d bases exceeds %dx read length %d",
			a.Name, g.Length(), maxQueryGraphRatio, n)
		return r
	}
	al.layout(g)
	nc := len(al.cols)
	al.h.reset(nc, n+1)
	al.e.reset(nc, n+1)
	al.f.reset(nc, n+1)

	open, ext := int32(al.GapOpen), int32(al.GapExtension)
	bonus := int32(al.FullLengthBonus)
	var (
		best         int32
		bestC, bestJ = -1, -1
	)
	for c := range al.cols {
		col := &al.cols[c]
		al.h.set(c, 0, 0)
		al.e.set(c, 0, negInf)
		al.f.set(c, 0, negInf)
		for j := 1; j <= n; j++ {
			start := int32(0)
			if j == 1 {
				start = bonus
			}
			for _, p := range col.preds {
				if v := al.h.at(int(p), j-1); v > start {
					start = v
				}
			}
			v := start + al.base(read[j-1], col.base)

			e := max32(al.h.at(c, j-1)-open, al.e.at(c, j-1)-ext)
			f := negInf
			for _, p := range col.preds {
				f = max32(f, max32(al.h.at(int(p), j)-open, al.f.at(int(p), j)-ext))
			}
			al.e.set(c, j, e)
			al.f.set(c, j, f)
			v = max32(v, max32(e, f))
			if v < 0 {
				v = 0
			}
			al.h.set(c, j, v)

			total := v
			if j == n && v > 0 {
				total += bonus
			}
			if total > best {
				best, bestC, bestJ = total, c, j
			}
		}
	}
	if best <= 0 {
		return r
	}
	r.Path = al.traceback(read, bestC, bestJ)
	r.Score = int(best)
	r.Identity = Identity(r.Path)
	return r
}

// layout orders the subgraph's bases topologically and records each base's
// predecessors.
func (al *Aligner) layout(g *graph.Subgraph) {
	ids := g.NodeIDs()
	succ := map[graph.NodeID][]graph.NodeID{}
	indeg := map[graph.NodeID]int{}
	for _, e := range g.EdgeList() {
		var from, to graph.NodeID
		switch {
		case !e.FromStart && !e.ToEnd:
			from, to = e.From, e.To
		case e.FromStart && e.ToEnd:
			from, to = e.To, e.From
		default:
			continue
		}
		if from == to {
			continue
		}
		succ[from] = append(succ[from], to)
		indeg[to]++
	}

	var order []graph.NodeID
	done := map[graph.NodeID]bool{}
	var ready []graph.NodeID
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	for len(order) < len(ids) {
		if len(ready) == 0 {
			// A cycle: break it at the smallest remaining node.
			for _, id := range ids {
				if !done[id] {
					ready = append(ready, id)
					break
				}
			}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		if done[id] {
			continue
		}
		done[id] = true
		order = append(order, id)
		for _, s := range succ[id] {
			indeg[s]--
			if indeg[s] == 0 && !done[s] {
				ready = append(ready, s)
			}
		}
	}

	pred := map[graph.NodeID][]graph.NodeID{}
	for from, tos := range succ {
		for _, to := range tos {
			pred[to] = append(pred[to], from)
		}
	}
	last := map[graph.NodeID]int32{}
	al.cols = al.cols[:0]
	for _, id := range order {
		seq := g.Sequence(id)
		for k, b := range seq {
			col := column{node: id, offset: k, base: b}
			if k > 0 {
				col.preds = []int32{int32(len(al.cols) - 1)}
			} else {
				for _, p := range pred[id] {
					if l, ok := last[p]; ok {
						col.preds = append(col.preds, l)
					}
				}
			}
			al.cols = append(al.cols, col)
		}
		if len(seq) > 0 {
			last[id] = int32(len(al.cols) - 1)
		}
	}
}

type opKind uint8

const (
	opMatch opKind = iota
	opSub
	opIns
	opDel
)

type op struct {
	kind opKind
	col  int // graph base, for opMatch, opSub and opDel
	read int // read base, for opMatch, opSub and opIns
}

const (
	stateH = iota
	stateE
	stateF
)

// traceback recovers the path ending at (c, j) in H.
func (al *Aligner) traceback(read []byte, c, j int) Path {
	var ops []op
	end := j
	state := stateH
	open, ext := int32(al.GapOpen), int32(al.GapExtension)
	bonus := int32(al.FullLengthBonus)
	start := -1
	for start < 0 {
		switch state {
		case stateH:
			v := al.h.at(c, j)
			if v == al.e.at(c, j) {
				state = stateE
				continue
			}
			if v == al.f.at(c, j) {
				state = stateF
				continue
			}
			col := &al.cols[c]
			s := al.base(read[j-1], col.base)
			kind := opSub
			if read[j-1] == col.base {
				kind = opMatch
			}
			ops = append(ops, op{kind: kind, col: c, read: j - 1})
			fresh := int32(0)
			if j == 1 {
				fresh = bonus
			}
			if fresh+s == v {
				start = j - 1
				break
			}
			found := false
			for _, p := range col.preds {
				if al.h.at(int(p), j-1)+s == v {
					c, j, found = int(p), j-1, true
					break
				}
			}
			if !found {
				log.Panicf("align: traceback lost at column %d, read %d: %v", c, j, &al.h)
			}
		case stateE:
			v := al.e.at(c, j)
			ops = append(ops, op{kind: opIns, col: c, read: j - 1})
			if al.h.at(c, j-1)-open == v {
				state = stateH
			}
			j--
		case stateF:
			v := al.f.at(c, j)
			ops = append(ops, op{kind: opDel, col: c})
			found := false
			for _, p := range al.cols[c].preds {
				if al.h.at(int(p), j)-open == v {
					c, state, found = int(p), stateH, true
					break
				}
				if al.f.at(int(p), j)-ext == v {
					c, state, found = int(p), stateF, true
					break
				}
			}
			if !found {
				log.Panicf("align: deletion traceback lost at column %d, read %d: %v", c, j, &al.h)
			}
		}
	}
	for i, k := 0, len(ops)-1; i < k; i, k = i+1, k-1 {
		ops[i], ops[k] = ops[k], ops[i]
	}
	return al.opsToPath(read, ops, start, end)
}

func (al *Aligner) opsToPath(read []byte, ops []op, start, end int) Path {
	var p Path
	lastCol := -2
	for _, o := range ops {
		if o.kind != opIns {
			col := al.cols[o.col]
			if len(p.Mappings) == 0 || o.col != lastCol+1 || col.node != al.cols[lastCol].node {
				p.Mappings = append(p.Mappings, Mapping{Position: graph.Pos{Node: col.node, Offset: col.offset}})
			}
		}
		m := &p.Mappings[len(p.Mappings)-1]
		switch o.kind {
		case opMatch:
			m.Edits = append(m.Edits, Edit{FromLength: 1, ToLength: 1})
		case opSub:
			m.Edits = append(m.Edits, Edit{FromLength: 1, ToLength: 1, Sequence: string(read[o.read])})
		case opIns:
			m.Edits = append(m.Edits, Edit{ToLength: 1, Sequence: string(read[o.read])})
		case opDel:
			m.Edits = append(m.Edits, Edit{FromLength: 1})
		}
		if o.kind != opIns {
			lastCol = o.col
		}
	}
	if start > 0 {
		m := &p.Mappings[0]
		m.Edits = append([]Edit{{ToLength: start, Sequence: string(read[:start])}}, m.Edits...)
	}
	if end < len(read) {
		m := &p.Mappings[len(p.Mappings)-1]
		m.Edits = append(m.Edits, Edit{ToLength: len(read) - end, Sequence: string(read[end:])})
	}
	return SimplifyPath(p)
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
