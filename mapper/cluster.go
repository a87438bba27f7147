package mapper

import (
	"sort"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
	"github.com/willf/bitset"
)

// clusterExpansion scales the read distances between MEMs into graph
// distances when extracting the subgraph around a cluster, leaving room
// for indels.
const clusterExpansion = 1.61803

// clusterCoverage is the number of distinct read bases covered by the
// cluster's MEMs.
func clusterCoverage(cluster []MEM) int {
	seen := map[int]*bitset.BitSet{}
	for _, mem := range cluster {
		b := seen[mem.Fragment]
		if b == nil {
			b = bitset.New(uint(mem.End))
			seen[mem.Fragment] = b
		}
		for i := mem.Begin; i < mem.End; i++ {
			b.Set(uint(i))
		}
	}
	n := 0
	for _, b := range seen {
		n += int(b.Count())
	}
	return n
}

func clustersOverlap(c1, c2 []MEM) bool {
	for i := range c1 {
		for j := range c2 {
			if memsOverlap(&c1[i], &c2[j]) {
				return true
			}
		}
	}
	return false
}

// clustersToDrop flags each cluster that overlaps an earlier cluster
// covering more of the read, when its coverage is less than dropChain of
// the largest such cluster's.
func clustersToDrop(clusters [][]MEM, dropChain float64) *bitset.BitSet {
	drop := bitset.New(uint(len(clusters)))
	cov := make([]int, len(clusters))
	for i, c := range clusters {
		cov[i] = clusterCoverage(c)
	}
	for i := range clusters {
		t, l, b := cov[i], cov[i], -1
		for j := i - 1; j >= 0; j-- {
			if clustersOverlap(clusters[i], clusters[j]) && cov[j] > l {
				l, b = cov[j], j
			}
		}
		if b >= 0 && float64(t)/float64(l) < dropChain {
			drop.Set(uint(i))
		}
	}
	return drop
}

// clusterMappingQuality estimates mapping quality from the clusters alone.
// Each cluster is weighed by the fraction of the read its MEMs cover,
// each MEM discounted by its number of occurrences and by half the bases
// it shares with its neighbours. The quality is the phred-scaled ratio of
// the runner-up weight to the best, raised to the chance of picking the
// right one among equally weighted best clusters.
func clusterMappingQuality(clusters [][]MEM, readLength int, maxMQ float64) float64 {
	switch len(clusters) {
	case 0:
		return 0
	case 1:
		return maxMQ
	}
	weights := make([]float64, len(clusters))
	for c, cluster := range clusters {
		for i := range cluster {
			mem := &cluster[i]
			shared := 0
			if i > 0 {
				if prev := &cluster[i-1]; prev.Fragment == mem.Fragment && prev.End > mem.Begin {
					shared += prev.End - mem.Begin
				}
			}
			if i < len(cluster)-1 {
				if next := &cluster[i+1]; next.Fragment == mem.Fragment && mem.End > next.Begin {
					shared += mem.End - next.Begin
				}
			}
			weights[c] += ((float64(mem.Length()) - float64(shared)/2) / float64(readLength)) /
				float64(max(mem.MatchCount, 1))
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	if weights[0] == 0 {
		return 0
	}
	maxCount := 0
	for maxCount < len(weights) && weights[maxCount] == weights[0] {
		maxCount++
	}
	bestChance := 0.0
	if maxCount > 1 {
		bestChance = align.ProbToPhred(1 - 1/float64(maxCount))
	}
	q := align.ProbToPhred(weights[1] / weights[0])
	if bestChance > q {
		q = bestChance
	}
	if q > maxMQ {
		q = maxMQ
	}
	return q
}

// clusterSubgraph extracts the part of the graph the read is expected to
// align to, given its cluster: the context before the first MEM, walked on
// the opposite strand, and the context after each MEM up to the next one,
// or to the end of the read after the last.
func (w *Worker) clusterSubgraph(a align.Alignment, mems []MEM) *graph.Subgraph {
	s := graph.NewSubgraph()
	first := &mems[0]
	start := first.Positions[0]
	if before := int(float64(first.Begin) * clusterExpansion); before > 0 {
		w.graphContext(s, graph.ReversePos(start, w.g.Length(start.Node)), before)
	}
	for i := range mems {
		mem := &mems[i]
		span := len(a.Sequence) - mem.Begin
		if i+1 < len(mems) {
			span = max(mem.Length(), mems[i+1].Begin-mem.Begin)
		}
		w.graphContext(s, mem.Positions[0], int(clusterExpansion*float64(span)))
	}
	s.RemoveOrphanEdges()
	return s
}

// alignMaybeFlip aligns a, or its reverse complement when flip is set, to
// s. The score excludes the full-length bonus at soft clipped ends. A
// flipped result is mapped back onto the read's own orientation.
func (w *Worker) alignMaybeFlip(a align.Alignment, s *graph.Subgraph, flip bool) align.Alignment {
	if flip {
		a = align.ReverseComplement(a.Unaligned(), w.g)
	}
	r := w.aligner.Align(a, s, w.m.Opts.MaxQueryGraphRatio)
	r.Score = w.m.Opts.Scoring.WithoutFullLengthBonus(r)
	if flip {
		r = align.ReverseComplement(r, w.g)
	}
	return r
}

// AlignCluster realizes one cluster of MEMs: the read is aligned to the
// subgraph around the cluster on each strand the MEMs were found on, and
// the better alignment is returned. If neither strand aligns, the read is
// returned without a path.
func (w *Worker) AlignCluster(a align.Alignment, mems []MEM) align.Alignment {
	nFwd, nRev := 0, 0
	for i := range mems {
		if mems[i].Positions[0].Reverse {
			nRev++
		} else {
			nFwd++
		}
	}
	s := w.clusterSubgraph(a, mems)
	fwd, rev := a.Unaligned(), a.Unaligned()
	if nFwd > 0 {
		fwd = w.alignMaybeFlip(a, s, false)
	}
	if nRev > 0 {
		rev = w.alignMaybeFlip(a, s, true)
	}
	switch {
	case fwd.Score+rev.Score == 0:
		return a.Unaligned()
	case rev.Score > fwd.Score:
		return rev
	}
	return fwd
}
