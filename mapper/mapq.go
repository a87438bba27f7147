package mapper

import (
	"math"

	"github.com/dkj/vg/align"
)

// queryOverlap is the number of read bases aligned, rather than soft
// clipped, in both alignments.
func queryOverlap(a1, a2 align.Alignment) int {
	b1, e1 := align.SoftclipStart(a1), len(a1.Sequence)-align.SoftclipEnd(a1)
	b2, e2 := align.SoftclipStart(a2), len(a2.Sequence)-align.SoftclipEnd(a2)
	if n := min(e1, e2) - max(b1, b2); n > 0 {
		return n
	}
	return 0
}

// subOverlapsOfFirst counts the alignments after the first that share at
// least fraction of the read's aligned bases with the first.
func subOverlapsOfFirst(alns []align.Alignment, fraction float64) int {
	if len(alns) == 0 || len(alns[0].Sequence) == 0 {
		return 0
	}
	n := 0
	for _, a := range alns[1:] {
		if float64(queryOverlap(alns[0], a))/float64(len(alns[0].Sequence)) >= fraction {
			n++
		}
	}
	return n
}

func (w *Worker) mqOpts(clusterMQ float64) (align.MQOpts, bool) {
	o := align.MQOpts{ClusterMQ: clusterMQ, UseClusterMQ: w.m.Opts.UseClusterMQ}
	switch w.m.Opts.MappingQualityMethod {
	case Approx:
		o.Approx = true
	case Exact:
	default:
		return o, false
	}
	return o, true
}

// computeMappingQualities sets the mapping quality of the best of the
// score-sorted alignments, capped at MaxMappingQuality and folded towards
// estimate, the most the read's MEMs could support.
func (w *Worker) computeMappingQualities(alns []align.Alignment, clusterMQ, estimate float64) {
	if len(alns) == 0 {
		return
	}
	o, ok := w.mqOpts(clusterMQ)
	if !ok {
		return
	}
	overlaps := subOverlapsOfFirst(alns, w.m.Opts.MQOverlap)
	w.m.quality.ComputeMappingQuality(alns, float64(w.m.Opts.MaxMappingQuality), o, overlaps, estimate)
}

// computePairedMappingQualities is computeMappingQualities over
// index-aligned lists of mate alignments.
func (w *Worker) computePairedMappingQualities(alns1, alns2 []align.Alignment, clusterMQ, estimate1, estimate2 float64) {
	if len(alns1) == 0 || len(alns2) == 0 {
		return
	}
	o, ok := w.mqOpts(clusterMQ)
	if !ok {
		return
	}
	maxMQ := float64(w.m.Opts.MaxMappingQuality)
	w.m.quality.ComputePairedMappingQuality(alns1, alns2, maxMQ, maxMQ, o,
		subOverlapsOfFirst(alns1, w.m.Opts.MQOverlap), subOverlapsOfFirst(alns2, w.m.Opts.MQOverlap),
		estimate1, estimate2)
}

// maybeMappingQuality bounds the mapping quality a read can get from the
// sparsity of its MEMs: the read length over its longest located primary
// MEM estimates the differences needed by the best placement, and the read
// length over the longest shared prefix those needed by the runner-up.
func (w *Worker) maybeMappingQuality(readLength int, mems []MEM, longestLCP int) float64 {
	memMax := 0
	for i := range mems {
		if mems[i].Primary && mems[i].MatchCount > 0 && mems[i].Length() > memMax {
			memMax = mems[i].Length()
		}
	}
	n := float64(readLength)
	next := math.Inf(1)
	if longestLCP > 0 {
		next = n / float64(longestLCP)
	}
	return w.m.quality.EstimateMaxPossibleMappingQuality(readLength, n/math.Max(1, float64(memMax)), next)
}
