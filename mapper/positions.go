package mapper

import (
	"math"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
)

// AlignmentMeanPathPositions returns, for each path through the nodes the
// alignment visits, the mean offset along the path of the midpoints of
// those nodes. With firstHitOnly, only the first visited node that lies on
// any path is used.
func (w *Worker) AlignmentMeanPathPositions(a align.Alignment, firstHitOnly bool) map[string]float64 {
	seen := map[graph.NodeID]bool{}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, m := range a.Path.Mappings {
		id := m.Position.Node
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		paths := w.g.PositionsInPaths(id)
		mid := w.g.Length(id) / 2
		for name, offs := range paths {
			for _, off := range offs {
				sums[name] += float64(off + mid)
				counts[name]++
			}
		}
		if firstHitOnly && len(paths) > 0 {
			break
		}
	}
	r := make(map[string]float64, len(sums))
	for name, sum := range sums {
		r[name] = sum / float64(counts[name])
	}
	return r
}

// ApproxPairFragmentLength returns, for each path both alignments lie on,
// the signed distance from the first alignment's mean position to the
// second's.
func (w *Worker) ApproxPairFragmentLength(a1, a2 align.Alignment) map[string]int {
	pos1 := w.AlignmentMeanPathPositions(a1, false)
	pos2 := w.AlignmentMeanPathPositions(a2, false)
	r := map[string]int{}
	for name, p1 := range pos1 {
		if p2, ok := pos2[name]; ok {
			r[name] = int(p2 - p1)
		}
	}
	return r
}

// AlignmentsConsistent reports whether, on some path both position sets
// share, the mean positions are less than bound apart.
func AlignmentsConsistent(pos1, pos2 map[string]float64, bound int) bool {
	for name, p1 := range pos1 {
		if p2, ok := pos2[name]; ok && math.Abs(p1-p2) < float64(bound) {
			return true
		}
	}
	return false
}

// PairConsistent reports whether both mates are aligned with a plausible
// fragment length and in the orientation the model expects. The fragment
// lengths recorded on a1 are used if present; otherwise the approximate
// linear distance. Before a model is learned, any length below
// FragmentMax is plausible.
func (w *Worker) PairConsistent(a1, a2 align.Alignment, model FragmentSnapshot) bool {
	if a1.Score == 0 || a2.Score == 0 || !a1.HasPath() || !a2.HasPath() {
		return false
	}
	plausible := func(n int) bool {
		if model.Size > 0 {
			return n > 0 && n < model.Size
		}
		return n > 0 && n < w.m.Opts.FragmentMax
	}
	lengthOK := false
	if len(a1.Fragment) == 0 {
		lengthOK = plausible(w.ApproxFragmentLength(a1, a2))
	} else {
		for _, f := range a1.Fragment {
			if plausible(abs(f.Length)) {
				lengthOK = true
				break
			}
		}
	}
	sameStrand := a1.Path.Mappings[0].Position.Reverse == a2.Path.Mappings[0].Position.Reverse
	return lengthOK && sameStrand == model.Orientation
}
