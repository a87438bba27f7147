package mapper

import "github.com/dkj/vg/graph"

// sameFragmentTransition weighs a move between two MEMs of one read: the
// bases they cover together, less an affine penalty for the difference
// between their spacing on the read and on the graph. Moves spanning
// maxLength or more, or switching strand, are forbidden.
func (w *Worker) sameFragmentTransition(m1, m2 *MEM, maxLength int) Transition {
	p1, p2 := m1.Positions[0], m2.Positions[0]
	dist := abs(w.approxDistance(p1, p2))
	if dist >= maxLength {
		return Forbidden
	}
	if p1.Reverse != p2.Reverse {
		return Forbidden
	}
	s := w.m.Opts.Scoring
	coverage := float64(m1.Length() + m2.Length() - memsOverlapLength(m1, m2))
	jump := abs((m2.Begin - m1.Begin) - dist)
	if jump == 0 {
		return Weight(coverage * float64(s.Match))
	}
	return Weight(coverage*float64(s.Match) - float64(s.GapOpen+jump*s.GapExtension))
}

// singleTransition returns the transition function for chaining the MEMs
// of one read of the given length.
func (w *Worker) singleTransition(readLength int) TransitionFunc {
	return func(m1, m2 *MEM) Transition {
		// A jump of exactly the read length is allowed for single reads.
		return w.sameFragmentTransition(m1, m2, readLength+1)
	}
}

// pairedTransition returns the transition function for chaining the MEMs
// of both mates of a pair. Moves within a mate are weighed as for single
// reads. Moves from mate 1 to mate 2 are scored by the fragment model:
// before a model exists, by inverse distance up to FragmentMax; after, by
// the density of the distance relative to the density at the mean, and
// only in the learned orientation. Moves back from mate 2 are forbidden.
func (w *Worker) pairedTransition(len1, len2 int, model FragmentSnapshot) TransitionFunc {
	fragmentMax := w.m.Opts.FragmentMax
	return func(m1, m2 *MEM) Transition {
		if m1.Fragment > m2.Fragment {
			return Forbidden
		}
		if m1.Fragment == m2.Fragment {
			return w.sameFragmentTransition(m1, m2, max(len1, len2))
		}
		p1, p2 := m1.Positions[0], m2.Positions[0]
		dist := abs(w.approxDistance(p1, p2))
		if dist >= fragmentMax {
			return Forbidden
		}
		if d, ok := w.minPathDistance(p1.Node, p2.Node); ok {
			dist = d
		}
		if dist >= fragmentMax {
			return Forbidden
		}
		if model.Size > 0 {
			sameStrand := p1.Reverse == p2.Reverse
			if sameStrand != model.Orientation || dist > model.Size {
				return Forbidden
			}
			return Weight(model.RelativeDensity(float64(dist)))
		}
		return Weight(1 / float64(max(dist, 1)))
	}
}

// minPathDistance is the smallest distance between the starts of two nodes
// along any path visiting both.
func (w *Worker) minPathDistance(id1, id2 graph.NodeID) (int, bool) {
	pp1 := w.g.PositionsInPaths(id1)
	if len(pp1) == 0 {
		return 0, false
	}
	pp2 := w.g.PositionsInPaths(id2)
	best, found := 0, false
	for name, offs1 := range pp1 {
		for _, o1 := range offs1 {
			for _, o2 := range pp2[name] {
				if d := abs(o1 - o2); !found || d < best {
					best, found = d, true
				}
			}
		}
	}
	return best, found
}
