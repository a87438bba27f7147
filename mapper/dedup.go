package mapper

import (
	"sort"

	"github.com/dkj/vg/align"
)

// scoreSortAndDeduplicate orders alignments by descending score and drops
// exact duplicates. Alignments with equal scores keep their relative
// order. An empty input yields the original read without a path, so there
// is always something to report.
func scoreSortAndDeduplicate(alns []align.Alignment, original align.Alignment) []align.Alignment {
	if len(alns) == 0 {
		return []align.Alignment{original.Unaligned()}
	}
	sort.SliceStable(alns, func(i, j int) bool { return alns[i].Score > alns[j].Score })
	out := alns[:0]
	groupStart := 0
	for _, a := range alns {
		if len(out) > 0 && out[len(out)-1].Score != a.Score {
			groupStart = len(out)
		}
		dup := false
		for _, b := range out[groupStart:] {
			if a.Equal(b) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, a)
		}
	}
	return out
}

// sameStart reports whether two equally scored alignments are likely the
// same placement: both unscored, or starting at the same position.
func sameStart(a1, a2 align.Alignment) bool {
	if a1.Score != a2.Score {
		return false
	}
	if a1.Score == 0 {
		return true
	}
	if !a1.HasPath() || !a2.HasPath() {
		return a1.HasPath() == a2.HasPath()
	}
	return a1.Path.Mappings[0].Position == a2.Path.Mappings[0].Position
}

// uniqueAdjacent drops each alignment that is the same placement as the
// one kept before it. alns must be sorted by score.
func uniqueAdjacent(alns []align.Alignment) []align.Alignment {
	if len(alns) == 0 {
		return alns
	}
	out := alns[:1]
	for _, a := range alns[1:] {
		if !sameStart(out[len(out)-1], a) {
			out = append(out, a)
		}
	}
	return out
}

// filterAndProcessMultimaps keeps the best MaxMultimaps+additional
// alignments and marks all but the first secondary.
func (w *Worker) filterAndProcessMultimaps(alns []align.Alignment, additional int) []align.Alignment {
	if n := w.m.Opts.MaxMultimaps + additional; len(alns) > n {
		alns = alns[:n]
	}
	for i := range alns {
		alns[i].IsSecondary = i > 0
	}
	return alns
}

// samePairStart reports whether two pairs are the same placement: every
// mate scored in both pairs starts at the same position, and at least one
// mate is scored in both.
func samePairStart(p1, p2 alignedPair) bool {
	compared := false
	same := true
	scored := func(a align.Alignment) bool { return a.Score != 0 && a.HasPath() }
	if scored(p1.first) && scored(p2.first) {
		compared = true
		same = same && p1.first.Path.Mappings[0].Position == p2.first.Path.Mappings[0].Position
	}
	if scored(p1.second) && scored(p2.second) {
		compared = true
		same = same && p1.second.Path.Mappings[0].Position == p2.second.Path.Mappings[0].Position
	}
	return compared && same
}
