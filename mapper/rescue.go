package mapper

import (
	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
	"github.com/grailbio/base/log"
)

const (
	// rescueAnchorIdentity is the identity a mate needs to anchor a rescue.
	rescueAnchorIdentity = 0.9
	// rescueRetryIdentity is the identity below which a mate is rescued.
	rescueRetryIdentity = 0.7
)

// likelyMatePosition predicts where the other mate of a pair starts, given
// the alignment of one mate and the fragment model: the mean fragment
// length away along the linear projection, in the direction and on the
// strand the model expects.
func (w *Worker) likelyMatePosition(a align.Alignment, isFirstMate bool, model FragmentSnapshot) graph.Pos {
	rev := a.Path.Mappings[0].Position.Reverse
	pos := w.approxAlignmentPosition(a)
	delta := int(model.Mean)
	mateRev := rev
	if !model.Orientation {
		mateRev = !rev
	}
	// Direction is measured along mate 1's strand from mate 1 to mate 2.
	var forward bool
	if isFirstMate {
		forward = model.Direction != rev
	} else {
		forward = model.Direction == mateRev
	}
	target := pos - delta
	if forward {
		target = pos + delta
	}
	return graph.Pos{Node: w.nodeApproximatelyAt(target), Reverse: mateRev}
}

// rescueAlign aligns a, or its reverse complement when flip is set, to s
// and scores it with ScoreAlignment.
func (w *Worker) rescueAlign(a align.Alignment, s *graph.Subgraph, flip bool) align.Alignment {
	a = a.Unaligned()
	if flip {
		a = align.ReverseComplement(a, w.g)
	}
	r := w.aligner.Align(a, s, w.m.Opts.MaxQueryGraphRatio)
	r.Score = w.ScoreAlignment(r)
	if flip {
		r = align.ReverseComplement(r, w.g)
	}
	return r
}

// PairRescue realigns a weakly aligned mate near the position predicted
// from its well aligned partner. A mate is rescued when its partner's
// identity is at least 0.9 and its own is below 0.7. The rescued
// alignment replaces the mate only if it scores higher. It reports whether
// a mate was replaced. Without a fragment model there is nothing to
// predict from and no rescue is attempted.
func (w *Worker) PairRescue(mate1, mate2 *align.Alignment, model FragmentSnapshot) bool {
	if model.Size == 0 {
		return false
	}
	var anchor, weak *align.Alignment
	var isFirst bool
	switch {
	case mate1.Identity > mate2.Identity && mate1.Identity >= rescueAnchorIdentity && mate2.Identity < rescueRetryIdentity:
		anchor, weak, isFirst = mate1, mate2, true
	case mate2.Identity > mate1.Identity && mate2.Identity >= rescueAnchorIdentity && mate1.Identity < rescueRetryIdentity:
		anchor, weak, isFirst = mate2, mate1, false
	default:
		return false
	}
	w.Stats.RescuesAttempted++
	matePos := w.likelyMatePosition(*anchor, isFirst, model)
	span := w.m.Opts.FragmentMax
	if model.Mean != 0 {
		span = max(int(model.Stdev)*6+len(weak.Sequence), len(weak.Sequence)*4)
	}
	s := graph.NewSubgraph()
	w.graphContext(s, matePos, span/2)
	w.graphContext(s, graph.ReversePos(matePos, w.g.Length(matePos.Node)), span/2)
	s.RemoveOrphanEdges()

	r := w.rescueAlign(*weak, s, matePos.Reverse)
	log.Debug.Printf("rescue %s near %v: score %d -> %d", weak.Name, matePos, weak.Score, r.Score)
	if r.Score <= weak.Score {
		return false
	}
	*weak = r
	w.Stats.RescuesAccepted++
	return true
}
