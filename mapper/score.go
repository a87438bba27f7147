package mapper

import (
	"bytes"
	"fmt"

	"github.com/dkj/vg/align"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// ScoreAlignment recomputes the score of an alignment from its edits:
// matched bases earn the match score, substituted bases pay the mismatch
// penalty, and gaps pay GapOpen + length*GapExtension, except insertions
// at either end of the read. A jump between consecutive mappings pays as
// a gap of its graph distance, or of its approximate linear distance when
// the next mapping is not reachable within the read length. The result is
// never negative.
func (w *Worker) ScoreAlignment(a align.Alignment) int {
	s := w.m.Opts.Scoring
	score := 0
	mappings := a.Path.Mappings
	for i, m := range mappings {
		for j, e := range m.Edits {
			switch {
			case e.IsMatch():
				score += e.FromLength * s.Match
			case e.IsSub():
				score -= s.Mismatch * len(e.Sequence)
			case e.IsDeletion():
				score -= s.GapOpen + e.FromLength*s.GapExtension
			case e.IsInsertion():
				if (i == 0 && j == 0) || (i == len(mappings)-1 && j == len(m.Edits)-1) {
					continue
				}
				score -= s.GapOpen + e.ToLength*s.GapExtension
			}
		}
		if i+1 == len(mappings) {
			continue
		}
		last, next := m.Position, mappings[i+1].Position
		if last.IsEmpty() || next.IsEmpty() {
			continue
		}
		last.Offset += m.FromLength()
		dist := w.GraphDistance(last, next, len(a.Sequence))
		if dist == len(a.Sequence) {
			dist = abs(w.approxDistance(last, next))
		}
		if dist > 0 {
			score -= s.GapOpen + dist*s.GapExtension
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// CheckAlignment verifies that the read implied by the alignment's path
// and the graph is the alignment's sequence, and that the quality string
// is empty or as long as the sequence. It returns an errors.Integrity
// error describing the first mismatch.
func (w *Worker) CheckAlignment(a align.Alignment) error {
	if !a.HasPath() {
		return nil
	}
	if len(a.Quality) > 0 && len(a.Quality) != len(a.Sequence) {
		return errors.E(errors.Integrity, fmt.Sprintf(
			"alignment %s: quality length %d differs from sequence length %d", a.Name, len(a.Quality), len(a.Sequence)))
	}
	for _, m := range a.Path.Mappings {
		if !m.Position.IsEmpty() && !w.g.HasNode(m.Position.Node) {
			return errors.E(errors.Integrity, fmt.Sprintf("alignment %s: node %d is not in the graph", a.Name, m.Position.Node))
		}
	}
	if got := align.PathSequence(a.Path, w.g); !bytes.Equal(got, a.Sequence) {
		return errors.E(errors.Integrity, fmt.Sprintf(
			"alignment %s does not match the graph: expected %s, got %s", a.Name, a.Sequence, got))
	}
	return nil
}

// checked returns a, or a without a path if checks are enabled and a
// fails them.
func (w *Worker) checked(a align.Alignment) align.Alignment {
	if !w.m.Opts.CheckAlignments {
		return a
	}
	if err := w.CheckAlignment(a); err != nil {
		w.Stats.FailedChecks++
		log.Error.Printf("mapper: %v", err)
		if log.At(log.Debug) {
			log.Debug.Printf("mapper: failed alignment %s path %s cigar %s", a.Name, a.Path, align.Cigar(a))
		}
		return a.Unaligned()
	}
	return a
}
