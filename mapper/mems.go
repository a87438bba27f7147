package mapper

import (
	"fmt"
	"sort"

	"github.com/dkj/vg/biosimd"
	"github.com/dkj/vg/graph"
	"github.com/dkj/vg/pathindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// MEM is a maximal exact match between the read bases [Begin, End) and
// the graph.
type MEM struct {
	Begin, End int
	// Range is the text index range of the matched bases.
	Range pathindex.Range
	// MatchCount is the number of graph positions the match occurs at.
	// For a sub-MEM it excludes the occurrences inside its parent MEMs and
	// is never negative; a sub-MEM with no other occurrences is not
	// located.
	MatchCount int
	// Positions holds the located occurrences. It is empty when MatchCount
	// exceeds the hit cap.
	Positions []graph.Pos
	// Primary is false for sub-MEMs found by reseeding.
	Primary bool
	// Fragment is the mate the match came from: 1 or 2.
	Fragment int
}

// Length is the number of read bases matched.
func (m MEM) Length() int { return m.End - m.Begin }

// Sequence returns the matched read bases.
func (m MEM) Sequence(read []byte) []byte { return read[m.Begin:m.End] }

// String implements fmt.Stringer.
func (m MEM) String() string {
	return fmt.Sprintf("[%d,%d) x%d %v", m.Begin, m.End, m.MatchCount, m.Positions)
}

func containsN(s []byte) bool { return biosimd.IndexN(s) >= 0 }

func (w *Worker) locate(mem *MEM) {
	hitMax := w.m.Opts.HitMax
	if mem.MatchCount <= 0 || (hitMax > 0 && mem.MatchCount > hitMax) {
		return
	}
	for _, h := range w.m.text.Locate(mem.Range, hitMax) {
		mem.Positions = append(mem.Positions, h.Pos())
	}
}

// trivialMEM is returned for a read with nothing to match. It matches
// everywhere, so it is never located.
func (w *Worker) trivialMEM() MEM {
	return MEM{Range: w.m.text.FullRange(), MatchCount: w.m.text.Size(), Primary: true, Fragment: 1}
}

func allN(s []byte) bool {
	for _, c := range s {
		if c != 'N' {
			return false
		}
	}
	return true
}

// FindMEMsSimple returns the super-maximal exact matches of seq, ordered by
// begin. Matches longer than maxLength (when positive) or the index order
// are split. When reseedLength is positive, a match that is unique and at
// least that long, or the only match of the read, is searched again for
// shorter matches that occur more often.
func (w *Worker) FindMEMsSimple(seq []byte, maxLength, minLength, reseedLength int) []MEM {
	x := w.m.text
	if allN(seq) {
		return []MEM{w.trivialMEM()}
	}
	full := x.FullRange()
	order := x.Order()
	var mems []MEM
	end := len(seq)
	begin := end
	r, last := full, full
	for cursor := len(seq) - 1; cursor >= 0; {
		c := seq[cursor]
		last = r
		r = x.LF(r, c)
		n := end - cursor
		if r.Empty() || (maxLength > 0 && n > maxLength) || n > order || c == 'N' {
			mems = append(mems, MEM{Begin: cursor + 1, End: end, Range: last})
			if c == 'N' || last == full {
				end = cursor
				r = full
				cursor--
			} else {
				lcp, parent := w.m.lcp.Parent(last)
				end = cursor + 1 + lcp
				r = parent
			}
			begin = end
			continue
		}
		begin = cursor
		cursor--
	}
	if end-begin > 0 {
		mems = append(mems, MEM{Begin: begin, End: end, Range: r})
	}

	// The scan can emit matches contained in a longer one with the same
	// begin; keep only the longest.
	longest := map[int]int{}
	for _, mem := range mems {
		if mem.End > longest[mem.Begin] {
			longest[mem.Begin] = mem.End
		}
	}
	var kept []MEM
	for _, mem := range mems {
		if mem.Length() == 0 || mem.Length() < minLength || longest[mem.Begin] != mem.End ||
			containsN(mem.Sequence(seq)) {
			continue
		}
		kept = append(kept, mem)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	if len(kept) == 0 {
		return nil
	}
	for i := range kept {
		kept[i].MatchCount = x.Count(kept[i].Range)
		kept[i].Primary = true
		kept[i].Fragment = 1
		w.locate(&kept[i])
	}
	if reseedLength <= 0 {
		return kept
	}

	var out []MEM
	for _, mem := range kept {
		if !(mem.Length() >= reseedLength && mem.MatchCount == 1) && len(kept) != 1 {
			out = append(out, mem)
			continue
		}
		// Halve the target length until some sub-match is found or the
		// target drops below the minimum.
		var reseeds []MEM
		for target := mem.Length() / 2; len(reseeds) == 0 && target >= minLength && target > 0; target /= 2 {
			for _, rm := range w.FindMEMsSimple(seq[mem.Begin:mem.End], target, minLength, 0) {
				rm.Begin += mem.Begin
				rm.End += mem.Begin
				if rm.Length() >= minLength && rm.MatchCount > mem.MatchCount {
					reseeds = append(reseeds, rm)
				}
			}
		}
		if len(reseeds) == 0 {
			out = append(out, mem)
		} else {
			out = append(out, reseeds...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Begin < out[j].Begin })
	return out
}

// subMEM is a sub-MEM together with the indexes of the MEMs containing it.
type subMEM struct {
	mem     MEM
	parents []int
}

// FindMEMsDeep returns the super-maximal exact matches of seq together with
// the sub-MEMs found by reseeding, ordered by (begin, end), and the longest
// prefix any matched suffix shares with another part of the graph. A MEM
// is reseeded when it is at least minLength long and its shared prefix is
// at least reseedLength. Sub-MEM match counts exclude their parents'
// occurrences.
func (w *Worker) FindMEMsDeep(seq []byte, maxLength, minLength, reseedLength int) ([]MEM, int, error) {
	if reseedLength != 0 && minLength > reseedLength {
		return nil, 0, errors.E(errors.Invalid, fmt.Sprintf(
			"mapper: reseed length %d cannot be less than the minimum MEM length %d", reseedLength, minLength))
	}
	x, lcpIndex := w.m.text, w.m.lcp
	full := x.FullRange()
	if allN(seq) {
		return []MEM{w.trivialMEM()}, 0, nil
	}
	order := x.Order()

	var (
		mems      []MEM
		subs      []subMEM
		maxLCP    int
		lcpMaxima []int
		jumped    bool
	)
	reseed := func(nextMEMEnd, memLength int) {
		if w.m.Opts.FastReseed {
			subs = w.findSubMEMsFast(seq, mems, nextMEMEnd, max(minLength, memLength/2), subs)
		} else {
			subs = w.findSubMEMs(seq, mems, nextMEMEnd, minLength, subs)
		}
	}

	cursor := len(seq) - 1
	match := MEM{Begin: cursor, End: len(seq), Range: full}
	for cursor >= 0 {
		if seq[cursor] == 'N' {
			match.Begin = cursor + 1
			memLength := match.Length()
			if memLength >= minLength {
				mems = append(mems, match)
			}
			match.End = cursor
			match.Range = full
			cursor--
			if reseedLength > 0 && memLength >= minLength && maxLCP >= reseedLength {
				reseed(match.End, memLength)
			}
			jumped = false
			lcpMaxima = append(lcpMaxima, maxLCP)
			maxLCP = 0
			continue
		}

		last := match.Range
		match.Range = x.LF(match.Range, seq[cursor])
		n := match.End - cursor
		if !match.Range.Empty() && !(maxLength > 0 && n > maxLength) && n <= order {
			jumped = false
			maxLCP, _ = lcpIndex.Parent(match.Range)
			lcpMaxima = append(lcpMaxima, maxLCP)
			cursor--
			continue
		}

		match.Begin = cursor + 1
		match.Range = last
		if cursor+1 == match.End {
			// A single base that matches nothing: move the cursor, since
			// moving up the suffix tree would not.
			if match.Length() >= minLength {
				mems = append(mems, match)
			}
			match.End = cursor
			match.Range = full
			cursor--
			jumped = false
			lcpMaxima = append(lcpMaxima, maxLCP)
			maxLCP = 0
			continue
		}
		memLength := match.Length()
		if memLength >= minLength && !jumped {
			mems = append(mems, match)
		}
		lcp, parent := lcpIndex.Parent(last)
		match.End = match.Begin + lcp
		match.Range = parent
		maxLCP = lcp
		if reseedLength > 0 && !jumped && memLength >= minLength && maxLCP >= reseedLength {
			reseed(match.End, memLength)
		}
		jumped = true
		lcpMaxima = append(lcpMaxima, maxLCP)
		maxLCP = 0
	}

	match.Begin = 0
	if memLength := match.Length(); memLength >= minLength {
		maxLCP, _ = lcpIndex.Parent(match.Range)
		mems = append(mems, match)
		if reseedLength > 0 && maxLCP >= reseedLength {
			reseed(match.Begin, memLength)
		}
	}
	lcpMaxima = append(lcpMaxima, maxLCP)
	longestLCP := 0
	for _, l := range lcpMaxima {
		if l > longestLCP {
			longestLCP = l
		}
	}

	for i := range mems {
		mems[i].MatchCount = x.Count(mems[i].Range)
		mems[i].Primary = true
		mems[i].Fragment = 1
		w.locate(&mems[i])
	}
	for _, s := range subs {
		mem := s.mem
		mem.MatchCount = x.Count(mem.Range)
		for _, p := range s.parents {
			mem.MatchCount -= mems[p].MatchCount
		}
		// Parents can share occurrences, so the difference can undershoot.
		if mem.MatchCount < 0 {
			mem.MatchCount = 0
		}
		mem.Primary = false
		mem.Fragment = 1
		w.locate(&mem)
		mems = append(mems, mem)
	}
	sort.SliceStable(mems, func(i, j int) bool {
		if mems[i].Begin != mems[j].Begin {
			return mems[i].Begin < mems[j].Begin
		}
		return mems[i].End < mems[j].End
	})
	if w.m.Opts.CheckAlignments && !w.CheckMEMs(seq, mems) {
		log.Error.Printf("mapper: MEMs of %s disagree with the text index: %v", seq, mems)
	}
	return mems, longestLCP, nil
}

// parentsOf lists the MEMs, most recent first, that contain a sub-MEM
// starting at begin.
func parentsOf(mems []MEM, begin int) []int {
	parents := []int{len(mems) - 1}
	for i := len(mems) - 2; i >= 0; i-- {
		if begin < mems[i].Begin {
			break
		}
		parents = append(parents, i)
	}
	return parents
}

// findSubMEMs appends to out the maximal sub-matches of the last MEM in
// mems that occur outside it and are not contained in the next MEM, which
// ends at nextMEMEnd. It walks every base of the MEM.
func (w *Worker) findSubMEMs(seq []byte, mems []MEM, nextMEMEnd, minLength int, out []subMEM) []subMEM {
	x := w.m.text
	mem := mems[len(mems)-1]
	parentCount := x.Count(mem.Range)
	cursor := mem.End - 1
	subEnd := mem.End
	r := x.FullRange()
	jumped := false
	for cursor >= mem.Begin && subEnd > nextMEMEnd {
		last := r
		r = x.LF(r, seq[cursor])
		if x.Count(r) > parentCount {
			cursor--
			jumped = false
			continue
		}
		subBegin := cursor + 1
		if subEnd == subBegin {
			// Nothing matched at this end; restart one base to the left.
			subEnd = cursor
			cursor--
			r = x.FullRange()
			jumped = false
			continue
		}
		if subEnd-subBegin >= minLength && !jumped {
			out = append(out, subMEM{
				mem:     MEM{Begin: subBegin, End: subEnd, Range: last},
				parents: parentsOf(mems, subBegin),
			})
		}
		lcp, parent := w.m.lcp.Parent(last)
		subEnd = subBegin + lcp
		r = parent
		jumped = true
	}
	if subEnd > nextMEMEnd && subEnd-mem.Begin >= minLength && !jumped {
		out = append(out, subMEM{
			mem:     MEM{Begin: mem.Begin, End: subEnd, Range: r},
			parents: []int{len(mems) - 1},
		})
	}
	return out
}

// moreFrequent reports whether seq[begin:end] occurs more often than
// parentCount. If not, it also returns the position at which the count
// first dropped; otherwise the range of the whole substring.
func (w *Worker) moreFrequent(seq []byte, begin, end, parentCount int) (bool, int, pathindex.Range) {
	x := w.m.text
	r := x.FullRange()
	cursor := end - 1
	for ; cursor >= begin; cursor-- {
		r = x.LF(r, seq[cursor])
		if x.Count(r) <= parentCount {
			return false, cursor, r
		}
	}
	return true, cursor, r
}

// findSubMEMsFast is findSubMEMs testing windows of minLength bases and
// binary searching the end of each sub-MEM, relying on occurrence counts
// falling monotonically as a match grows.
func (w *Worker) findSubMEMsFast(seq []byte, mems []MEM, nextMEMEnd, minLength int, out []subMEM) []subMEM {
	if minLength <= 0 {
		minLength = 1
	}
	x := w.m.text
	mem := mems[len(mems)-1]
	parentCount := x.Count(mem.Range)

	winEnd := mem.Begin + minLength
	if winEnd <= nextMEMEnd {
		winEnd = nextMEMEnd + 1
	}
	for winEnd <= mem.End {
		winBegin := winEnd - minLength
		more, cursor, r := w.moreFrequent(seq, winBegin, winEnd, parentCount)
		if !more {
			// A suffix of the window only occurs inside the parent; move
			// past it.
			winEnd = cursor + minLength + 1
			continue
		}
		if winEnd == nextMEMEnd+1 {
			// The window was shifted right, so the match may extend further
			// left.
			for cursor >= mem.Begin {
				next := x.LF(r, seq[cursor])
				if x.Count(next) <= parentCount {
					break
				}
				r = next
				cursor--
			}
			winBegin = cursor + 1
		}

		// The end of the sub-MEM lies in [left, right].
		left, right := winEnd, mem.End
		subRange := r
		for right > left {
			middle := left + (right-left+1)/2
			if ok, _, mr := w.moreFrequent(seq, winBegin, middle, parentCount); ok {
				left = middle
				subRange = mr
			} else {
				right = middle - 1
			}
		}
		out = append(out, subMEM{
			mem:     MEM{Begin: winBegin, End: right, Range: subRange},
			parents: parentsOf(mems, winBegin),
		})
		winEnd = right + 1
	}
	return out
}

// CheckMEMs reports whether every located MEM's positions are exactly
// where its sequence occurs. It is a debugging aid.
func (w *Worker) CheckMEMs(seq []byte, mems []MEM) bool {
	x := w.m.text
	for _, mem := range mems {
		if len(mem.Positions) == 0 || !mem.Primary {
			continue
		}
		r := x.FullRange()
		for i := mem.End - 1; i >= mem.Begin && !r.Empty(); i-- {
			r = x.LF(r, seq[i])
		}
		hits := x.Locate(r, w.m.Opts.HitMax)
		if len(hits) != len(mem.Positions) {
			return false
		}
		for i, h := range hits {
			if h.Pos() != mem.Positions[i] {
				return false
			}
		}
	}
	return true
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
