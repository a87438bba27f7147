package mapper

import (
	"sync"

	"github.com/dkj/vg/align"
	"github.com/exascience/pargo/parallel"
	"github.com/grailbio/base/errors"
)

// band is one overlapping piece of a long read, and how much of its start
// and end to strip after alignment so that consecutive bands abut.
type band struct {
	begin, end           int
	stripStart, stripEnd int
}

func roundUp4(n int) int {
	if r := n % 4; r != 0 {
		n += 4 - r
	}
	return n
}

// bandLayout divides a read of length n into 2*div-1 bands, where div is
// the smallest count of at least 2 such that n/div fits in bandWidth.
// Bands are segmentSize long, n/div rounded up to a multiple of 4, and
// consecutive bands overlap by half a segment. The last band ends at the
// end of the read.
func bandLayout(n, bandWidth int) []band {
	bandWidth = roundUp4(bandWidth)
	div := 2
	for n/div > bandWidth {
		div++
	}
	seg := roundUp4(n / div)
	clamp := func(x int) int { return min(max(x, 0), n) }
	bands := make([]band, 0, 2*div-1)
	for i := 0; i < div; i++ {
		off := i * seg
		b := band{begin: clamp(off), end: clamp(off + seg)}
		if i > 0 {
			b.stripStart = seg / 4
		}
		if i+1 < div {
			b.stripEnd = seg / 4
		} else {
			b.end = n
			if last := n - seg; off > last {
				b.begin = clamp(last)
				b.stripStart += off - last
			}
		}
		bands = append(bands, b)
		if i+1 < div {
			o := band{begin: clamp(off + seg/2), end: clamp(off + seg/2 + seg), stripStart: seg / 4}
			o.stripEnd = seg/4 - (seg - (o.end - o.begin))
			bands = append(bands, o)
		}
	}
	return bands
}

// sub returns the part of a read covered by b, without a path.
func (b band) sub(read align.Alignment) align.Alignment {
	r := align.Alignment{
		Name:     read.Name,
		Sequence: append([]byte(nil), read.Sequence[b.begin:b.end]...),
	}
	if len(read.Quality) > 0 {
		r.Quality = append([]byte(nil), read.Quality[b.begin:b.end]...)
	}
	return r
}

// alignBand returns the candidate alignments of one band, stripped of the
// overlap with its neighbours. With MaxMultimaps 1 there is exactly one
// candidate; otherwise the unaligned band is always among them.
func (w *Worker) alignBand(read align.Alignment, b band) ([]align.Alignment, error) {
	o := &w.m.Opts
	w.Stats.Bands++
	piece := b.sub(read)
	alns, err := w.alignSeeded(piece, o.ExtraMultimaps)
	if err != nil {
		return nil, err
	}
	if o.MaxMultimaps > 1 {
		alns = append(alns, piece)
	} else {
		alns = alns[:1]
	}
	for i := range alns {
		if alns[i].Identity < o.MinIdentity {
			alns[i] = piece
		}
		alns[i] = align.StripFromEnd(align.StripFromStart(alns[i], b.stripStart), b.stripEnd)
	}
	return alns, nil
}

// AlignBanded aligns a read longer than BandWidth by aligning overlapping
// bands of it independently and joining the results. Joined this way,
// bands can describe large indels and rearrangements that a single local
// alignment could not. With MaxMultimaps above 1, each band contributes
// several candidates and the join picks the best-scoring chain of
// candidates that abut in the graph. Bands are aligned on up to
// AlignmentThreads goroutines.
func (w *Worker) AlignBanded(read align.Alignment) (align.Alignment, error) {
	o := &w.m.Opts
	layout := bandLayout(len(read.Sequence), o.BandWidth)
	multi := make([][]align.Alignment, len(layout))
	if o.AlignmentThreads > 1 {
		var (
			once  errors.Once
			mu    sync.Mutex
			stats Stats
		)
		parallel.Range(0, len(layout), o.AlignmentThreads, func(low, high int) {
			bw := w.m.getWorker()
			defer w.m.putWorker(bw)
			bw.Stats = Stats{}
			for i := low; i < high; i++ {
				var err error
				multi[i], err = bw.alignBand(read, layout[i])
				once.Set(err)
			}
			mu.Lock()
			stats = stats.Merge(bw.Stats)
			mu.Unlock()
		})
		w.Stats = w.Stats.Merge(stats)
		if err := once.Err(); err != nil {
			return align.Alignment{}, err
		}
	} else {
		for i, b := range layout {
			var err error
			if multi[i], err = w.alignBand(read, b); err != nil {
				return align.Alignment{}, err
			}
		}
	}

	var alns []align.Alignment
	if o.MaxMultimaps > 1 {
		alns = w.resolveBandedMulti(multi)
	} else {
		alns = make([]align.Alignment, len(multi))
		for i := range multi {
			alns[i] = multi[i][0]
		}
	}
	merged := align.Merge(alns)
	merged.Score = w.ScoreAlignment(merged)
	merged.Identity = align.Identity(merged.Path)
	merged.Name = read.Name
	merged.Quality = read.Quality
	merged.FragmentPrev, merged.FragmentNext = read.FragmentPrev, read.FragmentNext
	return merged, nil
}

type bandScore struct {
	score int
	prev  int
}

// resolveBandedMulti picks one candidate per band by dynamic programming
// over the bands. A placed candidate extends the best-scoring placed
// candidate of the previous band whose end is adjacent to its start, the
// first such on ties, adding its score. Without an adjacent predecessor it
// carries the best previous score, from the unplaced candidate if the best
// has no path. An unplaced candidate always carries the best previous
// score.
func (w *Worker) resolveBandedMulti(multi [][]align.Alignment) []align.Alignment {
	scores := make([][]bandScore, len(multi))
	for _, a := range multi[0] {
		scores[0] = append(scores[0], bandScore{score: a.Score})
	}
	for i := 1; i < len(multi); i++ {
		prev := scores[i-1]
		best, unplaced := 0, 0
		for j, s := range prev {
			if s.score > prev[best].score {
				best = j
			}
			if s.score == 0 {
				unplaced = j
			}
		}
		for _, a := range multi[i] {
			if a.Score == 0 || !a.HasPath() {
				scores[i] = append(scores[i], bandScore{prev[best].score, best})
				continue
			}
			start := a.Path.Start()
			adj := -1
			for j, s := range prev {
				p := multi[i-1][j]
				if p.Score == 0 || !p.HasPath() {
					continue
				}
				end := p.Path.End()
				if end.IsEmpty() || !w.adjacent(end, start) {
					continue
				}
				if adj < 0 || s.score > prev[adj].score {
					adj = j
				}
			}
			switch {
			case adj >= 0:
				scores[i] = append(scores[i], bandScore{prev[adj].score + a.Score, adj})
			case multi[i-1][best].HasPath():
				scores[i] = append(scores[i], bandScore{prev[best].score, best})
			default:
				scores[i] = append(scores[i], bandScore{prev[unplaced].score, unplaced})
			}
		}
	}
	last := scores[len(scores)-1]
	k := 0
	for j, s := range last {
		if s.score > last[k].score {
			k = j
		}
	}
	alns := make([]align.Alignment, len(multi))
	for i := len(multi) - 1; i >= 0; i-- {
		alns[i] = multi[i][k]
		k = scores[i][k].prev
	}
	return alns
}
