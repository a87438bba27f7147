package mapper

import (
	"math"
	"sort"

	"github.com/dkj/vg/align"
	"github.com/grailbio/base/log"
)

// AlignMulti maps a single read and returns its alignments, best first,
// with mapping qualities set and all but the first marked secondary. It
// returns at least one alignment, without a path if the read could not be
// placed, and at most MaxMultimaps. Reads longer than BandWidth are
// aligned in bands and yield one alignment.
func (w *Worker) AlignMulti(a align.Alignment) ([]align.Alignment, error) {
	w.Stats.Reads++
	alns, err := w.alignMultiInternal(a, w.m.Opts.ExtraMultimaps)
	if err != nil {
		return nil, err
	}
	for i := range alns {
		alns[i] = w.checked(alns[i])
	}
	if !alns[0].HasPath() {
		w.Stats.Unaligned++
	}
	return alns, nil
}

// Align maps a single read and returns its best alignment.
func (w *Worker) Align(a align.Alignment) (align.Alignment, error) {
	alns, err := w.AlignMulti(a)
	if err != nil {
		return align.Alignment{}, err
	}
	return alns[0], nil
}

func (w *Worker) alignMultiInternal(a align.Alignment, additional int) ([]align.Alignment, error) {
	o := &w.m.Opts
	if o.BandWidth > 0 && len(a.Sequence) > o.BandWidth {
		w.Stats.Banded++
		r, err := w.AlignBanded(a)
		if err != nil {
			return nil, err
		}
		return []align.Alignment{r}, nil
	}
	return w.alignSeeded(a, additional)
}

// alignSeeded maps a read of at most BandWidth bases.
func (w *Worker) alignSeeded(a align.Alignment, additional int) ([]align.Alignment, error) {
	o := &w.m.Opts
	// At least two candidates are needed to estimate mapping quality.
	if additional == 0 && o.MaxMultimaps == 1 && o.MappingQualityMethod != None {
		additional = 1
	}
	mems, longestLCP, err := w.FindMEMsDeep(a.Sequence, o.MaxMEMLength, o.MinMEMLength, o.MEMReseedLength)
	if err != nil {
		return nil, err
	}
	return w.alignMEMMulti(a, mems, longestLCP, additional), nil
}

// scaleMultimaps shrinks the number of clusters worth realizing for a read
// whose best possible mapping quality is maybe.
func scaleMultimaps(total, minimum int, maybe float64) int {
	if maybe <= 0 || math.IsNaN(maybe) {
		return total
	}
	scaled := math.Round(float64(total) / maybe)
	if scaled > math.MaxInt32 {
		scaled = math.MaxInt32
	}
	return max(minimum, int(scaled))
}

// sortByScoreThenEdits orders alignments by descending score, and equal
// scores by descending edit count.
func sortByScoreThenEdits(alns []align.Alignment) {
	sort.SliceStable(alns, func(i, j int) bool {
		if alns[i].Score != alns[j].Score {
			return alns[i].Score > alns[j].Score
		}
		return align.EditCount(alns[i]) > align.EditCount(alns[j])
	})
}

// alignMEMMulti chains the read's MEMs into clusters, realizes the
// clusters and ranks the results.
func (w *Worker) alignMEMMulti(a align.Alignment, mems []MEM, longestLCP, additional int) []align.Alignment {
	o := &w.m.Opts
	n := len(a.Sequence)
	total := o.MaxMultimaps + additional
	mqCap := float64(o.MaxMappingQuality)
	maybe := w.maybeMappingQuality(n, mems, longestLCP)
	if maybe < o.MaybeMQThreshold {
		mqCap = maybe
	}
	if o.MinMultimaps < o.MaxMultimaps {
		total = scaleMultimaps(total, o.MinMultimaps, maybe)
	}

	var clusters [][]MEM
	if total > 0 {
		model := NewChainModel([]int{n}, [][]MEM{mems}, w.approxPosition, w.singleTransition(n),
			n, o.ChainPositionDepth, o.ChainMaxConnections)
		clusters = model.Traceback(total, false)
		if log.At(log.Debug) {
			log.Debug.Printf("%s: %d MEMs, %d clusters\n%v", a.Name, len(mems), len(clusters), model)
		}
	}
	clusterMQ := 0.0
	if o.UseClusterMQ {
		clusterMQ = clusterMappingQuality(clusters, n, float64(o.MaxClusterMappingQuality))
	}

	drop := clustersToDrop(clusters, o.DropChain)
	var alns []align.Alignment
	multimaps := 0
	for i, cluster := range clusters {
		if drop.Test(uint(i)) && multimaps >= o.MinMultimaps {
			continue
		}
		if multimaps++; multimaps > total {
			break
		}
		if o.MinClusterLength > 0 && clusterCoverage(cluster) < o.MinClusterLength && len(alns) > 1 {
			continue
		}
		if c := w.AlignCluster(a, cluster); c.Identity > o.MinIdentity {
			alns = append(alns, c)
		}
	}

	sortByScoreThenEdits(alns)
	alns = uniqueAdjacent(alns)
	alns = scoreSortAndDeduplicate(alns, a)
	w.computeMappingQualities(alns, clusterMQ, mqCap)
	return w.filterAndProcessMultimaps(alns, 0)
}
