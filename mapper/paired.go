package mapper

import (
	"math"
	"sort"

	"github.com/dkj/vg/align"
	"github.com/grailbio/base/log"
)

// alignedPair is one candidate placement of a read pair.
type alignedPair struct {
	first, second align.Alignment
}

// pairBonus favours pairs whose mates lie at a likely fragment length in
// the expected orientation.
func (w *Worker) pairBonus(p alignedPair, model FragmentSnapshot) float64 {
	if model.Size == 0 {
		return 0
	}
	dist := w.ApproxFragmentLength(p.first, p.second)
	if dist < 0 || !w.PairConsistent(p.first, p.second, model) {
		return 0
	}
	return model.density(float64(dist)) * model.Mean
}

// sortAndDedupPairs orders pairs by summed score plus the fragment length
// bonus, then drops each pair that is the same placement as the one kept
// before it.
func (w *Worker) sortAndDedupPairs(pairs []alignedPair, model FragmentSnapshot) []alignedPair {
	keys := make([]float64, len(pairs))
	idx := make([]int, len(pairs))
	for i, p := range pairs {
		keys[i] = float64(p.first.Score+p.second.Score) + w.pairBonus(p, model)
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] > keys[idx[j]] })
	sorted := make([]alignedPair, 0, len(pairs))
	for _, i := range idx {
		if n := len(sorted); n > 0 && samePairStart(sorted[n-1], pairs[i]) {
			continue
		}
		sorted = append(sorted, pairs[i])
	}
	return sorted
}

// AlignPairedMulti maps a read pair. The MEMs of both mates are chained
// together, so that clusters spanning both mates are favoured when the
// mates lie at a plausible fragment length. It returns index-aligned lists
// of mate alignments, best pair first, each with at least one entry.
//
// Until a fragment model has been learned, a pair that is not placed
// uniquely and with high identity is queued for a later retry and
// reported unaligned, with queued set; see TakeDeferred. Retried pairs
// are mapped with retrying set, which never queues and does not feed the
// fragment model.
func (w *Worker) AlignPairedMulti(read1, read2 align.Alignment, retrying bool) (alns1, alns2 []align.Alignment, queued bool, err error) {
	o := &w.m.Opts
	w.Stats.Pairs++
	if retrying {
		w.Stats.Retried++
	}
	model := w.m.Fragments.Snapshot()
	len1, len2 := len(read1.Sequence), len(read2.Sequence)

	mems1, lcp1, err := w.FindMEMsDeep(read1.Sequence, o.MaxMEMLength, o.MinMEMLength, o.MEMReseedLength)
	if err != nil {
		return nil, nil, false, err
	}
	mems2, lcp2, err := w.FindMEMsDeep(read2.Sequence, o.MaxMEMLength, o.MinMEMLength, o.MEMReseedLength)
	if err != nil {
		return nil, nil, false, err
	}
	for i := range mems2 {
		mems2[i].Fragment = 2
	}

	total := o.MaxMultimaps + o.ExtraMultimaps
	mqCap1, mqCap2 := float64(o.MaxMappingQuality), float64(o.MaxMappingQuality)
	maybe := math.Min(w.maybeMappingQuality(len1, mems1, lcp1), w.maybeMappingQuality(len2, mems2, lcp2))
	if maybe < o.MaybeMQThreshold {
		mqCap1, mqCap2 = maybe, maybe
	}
	if o.MinMultimaps < o.MaxMultimaps {
		total = scaleMultimaps(total, o.MinMultimaps, maybe)
	}

	var clusters [][]MEM
	if total > 0 {
		bandWidth := o.FragmentMax
		if model.Size > 0 {
			bandWidth = model.Size
		}
		chain := NewChainModel([]int{len1, len2}, [][]MEM{mems1, mems2}, w.approxPosition,
			w.pairedTransition(len1, len2, model), max(len1+len2, bandWidth), o.ChainPositionDepth, o.ChainMaxConnections)
		clusters = chain.Traceback(total, true)
		if log.At(log.Debug) {
			log.Debug.Printf("%s/%s: %d+%d MEMs, %d clusters\n%v", read1.Name, read2.Name,
				len(mems1), len(mems2), len(clusters), chain)
		}
	}

	drop := clustersToDrop(clusters, o.DropChain)
	var pairs []alignedPair
	multimaps := 0
	for i, cluster := range clusters {
		if drop.Test(uint(i)) && multimaps >= o.MinMultimaps {
			continue
		}
		if multimaps > total {
			break
		}
		if o.MinClusterLength > 0 && clusterCoverage(cluster) < o.MinClusterLength && len(pairs) > 1 {
			continue
		}
		var c1, c2 []MEM
		for _, mem := range cluster {
			switch mem.Fragment {
			case 1:
				if len(c2) > 0 {
					log.Panicf("cluster of %s/%s returns to mate 1 after mate 2", read1.Name, read2.Name)
				}
				c1 = append(c1, mem)
			case 2:
				c2 = append(c2, mem)
			}
		}
		p := alignedPair{first: read1.Unaligned(), second: read2.Unaligned()}
		if len(c1) > 0 {
			p.first = w.AlignCluster(read1, c1)
		}
		if len(c2) > 0 {
			p.second = w.AlignCluster(read2, c2)
		}
		pairs = append(pairs, p)
		multimaps++
	}

	pairs = w.sortAndDedupPairs(pairs, model)
	if model.Size > 0 {
		rescued := false
		for j := range pairs {
			if j == o.MateRescues {
				break
			}
			if w.PairRescue(&pairs[j].first, &pairs[j].second, model) {
				rescued = true
			}
		}
		if rescued {
			pairs = w.sortAndDedupPairs(pairs, model)
		}
	}

	clusterMQ := 0.0
	if o.UseClusterMQ {
		clusterMQ = clusterMappingQuality(clusters, len1+len2, float64(o.MaxClusterMappingQuality))
	}
	max1, max2 := 0, 0
	for _, p := range pairs {
		alns1 = append(alns1, p.first)
		alns2 = append(alns2, p.second)
		if p.first.Score > max1 {
			max1 = p.first.Score
		}
		if p.second.Score > max2 {
			max2 = p.second.Score
		}
	}
	w.computePairedMappingQualities(alns1, alns2, clusterMQ, mqCap1, mqCap2)
	if len(alns1) > o.MaxMultimaps {
		alns1, alns2 = alns1[:o.MaxMultimaps], alns2[:o.MaxMultimaps]
	}
	for i := range alns1 {
		alns1[i].IsSecondary = i > 0
		alns2[i].IsSecondary = i > 0
	}
	if o.OnlyTopScoringPair && len(alns1) > 0 && (alns1[0].Score < max1 || alns2[0].Score < max2) {
		alns1, alns2 = nil, nil
	}

	imperfect := false
	if !retrying {
		var obs []FragmentObservation
		for i := range alns1 {
			a1, a2 := &alns1[i], &alns2[i]
			lengths := w.ApproxPairFragmentLength(*a1, *a2)
			names := make([]string, 0, len(lengths))
			for name := range lengths {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				n := lengths[name]
				a1.Fragment = append(a1.Fragment, align.Fragment{Name: name, Length: n})
				a2.Fragment = append(a2.Fragment, align.Fragment{Name: name, Length: n})
				cutoff := o.FragmentMax
				if model.Size > 0 {
					cutoff = model.Size
				}
				if len(alns1) == 1 && a1.Identity > o.PerfectPairIdentityThreshold &&
					a2.Identity > o.PerfectPairIdentityThreshold && abs(n) < cutoff {
					obs = append(obs, FragmentObservation{
						Length:   n,
						Reverse1: a1.Path.Mappings[0].Position.Reverse,
						Reverse2: a2.Path.Mappings[0].Position.Reverse,
					})
				} else if model.Size == 0 {
					imperfect = true
					break
				}
			}
		}
		if len(obs) > 0 {
			w.m.Fragments.Observe(obs...)
		}
	}
	if !retrying && imperfect && o.FragmentMax > 0 {
		w.m.queueDeferred(Pair{Read1: read1, Read2: read2})
		w.Stats.Deferred++
		alns1, alns2 = nil, nil
		queued = true
	}

	if len(alns1) == 0 {
		alns1 = []align.Alignment{read1.Unaligned()}
	}
	if len(alns2) == 0 {
		alns2 = []align.Alignment{read2.Unaligned()}
	}
	for i := range alns1 {
		alns1[i] = w.checked(alns1[i])
		alns1[i].Name = read1.Name
		alns1[i].FragmentNext = read2.Name
	}
	for i := range alns2 {
		alns2[i] = w.checked(alns2[i])
		alns2[i].Name = read2.Name
		alns2[i].FragmentPrev = read1.Name
	}
	if !alns1[0].HasPath() {
		w.Stats.Unaligned++
	}
	if !alns2[0].HasPath() {
		w.Stats.Unaligned++
	}
	return alns1, alns2, queued, nil
}
