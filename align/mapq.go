package align

import (
	"math"

	"github.com/grailbio/base/log"
	"gonum.org/v1/gonum/floats"
)

// qualityScale converts natural-log probabilities to the Phred scale.
var qualityScale = 10 / math.Ln10

// PhredToProb converts a Phred-scaled quality to an error probability.
func PhredToProb(q float64) float64 { return math.Pow(10, -q/10) }

// ProbToPhred converts an error probability to the Phred scale.
func ProbToPhred(p float64) float64 { return -10 * math.Log10(p) }

// RecoverLogBase finds the scale lambda under which alignment scores are
// log-odds of a random model with the given GC content: the positive root of
// sum_ij f_i f_j exp(lambda*s_ij) = 1.
func RecoverLogBase(s Scoring, gc float64, tol float64) float64 {
	freqs := [4]float64{(1 - gc) / 2, gc / 2, gc / 2, (1 - gc) / 2}
	partition := func(lambda float64) float64 {
		var z float64
		for i := range freqs {
			for j := range freqs {
				score := float64(-s.Mismatch)
				if i == j {
					score = float64(s.Match)
				}
				z += freqs[i] * freqs[j] * math.Exp(lambda*score)
			}
		}
		return z
	}
	lo, hi := 1.0, 1.0
	for partition(lo) > 1 {
		lo /= 2
	}
	for partition(hi) < 1 {
		hi *= 2
	}
	for hi-lo > tol {
		mid := (lo + hi) / 2
		if partition(mid) < 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// QualityModel turns alignment score distributions into mapping qualities.
type QualityModel struct {
	Scoring
	// LogBase scales raw scores to natural-log likelihoods.
	LogBase float64
}

// NewQualityModel returns a model for reads drawn from a reference with the
// given GC content.
func NewQualityModel(s Scoring, gc float64) *QualityModel {
	if gc <= 0 || gc >= 1 {
		gc = 0.5
	}
	return &QualityModel{Scoring: s, LogBase: RecoverLogBase(s, gc, 1e-12)}
}

func maxQualityExact(scaled []float64) (float64, int) {
	idx := floats.MaxIdx(scaled)
	lse := floats.LogSumExp(scaled)
	// log(1 - p_max)
	q := -qualityScale * math.Log1p(-math.Exp(scaled[idx]-lse))
	if math.IsInf(q, 0) || math.IsNaN(q) {
		return math.MaxInt32, idx
	}
	return q, idx
}

func maxQualityApprox(scaled []float64) (float64, int) {
	if len(scaled) == 1 {
		return qualityScale * scaled[0], 0
	}
	maxScore, maxIdx := scaled[0], 0
	next, nextCount := math.Inf(-1), 0
	for i := 1; i < len(scaled); i++ {
		s := scaled[i]
		switch {
		case s > maxScore:
			if next == maxScore {
				nextCount++
			} else {
				next, nextCount = maxScore, 1
			}
			maxScore, maxIdx = s, i
		case s > next:
			next, nextCount = s, 1
		case s == next:
			nextCount++
		}
	}
	d := maxScore - next
	if nextCount > 1 {
		d -= math.Log(float64(nextCount))
	}
	return qualityScale * d, maxIdx
}

func (m *QualityModel) scaled(scores []int) []float64 {
	if m.LogBase <= 0 {
		log.Panicf("align: quality model has no log base")
	}
	r := make([]float64, len(scores))
	for i, s := range scores {
		r[i] = m.LogBase * float64(s)
	}
	return r
}

// MQOpts are the inputs to a mapping quality computation other than the
// alignments themselves.
type MQOpts struct {
	// Approx selects the fast approximation instead of the exact posterior.
	Approx bool
	// ClusterMQ is blended in when UseClusterMQ is set.
	ClusterMQ    float64
	UseClusterMQ bool
}

func (m *QualityModel) finish(q float64, maxMQ float64, o MQOpts, overlaps int, estimate float64) float64 {
	if o.UseClusterMQ {
		q = ProbToPhred(math.Sqrt(PhredToProb(o.ClusterMQ + q)))
	}
	if overlaps > 0 {
		q /= float64(overlaps)
	}
	if estimate < q {
		q = ProbToPhred(math.Sqrt(PhredToProb(estimate + q)))
	}
	if q > maxMQ {
		q = maxMQ
	}
	return q
}

// ComputeMappingQuality sets the mapping quality of the best alignment in
// alns; the others get 0. overlaps is the number of other alignments that
// substantially overlap the best one; estimate is an upper bound on the
// quality the read could support.
func (m *QualityModel) ComputeMappingQuality(alns []Alignment, maxMQ float64, o MQOpts, overlaps int, estimate float64) {
	if len(alns) == 0 {
		return
	}
	scores := make([]int, len(alns))
	for i := range alns {
		scores[i] = alns[i].Score
	}
	q, idx := m.quality(scores, o.Approx)
	q = m.finish(q, maxMQ, o, overlaps, estimate)
	if alns[idx].Score == 0 {
		q = 0
	}
	for i := range alns {
		alns[i].MappingQuality = 0
	}
	alns[idx].MappingQuality = roundQuality(q)
}

// ComputePairedMappingQuality is ComputeMappingQuality over pairs: the
// quality comes from the summed pair scores, and each mate is capped and
// adjusted independently.
func (m *QualityModel) ComputePairedMappingQuality(first, second []Alignment, maxMQ1, maxMQ2 float64, o MQOpts,
	overlaps1, overlaps2 int, estimate1, estimate2 float64) {
	if len(first) == 0 || len(second) == 0 {
		return
	}
	n := len(first)
	if len(second) < n {
		n = len(second)
	}
	scores := make([]int, n)
	for i := 0; i < n; i++ {
		scores[i] = first[i].Score + second[i].Score
	}
	q, idx := m.quality(scores, o.Approx)
	q1 := m.finish(q, maxMQ1, o, overlaps1, estimate1)
	q2 := m.finish(q, maxMQ2, o, overlaps2, estimate2)
	if first[idx].Score == 0 {
		q1 = 0
	}
	if second[idx].Score == 0 {
		q2 = 0
	}
	for i := range first {
		first[i].MappingQuality = 0
	}
	for i := range second {
		second[i].MappingQuality = 0
	}
	first[idx].MappingQuality = roundQuality(q1)
	second[idx].MappingQuality = roundQuality(q2)
}

func (m *QualityModel) quality(scores []int, approx bool) (float64, int) {
	scaled := m.scaled(scores)
	if approx {
		return maxQualityApprox(scaled)
	}
	return maxQualityExact(scaled)
}

// EstimateMaxPossibleMappingQuality bounds the quality achievable by a read
// of the given length whose best explanation needs minDiffs differences and
// whose runner-up needs nextMinDiffs.
func (m *QualityModel) EstimateMaxPossibleMappingQuality(length int, minDiffs, nextMinDiffs float64) float64 {
	l := float64(length)
	best := m.LogBase * ((l-minDiffs)*float64(m.Match) - minDiffs*float64(m.Mismatch))
	next := m.LogBase * ((l-nextMinDiffs)*float64(m.Match) - nextMinDiffs*float64(m.Mismatch))
	return qualityScale * (best - next)
}

func roundQuality(q float64) int {
	if q <= 0 || math.IsNaN(q) {
		return 0
	}
	if q >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(q))
}
