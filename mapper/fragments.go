package mapper

import (
	"math"
	"sync"

	"github.com/grailbio/base/log"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// FragmentSnapshot is a consistent view of the fragment length model.
type FragmentSnapshot struct {
	// Size is the longest fragment considered consistent. 0 means no model
	// has been learned.
	Size  int
	Mean  float64
	Stdev float64
	// Orientation is true when the mates of a pair usually align to the
	// same strand.
	Orientation bool
	// Direction is true when mate 2 usually lies forward of mate 1 along
	// mate 1's strand.
	Direction bool
}

// RelativeDensity is the normal density of a fragment of length x divided
// by the density at the mean, so 1 at the mean and falling away from it.
func (s FragmentSnapshot) RelativeDensity(x float64) float64 {
	if s.Stdev <= 0 || math.IsNaN(s.Stdev) {
		if x == s.Mean {
			return 1
		}
		return 0
	}
	n := distuv.Normal{Mu: s.Mean, Sigma: s.Stdev}
	return n.Prob(x) / n.Prob(s.Mean)
}

// density is the normal density of a fragment of length x.
func (s FragmentSnapshot) density(x float64) float64 {
	if s.Stdev <= 0 || math.IsNaN(s.Stdev) {
		return 0
	}
	return distuv.Normal{Mu: s.Mean, Sigma: s.Stdev}.Prob(x)
}

// FragmentObservation is the configuration of one confidently placed pair.
type FragmentObservation struct {
	// Length is the signed distance from mate 1 to mate 2 along the linear
	// projection of the graph.
	Length int
	// Reverse1 and Reverse2 are the strands the mates aligned to.
	Reverse1, Reverse2 bool
}

// FragmentModel learns the fragment length distribution and mate
// orientation from recent confidently placed pairs. Observations are
// folded in atomically: a reader sees either all or none of a batch.
type FragmentModel struct {
	sigma     float64
	cacheSize int
	interval  int

	mu           sync.Mutex
	lengths      []float64
	orientations []bool
	directions   []bool
	since        int
	snap         FragmentSnapshot
}

// NewFragmentModel creates a model. If opts.FragmentSize is set the model
// starts from opts' fragment parameters; it is re-estimated as pairs are
// observed either way.
func NewFragmentModel(opts Opts) *FragmentModel {
	f := &FragmentModel{
		sigma:     opts.FragmentSigma,
		cacheSize: opts.FragmentLengthCacheSize,
		interval:  opts.FragmentLengthEstimateInterval,
	}
	if f.cacheSize < 1 {
		f.cacheSize = 1
	}
	if opts.FragmentSize > 0 {
		f.snap = FragmentSnapshot{
			Size:        opts.FragmentSize,
			Mean:        opts.FragmentMean,
			Stdev:       opts.FragmentStdev,
			Orientation: opts.FragmentOrientation,
			Direction:   opts.FragmentDirection,
		}
	} else {
		f.snap.Direction = true
	}
	return f
}

// Snapshot returns the current model.
func (f *FragmentModel) Snapshot() FragmentSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// Observe folds a batch of observations into the model and returns the
// model as of the end of the batch. Every interval observations the mean,
// population standard deviation and majority orientation and direction
// are re-estimated from the most recent observations, and the size cutoff
// is set to mean + sigma*stdev.
func (f *FragmentModel) Observe(obs ...FragmentObservation) FragmentSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range obs {
		f.lengths = pushCapped(f.lengths, float64(abs(o.Length)), f.cacheSize)
		f.orientations = pushCapped(f.orientations, o.Reverse1 == o.Reverse2, f.cacheSize)
		f.directions = pushCapped(f.directions, (o.Reverse1 && o.Length <= 0) || (!o.Reverse1 && o.Length >= 0), f.cacheSize)
		f.since++
		if f.since > f.interval {
			f.estimate()
			f.since = 1
		}
	}
	return f.snap
}

func (f *FragmentModel) estimate() {
	mean, stdev := stat.PopMeanStdDev(f.lengths, nil)
	f.snap = FragmentSnapshot{
		Mean:        mean,
		Stdev:       stdev,
		Size:        int(mean + f.sigma*stdev),
		Orientation: majority(f.orientations),
		Direction:   majority(f.directions),
	}
	log.Debug.Printf("fragment model: mean %.1f stdev %.1f size %d orientation %v direction %v",
		mean, stdev, f.snap.Size, f.snap.Orientation, f.snap.Direction)
}

func majority(v []bool) bool {
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return n > len(v)-n
}

// pushCapped appends x, dropping the oldest entries beyond capacity.
func pushCapped[T any](s []T, x T, capacity int) []T {
	s = append(s, x)
	if len(s) > capacity {
		n := copy(s, s[len(s)-capacity:])
		s = s[:n]
	}
	return s
}
