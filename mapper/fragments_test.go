package mapper

import (
	"sync"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestFragmentModelConvergence(t *testing.T) {
	f := NewFragmentModel(DefaultOpts)
	expect.EQ(t, f.Snapshot().Size, 0)

	var last FragmentSnapshot
	for i := 0; i < 100; i++ {
		n := 290
		if i%2 == 1 {
			n = 310
		}
		last = f.Observe(FragmentObservation{Length: n, Reverse2: true})
	}
	s := f.Snapshot()
	expect.EQ(t, s, last)
	expect.True(t, s.Mean > 299 && s.Mean < 301, "mean %v", s.Mean)
	expect.True(t, s.Stdev > 9.9 && s.Stdev < 10.1, "stdev %v", s.Stdev)
	expect.EQ(t, s.Size, int(s.Mean+DefaultOpts.FragmentSigma*s.Stdev))
	expect.False(t, s.Orientation)
	expect.True(t, s.Direction)
	expect.EQ(t, s.RelativeDensity(s.Mean), 1.0)
	expect.True(t, s.RelativeDensity(s.Mean+s.Stdev) < 1)
}

func TestFragmentModelInterval(t *testing.T) {
	o := DefaultOpts
	o.FragmentLengthEstimateInterval = 3
	f := NewFragmentModel(o)
	for i := 0; i < 3; i++ {
		f.Observe(FragmentObservation{Length: 100})
	}
	expect.EQ(t, f.Snapshot().Size, 0)
	f.Observe(FragmentObservation{Length: 100})
	s := f.Snapshot()
	expect.EQ(t, s.Size, 100)
	expect.EQ(t, s.Stdev, 0.0)
	expect.True(t, s.Orientation)
}

func TestFragmentModelSeeded(t *testing.T) {
	o := DefaultOpts
	o.FragmentSize = 500
	o.FragmentMean = 300
	o.FragmentStdev = 20
	o.FragmentOrientation = true
	f := NewFragmentModel(o)
	expect.EQ(t, f.Snapshot(), FragmentSnapshot{Size: 500, Mean: 300, Stdev: 20, Orientation: true})
}

func TestFragmentModelBatchIsAtomic(t *testing.T) {
	o := DefaultOpts
	o.FragmentLengthEstimateInterval = 0
	o.FragmentLengthCacheSize = 2
	f := NewFragmentModel(o)
	// Every batch ends with the same two observations, so a reader that
	// sees whole batches always sees the same model.
	batch := []FragmentObservation{{Length: 200}, {Length: 400}, {Length: 400}}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := f.Observe(batch...)
				expect.EQ(t, s.Size, 400)
				expect.EQ(t, f.Snapshot().Mean, 400.0)
			}
		}()
	}
	wg.Wait()
}

func TestPushCapped(t *testing.T) {
	var s []int
	for i := 0; i < 5; i++ {
		s = pushCapped(s, i, 3)
	}
	expect.EQ(t, s, []int{2, 3, 4})
}
