package mapper

import (
	"fmt"
	"testing"

	"github.com/dkj/vg/align"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// pairedRef is a 600 base reference. Mate 1 of testPair lies forward at
// [50,100), mate 2 on the reverse strand at [300,350); their nodes' mean
// path positions are 240 apart.
var pairedRef = randomSeq(11, 600)

func testPair(i int) (align.Alignment, align.Alignment) {
	return read(fmt.Sprintf("p%d/1", i), pairedRef[50:100]), read(fmt.Sprintf("p%d/2", i), revComp(pairedRef[300:350]))
}

func TestAlignPairedLearnsFragments(t *testing.T) {
	m := linearMapper(t, pairedRef, testOpts())
	w := m.NewWorker()

	for i := 0; i < 11; i++ {
		r1, r2 := testPair(i)
		alns1, alns2, queued, err := w.AlignPairedMulti(r1, r2, false)
		require.NoError(t, err)
		expect.False(t, queued)
		require.Len(t, alns1, 1)
		require.Len(t, alns2, 1)
		a1, a2 := alns1[0], alns2[0]
		expect.EQ(t, a1.Name, r1.Name)
		expect.EQ(t, a2.Name, r2.Name)
		expect.EQ(t, a1.FragmentNext, r2.Name)
		expect.EQ(t, a2.FragmentPrev, r1.Name)
		expect.EQ(t, a1.Identity, 1.0)
		expect.EQ(t, a2.Identity, 1.0)
		expect.False(t, a1.Path.Mappings[0].Position.Reverse)
		expect.True(t, a2.Path.Mappings[0].Position.Reverse)
		expect.EQ(t, a1.Fragment, []align.Fragment{{Name: "ref", Length: 240}})
		expect.EQ(t, a2.Fragment, a1.Fragment)
		expect.True(t, w.PairConsistent(a1, a2, FragmentSnapshot{}))
	}
	s := m.Fragments.Snapshot()
	expect.EQ(t, s, FragmentSnapshot{Size: 240, Mean: 240, Orientation: false, Direction: true})
	expect.EQ(t, w.Stats.Pairs, 11)
	expect.EQ(t, w.Stats.Deferred, 0)
	expect.EQ(t, len(m.TakeDeferred()), 0)

	// With the model in place the mates are too far apart to chain
	// directly, so each is rescued from the other.
	r1, r2 := testPair(11)
	alns1, alns2, queued, err := w.AlignPairedMulti(r1, r2, false)
	require.NoError(t, err)
	expect.False(t, queued)
	require.Len(t, alns1, 1)
	expect.True(t, alns1[0].HasPath())
	expect.True(t, alns2[0].HasPath())
	expect.True(t, w.Stats.RescuesAccepted > 0)
}

func TestAlignPairedDefersUntilModel(t *testing.T) {
	o := testOpts()
	o.PerfectPairIdentityThreshold = 1
	m := linearMapper(t, pairedRef, o)
	w := m.NewWorker()

	r1, r2 := testPair(0)
	alns1, alns2, queued, err := w.AlignPairedMulti(r1, r2, false)
	require.NoError(t, err)
	expect.True(t, queued)
	require.Len(t, alns1, 1)
	require.Len(t, alns2, 1)
	expect.False(t, alns1[0].HasPath())
	expect.False(t, alns2[0].HasPath())
	expect.EQ(t, alns1[0].FragmentNext, r2.Name)
	expect.EQ(t, w.Stats.Deferred, 1)
	expect.EQ(t, w.Stats.Unaligned, 2)

	deferred := m.TakeDeferred()
	require.Len(t, deferred, 1)
	expect.EQ(t, deferred[0].Read1.Name, r1.Name)
	expect.EQ(t, len(m.TakeDeferred()), 0)

	alns1, alns2, queued, err = w.AlignPairedMulti(deferred[0].Read1, deferred[0].Read2, true)
	require.NoError(t, err)
	expect.False(t, queued)
	expect.True(t, alns1[0].HasPath())
	expect.True(t, alns2[0].HasPath())
	// Retries neither record fragments nor teach the model.
	expect.EQ(t, len(alns1[0].Fragment), 0)
	expect.EQ(t, len(m.Fragments.lengths), 0)
	expect.EQ(t, w.Stats.Retried, 1)
	expect.EQ(t, w.Stats.Pairs, 2)
}

func TestAlignPairedUnmappableMate(t *testing.T) {
	m := linearMapper(t, pairedRef, testOpts())
	w := m.NewWorker()
	r1, _ := testPair(0)
	r2 := read("p0/2", "NNNNNNNNNNNNNNNNNNNN")
	alns1, alns2, queued, err := w.AlignPairedMulti(r1, r2, false)
	require.NoError(t, err)
	// An unplaced mate gives no fragment length, so nothing is learned
	// and nothing is queued.
	expect.False(t, queued)
	expect.True(t, alns1[0].HasPath())
	expect.False(t, alns2[0].HasPath())
	expect.EQ(t, len(m.Fragments.lengths), 0)
	expect.EQ(t, w.Stats.Unaligned, 1)
}

func TestPairRescue(t *testing.T) {
	w := linearMapper(t, pairedRef, testOpts()).NewWorker()
	r1, r2 := testPair(0)
	a1, err := w.Align(r1)
	require.NoError(t, err)
	model := FragmentSnapshot{Size: 400, Mean: 250, Stdev: 10, Direction: true}

	weak := r2.Unaligned()
	expect.False(t, w.PairRescue(&a1, &weak, FragmentSnapshot{}))
	expect.True(t, w.PairRescue(&a1, &weak, model))
	require.True(t, weak.HasPath())
	expect.True(t, weak.Path.Mappings[0].Position.Reverse)
	expect.EQ(t, weak.Identity, 1.0)
	expect.EQ(t, weak.Score, 50)
	expect.EQ(t, w.Stats.RescuesAttempted, 1)
	expect.EQ(t, w.Stats.RescuesAccepted, 1)

	// Both mates are now good; there is nothing to rescue.
	expect.False(t, w.PairRescue(&a1, &weak, model))

	expect.True(t, w.PairConsistent(a1, weak, model))
	model.Orientation = true
	expect.False(t, w.PairConsistent(a1, weak, model))
}

func TestLikelyMatePosition(t *testing.T) {
	w := linearMapper(t, pairedRef, testOpts()).NewWorker()
	a1, err := w.Align(read("m1", pairedRef[50:100]))
	require.NoError(t, err)
	model := FragmentSnapshot{Size: 400, Mean: 250, Direction: true}

	p := w.likelyMatePosition(a1, true, model)
	expect.True(t, p.Reverse)
	expect.EQ(t, w.g.NodeStart(p.Node), 288)

	a2, err := w.Align(read("m2", revComp(pairedRef[300:350])))
	require.NoError(t, err)
	p = w.likelyMatePosition(a2, false, model)
	expect.False(t, p.Reverse)
	// 349 - 250 lies in the node starting at 96.
	expect.EQ(t, w.g.NodeStart(p.Node), 96)
}

func TestAlignmentMeanPathPositions(t *testing.T) {
	w := linearMapper(t, pairedRef, testOpts()).NewWorker()
	a, err := w.Align(read("m1", pairedRef[50:100]))
	require.NoError(t, err)
	expect.EQ(t, w.AlignmentMeanPathPositions(a, false), map[string]float64{"ref": 80})
	expect.EQ(t, w.AlignmentMeanPathPositions(a, true), map[string]float64{"ref": 48})

	pos2 := map[string]float64{"ref": 320}
	expect.True(t, AlignmentsConsistent(w.AlignmentMeanPathPositions(a, false), pos2, 241))
	expect.False(t, AlignmentsConsistent(w.AlignmentMeanPathPositions(a, false), pos2, 240))
	expect.False(t, AlignmentsConsistent(map[string]float64{"other": 320}, pos2, 1000))
}

func TestAlignPairedOnlyTopScoringPair(t *testing.T) {
	o := testOpts()
	o.OnlyTopScoringPair = true
	w := linearMapper(t, pairedRef, o).NewWorker()
	// The best pair holds the best alignment of each mate, so it is kept.
	r1, r2 := testPair(0)
	alns1, alns2, _, err := w.AlignPairedMulti(r1, r2, false)
	require.NoError(t, err)
	require.Len(t, alns1, 1)
	require.Len(t, alns2, 1)
	expect.EQ(t, alns1[0].Identity, 1.0)
	expect.EQ(t, alns2[0].Identity, 1.0)
}
