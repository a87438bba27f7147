package mapper

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/biosimd"
	"github.com/dkj/vg/graph"
	"github.com/dkj/vg/pathindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// bubbleGFA is 1(CAT) -> 2(G) | 3(T) -> 4(ACGA).
const bubbleGFA = "S\t1\tCAT\nS\t2\tG\nS\t3\tT\nS\t4\tACGA\n" +
	"L\t1\t+\t2\t+\t0M\nL\t1\t+\t3\t+\t0M\nL\t2\t+\t4\t+\t0M\nL\t3\t+\t4\t+\t0M\n"

func randomSeq(seed int64, n int) string {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	for i := range b {
		b[i] = "ACGT"[r.Intn(4)]
	}
	return string(b)
}

func revComp(s string) string { return biosimd.ReverseComp8String(s) }

func testOpts() Opts {
	o := DefaultOpts
	o.MinMEMLength = 8
	return o
}

func newMapper(t *testing.T, g *graph.Graph, order int, opts Opts) *Mapper {
	idx, err := pathindex.Build(g, pathindex.Opts{Order: order})
	require.NoError(t, err)
	m, err := New(g, idx, idx, opts)
	require.NoError(t, err)
	return m
}

func bubbleMapper(t *testing.T, opts Opts) *Mapper {
	g, err := graph.ReadGFA(strings.NewReader(bubbleGFA))
	require.NoError(t, err)
	return newMapper(t, g, 8, opts)
}

// linearMapper maps against a single reference sequence named "ref",
// chopped into 32 base nodes.
func linearMapper(t *testing.T, ref string, opts Opts) *Mapper {
	g, err := graph.FromFASTA(strings.NewReader(fmt.Sprintf(">ref\n%s\n", ref)), 32)
	require.NoError(t, err)
	return newMapper(t, g, 64, opts)
}

func read(name, seq string) align.Alignment {
	return align.Alignment{Name: name, Sequence: []byte(seq)}
}

func TestNewErrors(t *testing.T) {
	g, err := graph.ReadGFA(strings.NewReader(bubbleGFA))
	require.NoError(t, err)
	idx, err := pathindex.Build(g, pathindex.Opts{Order: 8})
	require.NoError(t, err)

	_, err = New(nil, idx, idx, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = New(g, nil, idx, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))

	o := DefaultOpts
	o.MinMEMLength = 11
	o.MEMReseedLength = 8
	_, err = New(g, idx, idx, o)
	expect.True(t, errors.Is(errors.Invalid, err))

	other, err := graph.FromFASTA(strings.NewReader(">x\nACGTACGTAC\n"), 4)
	require.NoError(t, err)
	_, err = New(other, idx, idx, DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestAlignExactThroughBubble(t *testing.T) {
	o := DefaultOpts
	o.MinMEMLength = 1
	w := bubbleMapper(t, o).NewWorker()

	mems, _, err := w.FindMEMsDeep([]byte("CATGACGA"), 0, 1, 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	expect.EQ(t, mems[0].Length(), 8)
	expect.EQ(t, mems[0].Positions, []graph.Pos{{Node: 1}})

	for _, tc := range []struct {
		seq, path string
	}{
		{"CATGACGA", ">1>2>4"},
		{"CATTACGA", ">1>3>4"},
	} {
		alns, err := w.AlignMulti(read("r", tc.seq))
		require.NoError(t, err)
		require.Len(t, alns, 1)
		a := alns[0]
		expect.EQ(t, a.Name, "r")
		expect.EQ(t, a.Path.String(), tc.path)
		expect.EQ(t, a.Score, 8)
		expect.EQ(t, a.Identity, 1.0)
		expect.EQ(t, align.EditCount(a), 0)
		expect.False(t, a.IsSecondary)
		expect.True(t, a.MappingQuality > 0)
		expect.NoError(t, w.CheckAlignment(a))
	}
	expect.EQ(t, w.Stats.Reads, 2)
	expect.EQ(t, w.Stats.Unaligned, 0)
}

func TestAlignUnmappable(t *testing.T) {
	w := bubbleMapper(t, DefaultOpts).NewWorker()
	for _, seq := range []string{"", "NNNN"} {
		a, err := w.Align(read("n", seq))
		require.NoError(t, err)
		expect.False(t, a.HasPath())
		expect.EQ(t, a.Name, "n")
		expect.EQ(t, string(a.Sequence), seq)
		expect.EQ(t, a.MappingQuality, 0)
	}
	expect.EQ(t, w.Stats.Unaligned, 2)
}

func TestAlignMultiRepeat(t *testing.T) {
	unit := randomSeq(1, 40)
	ref := randomSeq(2, 100) + unit + randomSeq(3, 100) + unit + randomSeq(4, 100)
	o := testOpts()
	o.MaxMultimaps = 2
	o.MinMultimaps = 2
	w := linearMapper(t, ref, o).NewWorker()

	alns, err := w.AlignMulti(read("rep", unit))
	require.NoError(t, err)
	require.Len(t, alns, 2)
	starts := map[int]bool{}
	for i, a := range alns {
		expect.EQ(t, a.Identity, 1.0)
		expect.EQ(t, a.IsSecondary, i > 0)
		expect.EQ(t, string(align.PathSequence(a.Path, w.m.Graph())), unit)
		starts[w.approxAlignmentPosition(a)] = true
	}
	expect.EQ(t, starts, map[int]bool{100: true, 240: true})
	// Two equally good placements leave no confidence in either.
	expect.EQ(t, alns[0].MappingQuality, 0)

	o.MaxMultimaps = 1
	o.MinMultimaps = 1
	w = linearMapper(t, ref, o).NewWorker()
	alns, err = w.AlignMulti(read("rep", unit))
	require.NoError(t, err)
	require.Len(t, alns, 1)
	expect.EQ(t, alns[0].MappingQuality, 0)
}

func TestAlignReverseStrand(t *testing.T) {
	ref := randomSeq(5, 300)
	w := linearMapper(t, ref, testOpts()).NewWorker()
	a, err := w.Align(read("rc", revComp(ref[120:180])))
	require.NoError(t, err)
	require.True(t, a.HasPath())
	expect.True(t, a.Path.Mappings[0].Position.Reverse)
	expect.EQ(t, a.Identity, 1.0)
	expect.EQ(t, string(align.PathSequence(a.Path, w.m.Graph())), revComp(ref[120:180]))
	expect.EQ(t, w.ScoreAlignment(a), 60)
}

func TestCheckAlignmentsDegrades(t *testing.T) {
	o := DefaultOpts
	o.MinMEMLength = 1
	o.CheckAlignments = true
	w := bubbleMapper(t, o).NewWorker()
	a, err := w.Align(read("r", "CATGACGA"))
	require.NoError(t, err)
	require.True(t, a.HasPath())

	bad := a.Clone()
	bad.Sequence[0] = 'G'
	err = w.CheckAlignment(bad)
	expect.True(t, errors.Is(errors.Integrity, err))
	expect.False(t, w.checked(bad).HasPath())
	expect.EQ(t, w.Stats.FailedChecks, 1)

	bad = a.Clone()
	bad.Quality = []byte("III")
	expect.True(t, errors.Is(errors.Integrity, w.CheckAlignment(bad)))
}

func TestConcurrentWorkers(t *testing.T) {
	ref := randomSeq(12, 1000)
	m := linearMapper(t, ref, testOpts())
	workers := make([]*Worker, 4)
	var wg sync.WaitGroup
	for i := range workers {
		workers[i] = m.NewWorker()
		wg.Add(1)
		go func(w *Worker, seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for j := 0; j < 20; j++ {
				begin := r.Intn(900)
				a, err := w.Align(read("c", ref[begin:begin+80]))
				expect.NoError(t, err)
				expect.EQ(t, w.approxAlignmentPosition(a), begin)
			}
		}(workers[i], int64(i))
	}
	wg.Wait()
	var total Stats
	for _, w := range workers {
		total = total.Merge(w.Stats)
	}
	expect.EQ(t, total.Reads, 80)
	expect.EQ(t, total.Unaligned, 0)
}
