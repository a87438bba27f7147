package mapper

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/dkj/vg/graph"
	"github.com/dkj/vg/pathindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func linearIndex(t *testing.T, ref string) (*Worker, *pathindex.Index) {
	return linearIndexOpts(t, ref, testOpts())
}

func linearIndexOpts(t *testing.T, ref string, opts Opts) (*Worker, *pathindex.Index) {
	g, err := graph.FromFASTA(strings.NewReader(">ref\n"+ref+"\n"), 32)
	require.NoError(t, err)
	idx, err := pathindex.Build(g, pathindex.Opts{Order: 64})
	require.NoError(t, err)
	m, err := New(g, idx, idx, opts)
	require.NoError(t, err)
	return m.NewWorker(), idx
}

// checkMEMs verifies the properties every MEM list has, whatever the read.
func checkMEMs(t *testing.T, w *Worker, idx *pathindex.Index, seq []byte, mems []MEM, minLength int) {
	t.Helper()
	hitMax := w.m.Opts.HitMax
	for i, mem := range mems {
		expect.True(t, mem.Length() >= minLength, "mem %v", mem)
		expect.True(t, mem.MatchCount >= 0, "mem %v", mem)
		if mem.MatchCount == 0 || (hitMax > 0 && mem.MatchCount > hitMax) {
			expect.EQ(t, len(mem.Positions), 0, "mem %v", mem)
		}
		expect.False(t, containsN(mem.Sequence(seq)), "mem %v", mem)
		expect.EQ(t, mem.Fragment, 1)
		if mem.Primary {
			expect.True(t, len(mem.Positions) <= mem.MatchCount, "mem %v", mem)
			expect.EQ(t, idx.Count(idx.Find(mem.Sequence(seq))), mem.MatchCount, "mem %v", mem)
		}
		if i > 0 {
			expect.True(t, mems[i-1].Begin <= mem.Begin, "mems %v %v", mems[i-1], mem)
		}
	}
	expect.True(t, w.CheckMEMs(seq, mems))
}

func TestFindMEMsExact(t *testing.T) {
	ref := randomSeq(21, 400)
	w, idx := linearIndex(t, ref)
	seq := []byte(ref[100:150])

	mems, _, err := w.FindMEMsDeep(seq, 0, 8, 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	expect.EQ(t, mems[0].Begin, 0)
	expect.EQ(t, mems[0].End, 50)
	expect.EQ(t, mems[0].MatchCount, 1)
	expect.EQ(t, mems[0].Positions, []graph.Pos{{Node: 4, Offset: 4}})
	checkMEMs(t, w, idx, seq, mems, 8)

	simple := w.FindMEMsSimple(seq, 0, 8, 0)
	require.Len(t, simple, 1)
	expect.EQ(t, simple[0].Positions, mems[0].Positions)

	// Splitting at maxLength.
	mems, _, err = w.FindMEMsDeep(seq, 20, 8, 0)
	require.NoError(t, err)
	expect.True(t, len(mems) >= 3)
	for _, mem := range mems {
		expect.True(t, mem.Length() <= 20, "mem %v", mem)
	}
}

func TestFindMEMsBreakAtN(t *testing.T) {
	ref := randomSeq(22, 400)
	w, idx := linearIndex(t, ref)
	seq := []byte(ref[100:130] + "N" + ref[131:160])
	for _, mems := range [][]MEM{
		w.FindMEMsSimple(seq, 0, 8, 0),
		func() []MEM {
			mems, _, err := w.FindMEMsDeep(seq, 0, 8, 0)
			require.NoError(t, err)
			return mems
		}(),
	} {
		require.True(t, len(mems) >= 2)
		checkMEMs(t, w, idx, seq, mems, 8)
		expect.EQ(t, mems[0].Begin, 0)
		expect.EQ(t, mems[len(mems)-1].End, 60)
	}
}

func TestFindMEMsMutatedReads(t *testing.T) {
	ref := randomSeq(23, 1000)
	w, idx := linearIndex(t, ref)
	r := rand.New(rand.NewSource(24))
	for i := 0; i < 50; i++ {
		begin := r.Intn(900)
		seq := []byte(ref[begin : begin+100])
		for j := 0; j < 4; j++ {
			seq[r.Intn(len(seq))] = "ACGTN"[r.Intn(5)]
		}
		mems, _, err := w.FindMEMsDeep(seq, 0, 8, 0)
		require.NoError(t, err)
		checkMEMs(t, w, idx, seq, mems, 8)
	}
}

func TestFindMEMsReseed(t *testing.T) {
	x, y := randomSeq(25, 30), randomSeq(26, 30)
	ref := randomSeq(27, 50) + x + y + randomSeq(28, 50) + x + randomSeq(29, 50) + y + randomSeq(30, 50)
	w, idx := linearIndex(t, ref)
	seq := []byte(x + y)

	mems, lcp, err := w.FindMEMsDeep(seq, 0, 8, 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	expect.True(t, lcp >= 30, "lcp %d", lcp)

	mems, _, err = w.FindMEMsDeep(seq, 0, 8, 20)
	require.NoError(t, err)
	checkMEMs(t, w, idx, seq, mems, 8)
	var sub []MEM
	for _, mem := range mems {
		if !mem.Primary {
			sub = append(sub, mem)
		}
	}
	require.True(t, len(sub) > 0, "mems %v", mems)
	for _, mem := range sub {
		expect.True(t, mem.MatchCount >= 1, "mem %v", mem)
		expect.True(t, mem.Length() < 60, "mem %v", mem)
	}

	_, _, err = w.FindMEMsDeep(seq, 0, 30, 20)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestFindMEMsTrivial(t *testing.T) {
	w, _ := linearIndex(t, randomSeq(31, 200))
	mems, lcp, err := w.FindMEMsDeep([]byte("NNNN"), 0, 8, 0)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	expect.EQ(t, lcp, 0)
	expect.EQ(t, len(mems[0].Positions), 0)
	expect.EQ(t, mems[0].MatchCount, w.m.text.Size())
}

// repeatRef returns copies of one 60 base unit, each with a few
// substitutions, between random spacers.
func repeatRef(seed int64, copies int) string {
	r := rand.New(rand.NewSource(seed))
	unit := randomSeq(seed+1, 60)
	var b strings.Builder
	for i := 0; i < copies; i++ {
		b.WriteString(randomSeq(seed+int64(10+i), 40))
		c := []byte(unit)
		for j := 0; j < 3; j++ {
			c[r.Intn(len(c))] = "ACGT"[r.Intn(4)]
		}
		b.Write(c)
	}
	b.WriteString(randomSeq(seed+99, 40))
	return b.String()
}

// checkCoverage verifies that every k-mer of seq that occurs in the index
// lies inside a primary MEM.
func checkCoverage(t *testing.T, idx *pathindex.Index, seq []byte, mems []MEM, k int) {
	t.Helper()
	for i := 0; i+k <= len(seq); i++ {
		if idx.Count(idx.Find(seq[i:i+k])) == 0 {
			continue
		}
		covered := false
		for _, mem := range mems {
			if mem.Primary && mem.Begin <= i && i+k <= mem.End {
				covered = true
				break
			}
		}
		expect.True(t, covered, "%d-mer at %d of %s is in no MEM: %v", k, i, seq, mems)
	}
}

// checkSubMEMCounts verifies that a sub-MEM's count leaves out at least the
// occurrences of the smallest primary MEM containing it.
func checkSubMEMCounts(t *testing.T, idx *pathindex.Index, mems []MEM) {
	t.Helper()
	for _, sub := range mems {
		if sub.Primary {
			continue
		}
		least := -1
		for _, mem := range mems {
			if mem.Primary && mem.Begin <= sub.Begin && sub.End <= mem.End && (least < 0 || mem.MatchCount < least) {
				least = mem.MatchCount
			}
		}
		require.True(t, least >= 0, "sub-MEM %v has no parent in %v", sub, mems)
		total := idx.Count(sub.Range)
		expect.True(t, total > least, "sub-MEM %v is no more frequent than its parent", sub)
		expect.True(t, sub.MatchCount <= total-least, "sub-MEM %v of %d total, parent %d", sub, total, least)
	}
}

func primaries(mems []MEM) []MEM {
	var out []MEM
	for _, mem := range mems {
		if mem.Primary {
			out = append(out, mem)
		}
	}
	return out
}

func TestFindMEMsRepeats(t *testing.T) {
	ref := repeatRef(41, 6)
	r := rand.New(rand.NewSource(42))
	var reads [][]byte
	for i := 0; i < 40; i++ {
		begin := r.Intn(len(ref) - 60)
		seq := []byte(ref[begin : begin+60])
		for j := 0; j < 2; j++ {
			seq[r.Intn(len(seq))] = "ACGT"[r.Intn(4)]
		}
		reads = append(reads, seq)
	}
	for _, hitMax := range []int{0, 3} {
		found := map[bool][][]MEM{}
		for _, fast := range []bool{false, true} {
			o := testOpts()
			o.HitMax = hitMax
			o.FastReseed = fast
			w, idx := linearIndexOpts(t, ref, o)
			for _, seq := range reads {
				mems, _, err := w.FindMEMsDeep(seq, 0, 8, 16)
				require.NoError(t, err)
				checkMEMs(t, w, idx, seq, mems, 8)
				checkCoverage(t, idx, seq, mems, 8)
				checkSubMEMCounts(t, idx, mems)
				found[fast] = append(found[fast], primaries(mems))
			}
		}
		// Reseeding only adds sub-MEMs; both finders agree on the rest.
		expect.EQ(t, found[true], found[false], "hitMax %d", hitMax)
	}
}

func TestFindMEMsHitMax(t *testing.T) {
	unit := randomSeq(51, 40)
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString(randomSeq(int64(52+i), 30))
		b.WriteString(unit)
	}
	ref := b.String()
	for _, tc := range []struct {
		hitMax, positions int
	}{
		{0, 5},
		{5, 5},
		{3, 0},
	} {
		o := testOpts()
		o.HitMax = tc.hitMax
		w, idx := linearIndexOpts(t, ref, o)
		mems, _, err := w.FindMEMsDeep([]byte(unit), 0, 8, 0)
		require.NoError(t, err)
		require.Len(t, mems, 1)
		expect.EQ(t, mems[0].MatchCount, 5)
		expect.EQ(t, len(mems[0].Positions), tc.positions, "hitMax %d", tc.hitMax)
		checkMEMs(t, w, idx, []byte(unit), mems, 8)
	}
}
