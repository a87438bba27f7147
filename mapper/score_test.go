package mapper

import (
	"math"
	"strings"
	"testing"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func TestScoreAlignment(t *testing.T) {
	o := DefaultOpts
	o.Scoring.GapOpen = 2
	w := bubbleMapper(t, o).NewWorker()
	s := o.Scoring
	path := func(ms ...align.Mapping) align.Alignment {
		return align.Alignment{Sequence: []byte("CATGACGA"), Path: align.Path{Mappings: ms}}
	}
	match := func(n int) align.Edit { return align.Edit{FromLength: n, ToLength: n} }

	exact := path(
		align.Mapping{Position: graph.Pos{Node: 1}, Edits: []align.Edit{match(3)}},
		align.Mapping{Position: graph.Pos{Node: 2}, Edits: []align.Edit{match(1)}},
		align.Mapping{Position: graph.Pos{Node: 4}, Edits: []align.Edit{match(4)}},
	)
	expect.EQ(t, w.ScoreAlignment(exact), 8*s.Match)

	sub := path(
		align.Mapping{Position: graph.Pos{Node: 1}, Edits: []align.Edit{match(3)}},
		align.Mapping{Position: graph.Pos{Node: 3}, Edits: []align.Edit{{FromLength: 1, ToLength: 1, Sequence: "G"}}},
		align.Mapping{Position: graph.Pos{Node: 4}, Edits: []align.Edit{match(4)}},
	)
	expect.EQ(t, w.ScoreAlignment(sub), 7*s.Match-s.Mismatch)

	// Read-end insertions are soft clips and cost nothing.
	clipped := path(
		align.Mapping{Position: graph.Pos{Node: 1}, Edits: []align.Edit{{ToLength: 2, Sequence: "CA"}, {FromLength: 1, ToLength: 1}}},
		align.Mapping{Position: graph.Pos{Node: 2}, Edits: []align.Edit{match(1)}},
		align.Mapping{Position: graph.Pos{Node: 4}, Edits: []align.Edit{match(4)}},
	)
	clipped.Path.Mappings[0].Position.Offset = 2
	expect.EQ(t, w.ScoreAlignment(clipped), 6*s.Match)

	// Skipping node 2 is a one base gap between mappings.
	jump := path(
		align.Mapping{Position: graph.Pos{Node: 1}, Edits: []align.Edit{match(3)}},
		align.Mapping{Position: graph.Pos{Node: 4}, Edits: []align.Edit{match(4)}},
	)
	expect.EQ(t, w.ScoreAlignment(jump), 7*s.Match-s.GapOpen-s.GapExtension)

	del := path(
		align.Mapping{Position: graph.Pos{Node: 1}, Edits: []align.Edit{match(3)}},
		align.Mapping{Position: graph.Pos{Node: 2}, Edits: []align.Edit{{FromLength: 1}}},
		align.Mapping{Position: graph.Pos{Node: 4}, Edits: []align.Edit{match(4)}},
	)
	expect.EQ(t, w.ScoreAlignment(del), 7*s.Match-s.GapOpen-s.GapExtension)

	expect.EQ(t, w.ScoreAlignment(read("r", "ACGT")), 0)
}

func TestGraphDistance(t *testing.T) {
	w := bubbleMapper(t, DefaultOpts).NewWorker()
	expect.EQ(t, w.GraphDistance(graph.Pos{Node: 1}, graph.Pos{Node: 1, Offset: 2}, 100), 2)
	expect.EQ(t, w.GraphDistance(graph.Pos{Node: 1, Offset: 3}, graph.Pos{Node: 4}, 100), 1)
	expect.EQ(t, w.GraphDistance(graph.Pos{Node: 1}, graph.Pos{Node: 4, Offset: 1}, 100), 5)
	// Not reachable forward.
	expect.EQ(t, w.GraphDistance(graph.Pos{Node: 4}, graph.Pos{Node: 1}, 100), 100)
	expect.EQ(t, w.GraphDistance(graph.Pos{Node: 1}, graph.Pos{Node: 4, Offset: 1}, 3), 3)
	expect.True(t, w.adjacent(graph.Pos{Node: 1, Offset: 2}, graph.Pos{Node: 3}))
	expect.False(t, w.adjacent(graph.Pos{Node: 1, Offset: 1}, graph.Pos{Node: 3}))
}

func TestComposition(t *testing.T) {
	g, err := graph.FromFASTA(strings.NewReader(">a\nAACCGGTT\n"), 4)
	require.NoError(t, err)
	expect.EQ(t, EstimateGCContent(g), 0.5)
	expect.True(t, math.Abs(GraphEntropy(g)-2) < 1e-9)

	g, err = graph.FromFASTA(strings.NewReader(">a\nAAAATTTTAC\n"), 4)
	require.NoError(t, err)
	expect.EQ(t, EstimateGCContent(g), 0.1)

	g, err = graph.FromFASTA(strings.NewReader(">a\nAAAAAAAA\n"), 4)
	require.NoError(t, err)
	expect.EQ(t, EstimateGCContent(g), DefaultGCContent)
	expect.EQ(t, GraphEntropy(g), 0.0)

	// A 4^10 base graph matches a given 10-mer about once by chance.
	big := graph.New()
	for id := graph.NodeID(1); id <= 1024; id++ {
		require.NoError(t, big.AddNode(id, []byte(strings.Repeat("ACGT", 256))))
	}
	big.Finish()
	g = big
	n := RandomMatchLength(g, 0.05)
	expect.True(t, n > 10 && n < 16, "n %d", n)
	expect.True(t, RandomMatchLength(g, 0.01) >= n)
	expect.True(t, math.Abs(GraphEntropy(g)-2) < 1e-9)
}
