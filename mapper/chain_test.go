package mapper

import (
	"testing"

	"github.com/dkj/vg/graph"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func offsetPosition(p graph.Pos) int { return p.Offset }

// nearTransition allows moves between MEMs placed less than 50 bases apart
// and weighs them all 1.
func nearTransition(a, b *MEM) Transition {
	if abs(a.Positions[0].Offset-b.Positions[0].Offset) >= 50 {
		return Forbidden
	}
	return Weight(1)
}

func mem(begin, end int, offsets ...int) MEM {
	m := MEM{Begin: begin, End: end, MatchCount: len(offsets), Primary: true}
	for _, o := range offsets {
		m.Positions = append(m.Positions, graph.Pos{Node: 1, Offset: o})
	}
	return m
}

func TestChainTraceback(t *testing.T) {
	mems := []MEM{mem(0, 10, 100, 500), mem(10, 20, 110)}
	c := NewChainModel([]int{20}, [][]MEM{mems}, offsetPosition, nearTransition, 1000, 1, 10)

	clusters := c.Traceback(5, false)
	require.Len(t, clusters, 2)
	require.Len(t, clusters[0], 2)
	expect.EQ(t, clusters[0][0].Positions, []graph.Pos{{Node: 1, Offset: 100}})
	expect.EQ(t, clusters[0][1].Positions, []graph.Pos{{Node: 1, Offset: 110}})
	require.Len(t, clusters[1], 1)
	expect.EQ(t, clusters[1][0].Positions, []graph.Pos{{Node: 1, Offset: 500}})
	for _, cluster := range clusters {
		for _, m := range cluster {
			expect.EQ(t, m.Fragment, 1)
		}
	}

	// Asking for fewer clusters stops early.
	c = NewChainModel([]int{20}, [][]MEM{mems}, offsetPosition, nearTransition, 1000, 1, 10)
	expect.EQ(t, len(c.Traceback(1, false)), 1)
}

func TestChainForbiddenEdges(t *testing.T) {
	forbidAll := func(a, b *MEM) Transition { return Forbidden }
	mems := []MEM{mem(0, 10, 100), mem(10, 20, 110), mem(20, 25, 120)}
	c := NewChainModel([]int{25}, [][]MEM{mems}, offsetPosition, forbidAll, 1000, 1, 10)
	clusters := c.Traceback(10, false)
	require.Len(t, clusters, 3)
	// Singletons come out longest first.
	expect.EQ(t, clusters[0][0].Begin, 0)
	expect.EQ(t, clusters[1][0].Begin, 10)
	expect.EQ(t, clusters[2][0].Length(), 5)
}

func TestChainBandWidth(t *testing.T) {
	mems := []MEM{mem(0, 10, 100), mem(10, 20, 110)}
	// Positions 10 apart are not compared within a band of 5.
	c := NewChainModel([]int{20}, [][]MEM{mems}, offsetPosition, nearTransition, 5, 1, 10)
	expect.EQ(t, len(c.Traceback(10, false)), 2)
}

func TestChainScoresMonotone(t *testing.T) {
	mems := []MEM{mem(0, 10, 100), mem(10, 20, 110), mem(20, 30, 120), mem(5, 12, 900)}
	c := NewChainModel([]int{30}, [][]MEM{mems}, offsetPosition, nearTransition, 1000, 1, 10)
	exclude := c.redundant.Clone()
	c.score(exclude)
	for i, v := range c.vertices {
		expect.True(t, v.score >= v.weight, "vertex %d", i)
		if v.prev >= 0 {
			expect.True(t, v.score > c.vertices[v.prev].score, "vertex %d", i)
		}
	}
	clusters := c.Traceback(1, false)
	require.Len(t, clusters, 1)
	expect.EQ(t, len(clusters[0]), 3)
}

func TestChainRedundantShift(t *testing.T) {
	// The second MEM is the first shifted by 2 along both the read and the
	// graph, so it is merged into the first.
	mems := []MEM{mem(0, 20, 100), mem(2, 12, 102)}
	c := NewChainModel([]int{20}, [][]MEM{mems}, offsetPosition, nearTransition, 1000, 1, 10)
	expect.True(t, c.redundant.Test(1))
	clusters := c.Traceback(10, false)
	require.Len(t, clusters, 1)
	expect.EQ(t, clusters[0][0].Length(), 20)
}

func TestChainPaired(t *testing.T) {
	mems1 := []MEM{mem(0, 10, 100)}
	mems2 := []MEM{mem(0, 10, 130), mem(0, 10, 900)}
	c := NewChainModel([]int{10, 10}, [][]MEM{mems1, mems2}, offsetPosition, nearTransition, 1000, 1, 10)
	clusters := c.Traceback(10, true)
	require.True(t, len(clusters) >= 2)
	require.Len(t, clusters[0], 2)
	expect.EQ(t, clusters[0][0].Fragment, 1)
	expect.EQ(t, clusters[0][1].Fragment, 2)
	expect.EQ(t, clusters[0][1].Positions[0].Offset, 130)
	for _, cluster := range clusters[1:] {
		// Later clusters never repeat the cross-mate link.
		expect.False(t, len(cluster) == 2 && cluster[1].Positions[0].Offset == 130)
	}
}
