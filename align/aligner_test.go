package align

import (
	"testing"

	"github.com/dkj/vg/graph"
	"github.com/grailbio/testutil/expect"
)

// bubbleSubgraph is 1(CAT) -> 2(G) | 3(T) -> 4(ACGA).
func bubbleSubgraph() *graph.Subgraph {
	s := graph.NewSubgraph()
	s.AddNode(1, []byte("CAT"))
	s.AddNode(2, []byte("G"))
	s.AddNode(3, []byte("T"))
	s.AddNode(4, []byte("ACGA"))
	s.AddEdge(graph.Edge{From: 1, To: 2})
	s.AddEdge(graph.Edge{From: 1, To: 3})
	s.AddEdge(graph.Edge{From: 2, To: 4})
	// Written from the other side; still 3 -> 4 on the forward strands.
	s.AddEdge(graph.Edge{From: 4, To: 3, FromStart: true, ToEnd: true})
	return s
}

func linearSubgraph(seq string) *graph.Subgraph {
	s := graph.NewSubgraph()
	s.AddNode(1, []byte(seq))
	return s
}

func alignSeq(t *testing.T, g *graph.Subgraph, seq string) Alignment {
	al := NewAligner(DefaultScoring)
	return al.Align(Alignment{Name: t.Name(), Sequence: []byte(seq)}, g, 0)
}

func TestAlignExact(t *testing.T) {
	a := alignSeq(t, bubbleSubgraph(), "CATGACGA")
	expect.EQ(t, a.Score, 18)
	expect.EQ(t, DefaultScoring.WithoutFullLengthBonus(a), 8)
	expect.EQ(t, a.Path.String(), ">1>2>4")
	expect.EQ(t, Cigar(a), "8M")
	expect.EQ(t, a.Identity, 1.0)
	expect.EQ(t, a.Path.Start(), graph.Pos{Node: 1})
	expect.EQ(t, a.Path.End(), graph.Pos{Node: 4, Offset: 3})

	a = alignSeq(t, bubbleSubgraph(), "CATTACGA")
	expect.EQ(t, a.Path.String(), ">1>3>4")
	expect.EQ(t, a.Score, 18)
}

func TestAlignMismatch(t *testing.T) {
	a := alignSeq(t, bubbleSubgraph(), "CATGACTA")
	expect.EQ(t, a.Score, 8-1-4+10)
	expect.EQ(t, Cigar(a), "6M1X1M")
	expect.EQ(t, EditCount(a), 1)
	expect.EQ(t, a.Identity, 7.0/8)
}

func TestAlignSoftclip(t *testing.T) {
	a := alignSeq(t, bubbleSubgraph(), "GGGGGCATGACGA")
	expect.EQ(t, a.Score, 8+5)
	expect.EQ(t, SoftclipStart(a), 5)
	expect.EQ(t, SoftclipEnd(a), 0)
	expect.EQ(t, Cigar(a), "5S8M")
	expect.EQ(t, DefaultScoring.WithoutFullLengthBonus(a), 8)
	expect.EQ(t, a.Path.ToLength(), 13)
}

const (
	left  = "GATTACAGATTACA"
	right = "TGCATGCATGCA"
)

func TestAlignDeletion(t *testing.T) {
	a := alignSeq(t, linearSubgraph(left+"CC"+right), left+right)
	expect.EQ(t, a.Score, 26-(6+1)+10)
	expect.EQ(t, Cigar(a), "14M2D12M")
	expect.EQ(t, len(a.Path.Mappings), 1)
	expect.EQ(t, a.Path.FromLength(), 28)
}

func TestAlignInsertion(t *testing.T) {
	a := alignSeq(t, linearSubgraph(left+right), left+"GG"+right)
	expect.EQ(t, a.Score, 26-(6+1)+10)
	expect.EQ(t, Cigar(a), "14M2I12M")
	expect.EQ(t, a.Path.ToLength(), 28)
}

func TestAlignCycle(t *testing.T) {
	s := graph.NewSubgraph()
	s.AddNode(1, []byte("ACGT"))
	s.AddNode(2, []byte("TTGA"))
	s.AddEdge(graph.Edge{From: 1, To: 2})
	s.AddEdge(graph.Edge{From: 2, To: 1})
	a := alignSeq(t, s, "ACGTTTGA")
	expect.EQ(t, a.Score, 18)
	expect.EQ(t, a.Path.String(), ">1>2")
}

func TestAlignNothing(t *testing.T) {
	expect.False(t, alignSeq(t, bubbleSubgraph(), "").HasPath())
	expect.False(t, alignSeq(t, graph.NewSubgraph(), "ACGT").HasPath())
	noBonus := DefaultScoring
	noBonus.FullLengthBonus = 0
	a := NewAligner(noBonus).Align(Alignment{Sequence: []byte("CCCC")}, linearSubgraph("AAAA"), 0)
	expect.False(t, a.HasPath())
	expect.EQ(t, a.Score, 0)
	expect.EQ(t, string(a.Sequence), "CCCC")

	al := NewAligner(DefaultScoring)
	a = al.Align(Alignment{Sequence: []byte("CATG")}, bubbleSubgraph(), 1)
	expect.False(t, a.HasPath())
	a = al.Align(Alignment{Sequence: []byte("CATG")}, bubbleSubgraph(), 3)
	expect.True(t, a.HasPath())
}

func TestAlignerReuse(t *testing.T) {
	al := NewAligner(DefaultScoring)
	big := al.Align(Alignment{Sequence: []byte(left + right)}, linearSubgraph(left+right), 0)
	small := al.Align(Alignment{Sequence: []byte("CATGACGA")}, bubbleSubgraph(), 0)
	expect.EQ(t, big.Score, 36)
	expect.EQ(t, small.Score, 18)
}

func TestAlignQualityKept(t *testing.T) {
	al := NewAligner(DefaultScoring)
	a := al.Align(Alignment{Sequence: []byte("CATG"), Quality: []byte("IIII")}, bubbleSubgraph(), 0)
	expect.EQ(t, string(a.Quality), "IIII")
}
