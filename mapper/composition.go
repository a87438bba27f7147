package mapper

import (
	"math"

	"github.com/dkj/vg/biosimd"
	"github.com/dkj/vg/graph"
	"gonum.org/v1/gonum/stat"
)

// DefaultGCContent is used when the graph lacks either A/T or G/C bases.
const DefaultGCContent = 0.5

// EstimateGCContent returns the fraction of the graph's A, C, G and T
// bases that are G or C.
func EstimateGCContent(g graph.Index) float64 {
	var c biosimd.BaseCounts
	g.ForEachNode(func(n graph.Node) bool {
		c.Add(n.Seq)
		return true
	})
	at, gc := c.A+c.T, c.GC()
	if at == 0 || gc == 0 {
		return DefaultGCContent
	}
	return float64(gc) / float64(at+gc)
}

// RandomMatchLength is the length at which an exact match against a graph
// of this size is expected to occur by chance with probability
// chanceRandom.
func RandomMatchLength(g graph.Index, chanceRandom float64) int {
	n := float64(g.SeqLength())
	if n == 0 {
		return 0
	}
	return int(math.Ceil(-math.Log(1-math.Pow(1/(1-chanceRandom), -1/n)) / math.Log(4)))
}

// GraphEntropy is the Shannon entropy, in bits per base, of the graph's
// sequence.
func GraphEntropy(g graph.Index) float64 {
	var counts [256]float64
	total := 0.0
	g.ForEachNode(func(n graph.Node) bool {
		for _, b := range n.Seq {
			counts[b]++
		}
		total += float64(len(n.Seq))
		return true
	})
	if total == 0 {
		return 0
	}
	p := make([]float64, 0, 8)
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	return stat.Entropy(p) / math.Ln2
}
