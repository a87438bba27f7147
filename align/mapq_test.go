package align

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestRecoverLogBase(t *testing.T) {
	lambda := RecoverLogBase(DefaultScoring, 0.5, 1e-12)
	z := 0.25*math.Exp(lambda) + 0.75*math.Exp(-4*lambda)
	expect.True(t, math.Abs(z-1) < 1e-9, "lambda %v z %v", lambda, z)

	// A GC-rich reference makes random matches likelier.
	expect.True(t, RecoverLogBase(DefaultScoring, 0.8, 1e-12) < lambda)
}

func TestPhred(t *testing.T) {
	expect.True(t, math.Abs(ProbToPhred(0.01)-20) < 1e-9)
	expect.True(t, math.Abs(PhredToProb(30)-0.001) < 1e-12)
}

func scored(scores ...int) []Alignment {
	var r []Alignment
	for _, s := range scores {
		r = append(r, Alignment{Score: s, MappingQuality: 99})
	}
	return r
}

func TestMappingQualityApprox(t *testing.T) {
	m := NewQualityModel(DefaultScoring, 0.5)
	o := MQOpts{Approx: true}
	inf := math.Inf(1)

	alns := scored(5)
	m.ComputeMappingQuality(alns, 60, o, 0, inf)
	expect.EQ(t, alns[0].MappingQuality, int(math.Round(qualityScale*m.LogBase*5)))

	alns = scored(20, 20)
	m.ComputeMappingQuality(alns, 60, o, 0, inf)
	expect.EQ(t, alns[0].MappingQuality, 0)
	expect.EQ(t, alns[1].MappingQuality, 0)

	alns = scored(30, 10)
	m.ComputeMappingQuality(alns, 60, o, 0, inf)
	expect.EQ(t, alns[0].MappingQuality, 60)
	expect.EQ(t, alns[1].MappingQuality, 0)

	// Overlapping alternatives divide the quality.
	alns = scored(12, 10)
	m.ComputeMappingQuality(alns, 60, o, 2, inf)
	expect.EQ(t, alns[0].MappingQuality, int(math.Round(qualityScale*m.LogBase*2/2)))

	alns = scored(0)
	m.ComputeMappingQuality(alns, 60, o, 0, inf)
	expect.EQ(t, alns[0].MappingQuality, 0)
}

func TestMappingQualityExact(t *testing.T) {
	m := NewQualityModel(DefaultScoring, 0.5)
	alns := scored(20, 20)
	m.ComputeMappingQuality(alns, 60, MQOpts{}, 0, math.Inf(1))
	expect.EQ(t, alns[0].MappingQuality, 3)

	alns = scored(15, 20)
	m.ComputeMappingQuality(alns, 60, MQOpts{}, 0, math.Inf(1))
	expect.EQ(t, alns[0].MappingQuality, 0)
	expect.True(t, alns[1].MappingQuality > 20)
}

func TestMappingQualityBlends(t *testing.T) {
	m := NewQualityModel(DefaultScoring, 0.5)
	base := scored(14, 10)
	m.ComputeMappingQuality(base, 60, MQOpts{Approx: true}, 0, math.Inf(1))

	alns := scored(14, 10)
	m.ComputeMappingQuality(alns, 60, MQOpts{Approx: true}, 0, 1)
	expect.True(t, alns[0].MappingQuality < base[0].MappingQuality)

	alns = scored(14, 10)
	m.ComputeMappingQuality(alns, 60, MQOpts{Approx: true, UseClusterMQ: true, ClusterMQ: 0}, 0, math.Inf(1))
	expect.True(t, alns[0].MappingQuality <= base[0].MappingQuality)
}

func TestPairedMappingQuality(t *testing.T) {
	m := NewQualityModel(DefaultScoring, 0.5)
	first, second := scored(30, 10), scored(30, 10)
	m.ComputePairedMappingQuality(first, second, 60, 7, MQOpts{Approx: true}, 0, 0, math.Inf(1), math.Inf(1))
	expect.EQ(t, first[0].MappingQuality, 60)
	expect.EQ(t, second[0].MappingQuality, 7)
	expect.EQ(t, first[1].MappingQuality, 0)

	first, second = scored(30), scored(0)
	m.ComputePairedMappingQuality(first, second, 60, 60, MQOpts{Approx: true}, 0, 0, math.Inf(1), math.Inf(1))
	expect.EQ(t, second[0].MappingQuality, 0)
	expect.True(t, first[0].MappingQuality > 0)
}

func TestEstimateMaxPossibleMappingQuality(t *testing.T) {
	m := NewQualityModel(DefaultScoring, 0.5)
	// A read covered by one long unique match leaves room for a high quality.
	high := m.EstimateMaxPossibleMappingQuality(100, 1, 10)
	low := m.EstimateMaxPossibleMappingQuality(100, 1, 1.5)
	expect.True(t, high > low)
	expect.True(t, math.IsInf(m.EstimateMaxPossibleMappingQuality(100, 1, math.Inf(1)), 1))
}
