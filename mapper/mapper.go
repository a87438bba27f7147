// Package mapper places sequencing reads on a variation graph. Reads are
// seeded with maximal exact matches found in a full-text index of the
// graph's walks, the matches are chained into clusters, and each cluster is
// realized by local alignment against the surrounding subgraph. Paired
// reads are chained jointly under a fragment length model that is learned
// from confidently placed pairs, and weakly placed mates are rescued near
// their partner. Reads longer than a band width are aligned in overlapping
// bands that are stitched back together.
//
// A Mapper holds the shared read-only indexes and the fragment model. All
// mapping goes through a Worker, which owns an aligner and graph caches and
// must be used by one goroutine at a time.
package mapper

import (
	"fmt"
	"sync"

	"github.com/dkj/vg/align"
	"github.com/dkj/vg/graph"
	"github.com/dkj/vg/pathindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// TextIndex is a full-text index of the graph's walks searched right to
// left. *pathindex.Index implements it.
type TextIndex interface {
	FullRange() pathindex.Range
	LF(r pathindex.Range, c byte) pathindex.Range
	Count(r pathindex.Range) int
	Locate(r pathindex.Range, maxHits int) []pathindex.Hit
	// Order is the longest pattern the index can match.
	Order() int
	// Size is the number of rows in the index.
	Size() int
	GraphFingerprint() uint64
}

// LCPIndex answers suffix-tree parent queries over a TextIndex.
// *pathindex.Index implements it.
type LCPIndex interface {
	Parent(r pathindex.Range) (lcp int, parent pathindex.Range)
}

// Pair is a read pair waiting to be mapped.
type Pair struct {
	Read1, Read2 align.Alignment
}

// Mapper maps reads against one graph. It is safe for concurrent use
// through separate Workers.
type Mapper struct {
	Opts Opts
	// Fragments is the fragment length model shared by all workers.
	Fragments *FragmentModel

	graph   graph.Index
	text    TextIndex
	lcp     LCPIndex
	quality *align.QualityModel
	workers sync.Pool

	mu       sync.Mutex
	deferred []Pair
}

// New creates a Mapper. The text and LCP indexes must have been built from
// g.
func New(g graph.Index, text TextIndex, lcp LCPIndex, opts Opts) (*Mapper, error) {
	if g == nil {
		return nil, errors.E(errors.Invalid, "mapper: a graph index is required")
	}
	if text == nil || lcp == nil {
		return nil, errors.E(errors.Invalid, "mapper: a text index with an LCP array is required to find MEMs")
	}
	if opts.MEMReseedLength != 0 && opts.MEMReseedLength < opts.MinMEMLength {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"mapper: reseed length %d cannot be less than the minimum MEM length %d",
			opts.MEMReseedLength, opts.MinMEMLength))
	}
	if text.GraphFingerprint() != g.Fingerprint() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"mapper: text index was built from graph %x, not %x", text.GraphFingerprint(), g.Fingerprint()))
	}
	gc := EstimateGCContent(g)
	m := &Mapper{
		Opts:      opts,
		Fragments: NewFragmentModel(opts),
		graph:     g,
		text:      text,
		lcp:       lcp,
		quality:   align.NewQualityModel(opts.Scoring, gc),
	}
	m.workers.New = func() interface{} { return m.NewWorker() }
	log.Debug.Printf("mapper: GC content %.3f, log base %.4f", gc, m.quality.LogBase)
	return m, nil
}

// Graph returns the graph the mapper maps against.
func (m *Mapper) Graph() graph.Index { return m.graph }

func (m *Mapper) queueDeferred(p Pair) {
	m.mu.Lock()
	m.deferred = append(m.deferred, p)
	m.mu.Unlock()
}

// TakeDeferred removes and returns the pairs that AlignPairedMulti queued
// because they could not be placed confidently before a fragment model
// existed. They should be mapped again with retrying set once the model
// has been learned.
func (m *Mapper) TakeDeferred() []Pair {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.deferred
	m.deferred = nil
	return r
}

func (m *Mapper) getWorker() *Worker { return m.workers.Get().(*Worker) }

func (m *Mapper) putWorker(w *Worker) { m.workers.Put(w) }
