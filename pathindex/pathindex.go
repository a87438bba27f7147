// Package pathindex implements a searchable full-text index over the walks
// of a variation graph. Every graph position on both strands contributes
// the distinct walks of up to Order bases that start there; the walks are
// sorted, and an LCP array over the sorted order answers suffix-tree parent
// queries. Patterns are searched right to left one base at a time (LF), the
// way an FM-index is searched, so a pattern of length up to Order matches
// exactly where a walk in the graph spells it.
package pathindex

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/dkj/vg/graph"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// OffsetBits is the number of low bits of a Hit holding the offset.
const OffsetBits = 20

// MaxNodeLength is the longest node a Hit can address.
const MaxNodeLength = 1 << OffsetBits

// Hit encodes a graph position as ((node*2 + strand) << OffsetBits) | offset.
type Hit uint64

// EncodeHit packs a position.
func EncodeHit(p graph.Pos) Hit {
	h := uint64(p.Node) << 1
	if p.Reverse {
		h |= 1
	}
	return Hit(h<<OffsetBits | uint64(p.Offset))
}

// Pos unpacks the position.
func (h Hit) Pos() graph.Pos {
	return graph.Pos{
		Node:    graph.NodeID(h >> (OffsetBits + 1)),
		Offset:  int(h & (MaxNodeLength - 1)),
		Reverse: (h>>OffsetBits)&1 == 1,
	}
}

// Range is an inclusive interval [Sp, Ep] of the sorted walk array whose
// walks share a prefix of length Len. It is empty when Sp > Ep.
type Range struct {
	Sp, Ep int
	Len    int
}

// Empty reports whether the range matches nothing.
func (r Range) Empty() bool { return r.Sp > r.Ep }

// String implements fmt.Stringer.
func (r Range) String() string { return fmt.Sprintf("[%d,%d]/%d", r.Sp, r.Ep, r.Len) }

// Opts controls index construction.
type Opts struct {
	// Order is the maximum length of a searchable pattern.
	Order int
	// MaxWalksPerPosition bounds the number of distinct walks indexed from a
	// single position. Walks beyond the bound are dropped with a warning;
	// patterns spanning them are not found.
	MaxWalksPerPosition int
}

// DefaultOpts are the default construction options.
var DefaultOpts = Opts{
	Order:               64,
	MaxWalksPerPosition: 1024,
}

type entry struct {
	walk []byte
	hit  Hit
}

// Index is an immutable walk index. It is safe for concurrent use.
type Index struct {
	entries     []entry
	lcp         []int32 // lcp[i] = common prefix of entries i-1 and i; lcp[0] = lcp[n] = 0.
	order       int
	fingerprint uint64
	alphabet    [256]bool
}

// Build indexes every walk of g up to opts.Order bases.
func Build(g graph.Index, opts Opts) (*Index, error) {
	if opts.Order <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("pathindex: order must be positive, got %d", opts.Order))
	}
	if opts.MaxWalksPerPosition <= 0 {
		opts.MaxWalksPerPosition = DefaultOpts.MaxWalksPerPosition
	}
	idx := &Index{order: opts.Order, fingerprint: g.Fingerprint()}
	b := builder{g: g, opts: opts, ext: map[extKey][][]byte{}}
	var err error
	g.ForEachNode(func(n graph.Node) bool {
		if len(n.Seq) >= MaxNodeLength {
			err = errors.E(errors.NotSupported, fmt.Sprintf("pathindex: node %d is longer than %d", n.ID, MaxNodeLength))
			return false
		}
		if len(n.Seq) == 0 {
			err = errors.E(errors.NotSupported, fmt.Sprintf("pathindex: node %d is empty", n.ID))
			return false
		}
		for _, rev := range []bool{false, true} {
			h := graph.Handle{ID: n.ID, Reverse: rev}
			seq := graph.HandleSequence(g, h)
			for off := range seq {
				idx.entries = append(idx.entries, b.walksFrom(h, seq, off)...)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if b.truncated > 0 {
		log.Printf("pathindex: %d positions exceeded %d walks; some long patterns will not be found",
			b.truncated, opts.MaxWalksPerPosition)
	}
	sort.Slice(idx.entries, func(i, j int) bool {
		if c := bytes.Compare(idx.entries[i].walk, idx.entries[j].walk); c != 0 {
			return c < 0
		}
		return idx.entries[i].hit < idx.entries[j].hit
	})
	n := len(idx.entries)
	idx.lcp = make([]int32, n+1)
	for i := 1; i < n; i++ {
		idx.lcp[i] = int32(commonPrefix(idx.entries[i-1].walk, idx.entries[i].walk))
	}
	for _, e := range idx.entries {
		for _, c := range e.walk {
			idx.alphabet[c] = true
		}
	}
	log.Debug.Printf("pathindex: indexed %d walks of order %d", n, opts.Order)
	return idx, nil
}

type extKey struct {
	h graph.Handle
	n int
}

type builder struct {
	g         graph.Index
	opts      Opts
	ext       map[extKey][][]byte
	truncated int
}

// extensions returns the distinct strings of up to n bases that can follow
// the end of h. Strings are shorter than n only where the graph ends.
func (b *builder) extensions(h graph.Handle, n int) [][]byte {
	if n == 0 {
		return [][]byte{nil}
	}
	key := extKey{h, n}
	if r, ok := b.ext[key]; ok {
		return r
	}
	next := graph.NextHandles(b.g.Edges(h.ID), h)
	if len(next) == 0 {
		r := [][]byte{nil}
		b.ext[key] = r
		return r
	}
	seen := map[string]bool{}
	var r [][]byte
	for _, nh := range next {
		seq := graph.HandleSequence(b.g, nh)
		if len(seq) >= n {
			s := seq[:n]
			if !seen[string(s)] {
				seen[string(s)] = true
				r = append(r, s)
			}
			continue
		}
		for _, tail := range b.extensions(nh, n-len(seq)) {
			s := append(append([]byte(nil), seq...), tail...)
			if !seen[string(s)] {
				seen[string(s)] = true
				r = append(r, s)
			}
			if len(r) >= b.opts.MaxWalksPerPosition {
				break
			}
		}
		if len(r) >= b.opts.MaxWalksPerPosition {
			break
		}
	}
	b.ext[key] = r
	return r
}

func (b *builder) walksFrom(h graph.Handle, seq []byte, off int) []entry {
	hit := EncodeHit(graph.Pos{Node: h.ID, Offset: off, Reverse: h.Reverse})
	head := seq[off:]
	if len(head) >= b.opts.Order {
		return []entry{{walk: head[:b.opts.Order], hit: hit}}
	}
	exts := b.extensions(h, b.opts.Order-len(head))
	if len(exts) >= b.opts.MaxWalksPerPosition {
		b.truncated++
	}
	r := make([]entry, 0, len(exts))
	for _, tail := range exts {
		w := make([]byte, 0, len(head)+len(tail))
		w = append(append(w, head...), tail...)
		r = append(r, entry{walk: w, hit: hit})
	}
	return r
}

func commonPrefix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Size returns the number of indexed walks.
func (x *Index) Size() int { return len(x.entries) }

// Order returns the longest searchable pattern length.
func (x *Index) Order() int { return x.order }

// GraphFingerprint returns the fingerprint of the graph the index was built
// from.
func (x *Index) GraphFingerprint() uint64 { return x.fingerprint }

// InAlphabet reports whether c occurs in any indexed walk.
func (x *Index) InAlphabet(c byte) bool { return x.alphabet[c] }

// FullRange returns the range matching the empty pattern.
func (x *Index) FullRange() Range { return Range{Sp: 0, Ep: len(x.entries) - 1} }

// LF extends the pattern matched by r one base to the left.
func (x *Index) LF(r Range, c byte) Range {
	if r.Empty() {
		return Range{Sp: 1, Ep: 0, Len: r.Len + 1}
	}
	p := make([]byte, r.Len+1)
	p[0] = c
	copy(p[1:], x.entries[r.Sp].walk[:r.Len])
	lo := sort.Search(len(x.entries), func(i int) bool {
		return bytes.Compare(x.entries[i].walk, p) >= 0
	})
	hi := lo + sort.Search(len(x.entries)-lo, func(i int) bool {
		return !bytes.HasPrefix(x.entries[lo+i].walk, p)
	})
	return Range{Sp: lo, Ep: hi - 1, Len: len(p)}
}

// Find returns the range of walks starting with pattern.
func (x *Index) Find(pattern []byte) Range {
	r := x.FullRange()
	for i := len(pattern) - 1; i >= 0 && !r.Empty(); i-- {
		r = x.LF(r, pattern[i])
	}
	return r
}

// Count returns the number of distinct graph positions at which the pattern
// of r occurs.
func (x *Index) Count(r Range) int {
	if r.Empty() {
		return 0
	}
	seen := make(map[Hit]struct{}, r.Ep-r.Sp+1)
	for i := r.Sp; i <= r.Ep; i++ {
		seen[x.entries[i].hit] = struct{}{}
	}
	return len(seen)
}

// Locate returns the distinct positions of r in ascending order. If
// maxHits > 0, at most maxHits positions are returned.
func (x *Index) Locate(r Range, maxHits int) []Hit {
	if r.Empty() {
		return nil
	}
	seen := make(map[Hit]struct{}, r.Ep-r.Sp+1)
	var hits []Hit
	for i := r.Sp; i <= r.Ep; i++ {
		h := x.entries[i].hit
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i] < hits[j] })
	if maxHits > 0 && len(hits) > maxHits {
		hits = hits[:maxHits]
	}
	return hits
}

// Parent returns the suffix-tree parent of r: the widest range around r
// whose walks share the longest prefix that r shares with a neighbouring
// walk. The returned range's Len is that prefix length.
func (x *Index) Parent(r Range) (lcp int, parent Range) {
	if r.Empty() {
		return 0, x.FullRange()
	}
	l := int(x.lcp[r.Sp])
	if v := int(x.lcp[r.Ep+1]); v > l {
		l = v
	}
	if l > r.Len {
		// r does not span a whole suffix-tree node; its own node is the
		// parent.
		l = r.Len
	}
	sp, ep := r.Sp, r.Ep
	for sp > 0 && int(x.lcp[sp]) >= l {
		sp--
	}
	for ep+1 < len(x.entries) && int(x.lcp[ep+1]) >= l {
		ep++
	}
	return l, Range{Sp: sp, Ep: ep, Len: l}
}

// Text returns the indexed walk at row i, for debugging.
func (x *Index) Text(i int) string { return string(x.entries[i].walk) }
