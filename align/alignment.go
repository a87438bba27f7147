// Package align holds the alignment record produced by the mapper, the path
// model it is expressed in, a local affine-gap aligner of reads against
// small acyclic subgraphs, and the statistics used to turn alignment scores
// into mapping qualities.
package align

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkj/vg/graph"
)

// Edit is one step of a mapping. A match has equal from and to lengths and
// no sequence; a substitution has equal lengths and the read bases; an
// insertion consumes only read bases; a deletion consumes only graph bases.
type Edit struct {
	FromLength int
	ToLength   int
	Sequence   string
}

// IsMatch reports whether e is a match.
func (e Edit) IsMatch() bool { return e.FromLength == e.ToLength && e.Sequence == "" }

// IsSub reports whether e is a substitution.
func (e Edit) IsSub() bool {
	return e.FromLength == e.ToLength && e.FromLength > 0 && e.Sequence != ""
}

// IsInsertion reports whether e is an insertion (or a soft clip at a read end).
func (e Edit) IsInsertion() bool { return e.FromLength == 0 && e.ToLength > 0 }

// IsDeletion reports whether e is a deletion.
func (e Edit) IsDeletion() bool { return e.FromLength > 0 && e.ToLength == 0 }

// Mapping is a run of edits against one node strand, starting at Position.
// A zero Position marks read sequence that is not placed on the graph.
type Mapping struct {
	Position graph.Pos
	Edits    []Edit
}

// FromLength is the number of graph bases the mapping covers.
func (m Mapping) FromLength() int {
	n := 0
	for _, e := range m.Edits {
		n += e.FromLength
	}
	return n
}

// ToLength is the number of read bases the mapping covers.
func (m Mapping) ToLength() int {
	n := 0
	for _, e := range m.Edits {
		n += e.ToLength
	}
	return n
}

// Path is an ordered list of mappings.
type Path struct {
	Mappings []Mapping
}

// FromLength is the number of graph bases on the path.
func (p Path) FromLength() int {
	n := 0
	for _, m := range p.Mappings {
		n += m.FromLength()
	}
	return n
}

// ToLength is the number of read bases on the path.
func (p Path) ToLength() int {
	n := 0
	for _, m := range p.Mappings {
		n += m.ToLength()
	}
	return n
}

// Start returns the first placed position of the path, or the zero Pos.
func (p Path) Start() graph.Pos {
	if len(p.Mappings) == 0 {
		return graph.Pos{}
	}
	return p.Mappings[0].Position
}

// End returns the position of the last graph base covered by the path, or
// the zero Pos when the last mapping is unplaced or covers no graph base.
func (p Path) End() graph.Pos {
	if len(p.Mappings) == 0 {
		return graph.Pos{}
	}
	m := p.Mappings[len(p.Mappings)-1]
	if m.Position.IsEmpty() || m.FromLength() == 0 {
		return graph.Pos{}
	}
	end := m.Position
	end.Offset += m.FromLength() - 1
	return end
}

// Clone returns a deep copy.
func (p Path) Clone() Path {
	if p.Mappings == nil {
		return Path{}
	}
	r := Path{Mappings: make([]Mapping, len(p.Mappings))}
	for i, m := range p.Mappings {
		r.Mappings[i] = Mapping{Position: m.Position, Edits: append([]Edit(nil), m.Edits...)}
	}
	return r
}

// String renders the path as a walk of oriented nodes, e.g. ">1>2<5".
func (p Path) String() string {
	var b strings.Builder
	for _, m := range p.Mappings {
		if m.Position.IsEmpty() {
			b.WriteString("*")
			continue
		}
		b.WriteString(m.Position.Handle().String())
	}
	return b.String()
}

// Fragment is an observed fragment length against a named reference path.
type Fragment struct {
	Name   string
	Length int
}

// Alignment is a read together with its placement on the graph.
type Alignment struct {
	Name     string
	Sequence []byte
	// Quality is either empty or as long as Sequence.
	Quality        []byte
	Path           Path
	Score          int
	Identity       float64
	MappingQuality int
	IsSecondary    bool
	// FragmentPrev and FragmentNext name the mate in a read pair.
	FragmentPrev string
	FragmentNext string
	Fragment     []Fragment
}

// Clone returns a deep copy of a.
func (a Alignment) Clone() Alignment {
	r := a
	r.Sequence = append([]byte(nil), a.Sequence...)
	if a.Quality != nil {
		r.Quality = append([]byte(nil), a.Quality...)
	}
	r.Path = a.Path.Clone()
	r.Fragment = append([]Fragment(nil), a.Fragment...)
	return r
}

// Unaligned returns a copy of a with no path and zero score.
func (a Alignment) Unaligned() Alignment {
	r := a.Clone()
	r.Path = Path{}
	r.Score = 0
	r.Identity = 0
	r.MappingQuality = 0
	return r
}

// HasPath reports whether the alignment places any base on the graph.
func (a Alignment) HasPath() bool { return len(a.Path.Mappings) > 0 }

// Equal reports whether two alignments carry the same read, placement and
// scores. It is the identity used to collapse duplicates.
func (a Alignment) Equal(b Alignment) bool {
	if a.Score != b.Score || a.Name != b.Name || !bytes.Equal(a.Sequence, b.Sequence) ||
		len(a.Path.Mappings) != len(b.Path.Mappings) {
		return false
	}
	for i, m := range a.Path.Mappings {
		o := b.Path.Mappings[i]
		if m.Position != o.Position || len(m.Edits) != len(o.Edits) {
			return false
		}
		for j := range m.Edits {
			if m.Edits[j] != o.Edits[j] {
				return false
			}
		}
	}
	return true
}

// EditCount is the number of edits that are not matches.
func EditCount(a Alignment) int {
	n := 0
	for _, m := range a.Path.Mappings {
		for _, e := range m.Edits {
			if !e.IsMatch() {
				n++
			}
		}
	}
	return n
}

// Identity is the fraction of read bases on the path that match the graph.
func Identity(p Path) float64 {
	total := p.ToLength()
	if total == 0 {
		return 0
	}
	matched := 0
	for _, m := range p.Mappings {
		for _, e := range m.Edits {
			if e.IsMatch() {
				matched += e.FromLength
			}
		}
	}
	return float64(matched) / float64(total)
}

// SoftclipStart is the length of the leading insertion, if any.
func SoftclipStart(a Alignment) int {
	if len(a.Path.Mappings) == 0 || len(a.Path.Mappings[0].Edits) == 0 {
		return 0
	}
	if e := a.Path.Mappings[0].Edits[0]; e.IsInsertion() {
		return e.ToLength
	}
	return 0
}

// SoftclipEnd is the length of the trailing insertion, if any.
func SoftclipEnd(a Alignment) int {
	if len(a.Path.Mappings) == 0 {
		return 0
	}
	last := a.Path.Mappings[len(a.Path.Mappings)-1]
	if len(last.Edits) == 0 {
		return 0
	}
	if e := last.Edits[len(last.Edits)-1]; e.IsInsertion() {
		return e.ToLength
	}
	return 0
}

// Cigar summarises the path as a CIGAR-like string: M for matches, X for
// substitutions, I for insertions, D for deletions, S for read-end
// insertions.
func Cigar(a Alignment) string {
	type op struct {
		n int
		c byte
	}
	var ops []op
	push := func(n int, c byte) {
		if n == 0 {
			return
		}
		if len(ops) > 0 && ops[len(ops)-1].c == c {
			ops[len(ops)-1].n += n
			return
		}
		ops = append(ops, op{n, c})
	}
	nm := len(a.Path.Mappings)
	for i, m := range a.Path.Mappings {
		for j, e := range m.Edits {
			switch {
			case e.IsMatch():
				push(e.FromLength, 'M')
			case e.IsSub():
				push(e.FromLength, 'X')
			case e.IsInsertion():
				if (i == 0 && j == 0) || (i == nm-1 && j == len(m.Edits)-1) {
					push(e.ToLength, 'S')
				} else {
					push(e.ToLength, 'I')
				}
			case e.IsDeletion():
				push(e.FromLength, 'D')
			}
		}
	}
	if len(ops) == 0 {
		return "*"
	}
	var b strings.Builder
	for _, o := range ops {
		b.WriteString(strconv.Itoa(o.n))
		b.WriteByte(o.c)
	}
	return b.String()
}

// String implements fmt.Stringer for debugging.
func (a Alignment) String() string {
	return fmt.Sprintf("%s score=%d id=%.3f mq=%d path=%s cigar=%s start=%v",
		a.Name, a.Score, a.Identity, a.MappingQuality, a.Path, Cigar(a), a.Path.Start())
}
