package align

import (
	"github.com/dkj/vg/biosimd"
	"github.com/dkj/vg/graph"
)

// NodeLengther answers node length queries.
type NodeLengther interface {
	Length(id graph.NodeID) int
}

// ReverseComplement returns the alignment of the reverse complement of the
// read: the sequence is reverse-complemented, the quality reversed, and the
// path walked backwards on the opposite strands.
func ReverseComplement(a Alignment, g NodeLengther) Alignment {
	r := a.Clone()
	biosimd.ReverseComp8Inplace(r.Sequence)
	biosimd.Reverse8Inplace(r.Quality)
	r.Path = ReverseComplementPath(a.Path, g)
	return r
}

// ReverseComplementPath flips a path onto the opposite strands.
func ReverseComplementPath(p Path, g NodeLengther) Path {
	if len(p.Mappings) == 0 {
		return Path{}
	}
	r := Path{Mappings: make([]Mapping, len(p.Mappings))}
	for i, m := range p.Mappings {
		rm := Mapping{Edits: make([]Edit, len(m.Edits))}
		if !m.Position.IsEmpty() {
			rm.Position = graph.Pos{
				Node:    m.Position.Node,
				Offset:  g.Length(m.Position.Node) - (m.Position.Offset + m.FromLength()),
				Reverse: !m.Position.Reverse,
			}
		}
		for j, e := range m.Edits {
			re := e
			if e.Sequence != "" {
				re.Sequence = biosimd.ReverseComp8String(e.Sequence)
			}
			rm.Edits[len(m.Edits)-1-j] = re
		}
		r.Mappings[len(p.Mappings)-1-i] = rm
	}
	return r
}

// splitEdit divides e after k read bases. e must consume more than k read
// bases.
func splitEdit(e Edit, k int) (Edit, Edit) {
	switch {
	case e.IsInsertion():
		return Edit{ToLength: k, Sequence: e.Sequence[:k]},
			Edit{ToLength: e.ToLength - k, Sequence: e.Sequence[k:]}
	case e.IsSub():
		return Edit{FromLength: k, ToLength: k, Sequence: e.Sequence[:k]},
			Edit{FromLength: e.FromLength - k, ToLength: e.ToLength - k, Sequence: e.Sequence[k:]}
	default:
		return Edit{FromLength: k, ToLength: k}, Edit{FromLength: e.FromLength - k, ToLength: e.ToLength - k}
	}
}

// CutPath splits p after the given number of read bases. Deletions at the
// cut point stay with the first half.
func CutPath(p Path, readOffset int) (Path, Path) {
	var first, second Path
	consumed := 0
	for _, m := range p.Mappings {
		mlen := m.ToLength()
		if consumed+mlen <= readOffset {
			first.Mappings = append(first.Mappings, m)
			consumed += mlen
			continue
		}
		if consumed >= readOffset {
			second.Mappings = append(second.Mappings, m)
			consumed += mlen
			continue
		}
		// The cut falls inside m.
		var a, b Mapping
		a.Position = m.Position
		from := 0
		for _, e := range m.Edits {
			atCut := consumed == readOffset && e.ToLength == 0 && len(b.Edits) == 0
			switch {
			case consumed >= readOffset && !atCut:
				b.Edits = append(b.Edits, e)
			case consumed+e.ToLength <= readOffset:
				a.Edits = append(a.Edits, e)
				from += e.FromLength
			default:
				e1, e2 := splitEdit(e, readOffset-consumed)
				a.Edits = append(a.Edits, e1)
				from += e1.FromLength
				b.Edits = append(b.Edits, e2)
			}
			consumed += e.ToLength
		}
		if !m.Position.IsEmpty() {
			b.Position = m.Position
			b.Position.Offset += from
		}
		if len(a.Edits) > 0 {
			first.Mappings = append(first.Mappings, a)
		}
		if len(b.Edits) > 0 {
			second.Mappings = append(second.Mappings, b)
		}
	}
	return first, second
}

// StripFromStart removes the first drop read bases and their placement.
func StripFromStart(a Alignment, drop int) Alignment {
	if drop <= 0 {
		return a
	}
	if drop > len(a.Sequence) {
		drop = len(a.Sequence)
	}
	r := a.Clone()
	r.Sequence = r.Sequence[drop:]
	if len(r.Quality) > 0 {
		r.Quality = r.Quality[drop:]
	}
	if a.HasPath() {
		_, r.Path = CutPath(a.Path.Clone(), drop)
		r.Path = trimLeadingDeletions(r.Path)
	}
	return r
}

// StripFromEnd removes the last drop read bases and their placement.
func StripFromEnd(a Alignment, drop int) Alignment {
	if drop <= 0 {
		return a
	}
	if drop > len(a.Sequence) {
		drop = len(a.Sequence)
	}
	r := a.Clone()
	keep := len(r.Sequence) - drop
	r.Sequence = r.Sequence[:keep]
	if len(r.Quality) > 0 {
		r.Quality = r.Quality[:keep]
	}
	if a.HasPath() {
		r.Path, _ = CutPath(a.Path.Clone(), keep)
		r.Path = trimTrailingDeletions(r.Path)
	}
	return r
}

func trimLeadingDeletions(p Path) Path {
	for len(p.Mappings) > 0 {
		m := &p.Mappings[0]
		for len(m.Edits) > 0 && m.Edits[0].IsDeletion() {
			m.Position.Offset += m.Edits[0].FromLength
			m.Edits = m.Edits[1:]
		}
		if len(m.Edits) > 0 {
			break
		}
		p.Mappings = p.Mappings[1:]
	}
	return p
}

func trimTrailingDeletions(p Path) Path {
	for len(p.Mappings) > 0 {
		m := &p.Mappings[len(p.Mappings)-1]
		for len(m.Edits) > 0 && m.Edits[len(m.Edits)-1].IsDeletion() {
			m.Edits = m.Edits[:len(m.Edits)-1]
		}
		if len(m.Edits) > 0 {
			break
		}
		p.Mappings = p.Mappings[:len(p.Mappings)-1]
	}
	return p
}

// SimplifyPath merges adjacent edits of the same kind, drops empty edits and
// mappings, and fuses consecutive mappings that continue on the same node
// strand.
func SimplifyPath(p Path) Path {
	var r Path
	for _, m := range p.Mappings {
		var edits []Edit
		for _, e := range m.Edits {
			if e.FromLength == 0 && e.ToLength == 0 {
				continue
			}
			if n := len(edits); n > 0 && sameKind(edits[n-1], e) {
				edits[n-1].FromLength += e.FromLength
				edits[n-1].ToLength += e.ToLength
				edits[n-1].Sequence += e.Sequence
				continue
			}
			edits = append(edits, e)
		}
		if len(edits) == 0 {
			continue
		}
		m = Mapping{Position: m.Position, Edits: edits}
		if n := len(r.Mappings); n > 0 {
			prev := &r.Mappings[n-1]
			contiguous := !m.Position.IsEmpty() && !prev.Position.IsEmpty() &&
				prev.Position.Node == m.Position.Node &&
				prev.Position.Reverse == m.Position.Reverse &&
				prev.Position.Offset+prev.FromLength() == m.Position.Offset
			if contiguous || (m.Position.IsEmpty() && prev.Position.IsEmpty()) {
				for _, e := range m.Edits {
					if k := len(prev.Edits); k > 0 && sameKind(prev.Edits[k-1], e) {
						prev.Edits[k-1].FromLength += e.FromLength
						prev.Edits[k-1].ToLength += e.ToLength
						prev.Edits[k-1].Sequence += e.Sequence
					} else {
						prev.Edits = append(prev.Edits, e)
					}
				}
				continue
			}
		}
		r.Mappings = append(r.Mappings, m)
	}
	return r
}

func sameKind(a, b Edit) bool {
	switch {
	case a.IsMatch():
		return b.IsMatch()
	case a.IsSub():
		return b.IsSub()
	case a.IsInsertion():
		return b.IsInsertion()
	case a.IsDeletion():
		return b.IsDeletion()
	}
	return false
}

// Merge concatenates alignments of consecutive pieces of one read. A piece
// without a path contributes an unplaced insertion of its sequence, so the
// merged path always accounts for every read base.
func Merge(alns []Alignment) Alignment {
	var r Alignment
	if len(alns) == 0 {
		return r
	}
	r.Name = alns[0].Name
	var p Path
	for _, a := range alns {
		r.Sequence = append(r.Sequence, a.Sequence...)
		r.Quality = append(r.Quality, a.Quality...)
		if !a.HasPath() {
			if len(a.Sequence) > 0 {
				p.Mappings = append(p.Mappings, Mapping{
					Edits: []Edit{{ToLength: len(a.Sequence), Sequence: string(a.Sequence)}},
				})
			}
			continue
		}
		p.Mappings = append(p.Mappings, a.Path.Clone().Mappings...)
	}
	r.Path = SimplifyPath(p)
	return r
}

// PathSequence reconstructs the read implied by a path: graph bases for
// matches and edit sequence elsewhere.
func PathSequence(p Path, g graph.Index) []byte {
	var seq []byte
	for _, m := range p.Mappings {
		pos := m.Position
		for _, e := range m.Edits {
			switch {
			case e.IsMatch():
				if !pos.IsEmpty() {
					h := graph.HandleSequence(g, pos.Handle())
					end := pos.Offset + e.FromLength
					if pos.Offset < 0 || end > len(h) {
						// Off the end of the node: emit a marker so the
						// caller's comparison fails.
						seq = append(seq, '?')
					} else {
						seq = append(seq, h[pos.Offset:end]...)
					}
				}
			default:
				seq = append(seq, e.Sequence...)
			}
			pos.Offset += e.FromLength
		}
	}
	return seq
}
