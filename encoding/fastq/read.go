package fastq

import (
	"strings"

	"github.com/dkj/vg/align"
)

// QualityOffset is the ASCII offset of FASTQ base qualities.
const QualityOffset = 33

// Name returns the read name: the ID without its leading '@' and without
// anything from the first space or tab on.
func (r *Read) Name() string {
	name := strings.TrimPrefix(r.ID, "@")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Alignment returns the read as an alignment record without a path. Bases
// are upper-cased and anything other than A, C, G or T becomes N. Base
// qualities are decoded to phred values; a quality string whose length
// differs from the sequence is dropped.
func (r *Read) Alignment() align.Alignment {
	a := align.Alignment{Name: r.Name(), Sequence: make([]byte, len(r.Seq))}
	for i := 0; i < len(r.Seq); i++ {
		switch c := r.Seq[i] &^ 0x20; c {
		case 'A', 'C', 'G', 'T':
			a.Sequence[i] = c
		default:
			a.Sequence[i] = 'N'
		}
	}
	if len(r.Qual) == len(r.Seq) && len(r.Qual) > 0 {
		a.Quality = make([]byte, len(r.Qual))
		for i := 0; i < len(r.Qual); i++ {
			if q := r.Qual[i]; q > QualityOffset {
				a.Quality[i] = q - QualityOffset
			}
		}
	}
	return a
}

// FromAlignment returns the read an alignment record was made from, for
// writing reads back out. Missing qualities are written as '!'.
func FromAlignment(a align.Alignment) Read {
	qual := make([]byte, len(a.Sequence))
	for i := range qual {
		qual[i] = QualityOffset
		if i < len(a.Quality) {
			qual[i] += a.Quality[i]
		}
	}
	return Read{ID: "@" + a.Name, Seq: string(a.Sequence), Unk: "+", Qual: string(qual)}
}
