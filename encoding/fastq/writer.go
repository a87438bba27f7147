package fastq

import (
	"io"

	"github.com/dkj/vg/align"
)

var newline = []byte{'\n'}

// Writer writes FASTQ records. Errors are sticky: once a write fails, every
// later write returns the same error.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter returns a Writer that writes records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes r as a four line record.
func (w *Writer) Write(r *Read) error {
	w.writeln(r.ID)
	w.writeln(r.Seq)
	w.writeln(r.Unk)
	w.writeln(r.Qual)
	return w.err
}

// WriteAlignment writes the read an alignment record was made from. See
// FromAlignment.
func (w *Writer) WriteAlignment(a align.Alignment) error {
	r := FromAlignment(a)
	return w.Write(&r)
}

func (w *Writer) writeln(line string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, line)
	if w.err == nil {
		_, w.err = w.w.Write(newline)
	}
}
