package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dkj/vg/align"
	"github.com/google/uuid"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

var columns = []string{
	"NAME", "MATE", "SECONDARY", "SCORE", "IDENTITY", "MQ",
	"NODE", "OFFSET", "STRAND", "PATH", "CIGAR", "FRAGLEN",
}

func newGzipWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

// writeHeader writes the run line and the column names.
func writeHeader(w io.Writer, run uuid.UUID) error {
	tw := tsv.NewWriter(w)
	tw.WriteString(fmt.Sprintf("#run=%s", run))
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i, c := range columns {
		if i == 0 {
			c = "#" + c
		}
		tw.WriteString(c)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	return tw.Flush()
}

// rowWriter formats alignments as output rows. Errors are sticky and
// reported by flush.
type rowWriter struct {
	w   *tsv.Writer
	err error
}

func newRowWriter(w io.Writer) *rowWriter {
	return &rowWriter{w: tsv.NewWriter(w)}
}

// write adds a row for a. Mate is 0 for single-end reads, else 1 or 2.
func (r *rowWriter) write(a align.Alignment, mate int) {
	if r.err != nil {
		return
	}
	w := r.w
	w.WriteString(a.Name)
	w.WriteInt64(int64(mate))
	if a.IsSecondary {
		w.WriteByte('1')
	} else {
		w.WriteByte('0')
	}
	w.WriteInt64(int64(a.Score))
	w.WriteString(strconv.FormatFloat(a.Identity, 'f', 4, 64))
	w.WriteInt64(int64(a.MappingQuality))
	if a.HasPath() {
		start := a.Path.Start()
		w.WriteInt64(int64(start.Node))
		w.WriteInt64(int64(start.Offset))
		if start.Reverse {
			w.WriteByte('-')
		} else {
			w.WriteByte('+')
		}
		w.WriteString(a.Path.String())
		w.WriteString(align.Cigar(a))
	} else {
		w.WriteInt64(0)
		w.WriteInt64(0)
		w.WriteByte('*')
		w.WriteByte('*')
		w.WriteByte('*')
	}
	if len(a.Fragment) > 0 {
		w.WriteInt64(int64(a.Fragment[0].Length))
	} else {
		w.WriteByte('.')
	}
	r.err = w.EndLine()
}

func (r *rowWriter) flush() error {
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}
