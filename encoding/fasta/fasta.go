// Package fasta reads FASTA-formatted reference sequences. A FASTA file
// consists of named sequences that may be interrupted by newlines:
//
// >chr7
// ACGTAC
// GAGGAC
// >chr8
// ACGT
//
// Sequence names are the stretch of characters after '>' up to the first
// space. Sequences are upper-cased on input.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const maxLineLen = 1024 * 1024 * 300 // 300 MB

// Record is one named sequence.
type Record struct {
	Name string
	Seq  []byte
}

// Reader streams records from FASTA data.
type Reader struct {
	sc      *bufio.Scanner
	pending string
	started bool
	rec     Record
	err     error
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineLen)
	return &Reader{sc: sc}
}

// Scan advances to the next record. It returns false at the end of input or
// on error; check Err afterwards.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	var seq bytes.Buffer
	name, haveName := r.pending, r.started
	for r.sc.Scan() {
		line := bytes.TrimRight(r.sc.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			next := string(bytes.SplitN(line[1:], []byte(" "), 2)[0])
			r.started = true
			if !haveName {
				name, haveName = next, true
				continue
			}
			r.pending = next
			r.rec = Record{Name: name, Seq: bytes.ToUpper(seq.Bytes())}
			return true
		}
		if !haveName {
			r.err = errors.Errorf("malformed FASTA data: sequence before first header")
			return false
		}
		seq.Write(line)
	}
	if err := r.sc.Err(); err != nil {
		r.err = errors.Wrap(err, "couldn't read FASTA data")
		return false
	}
	if !haveName {
		return false
	}
	r.started = false
	r.rec = Record{Name: name, Seq: bytes.ToUpper(seq.Bytes())}
	return true
}

// Record returns the record read by the last successful Scan.
func (r *Reader) Record() Record { return r.rec }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// ReadAll reads every record.
func ReadAll(r io.Reader) ([]Record, error) {
	fr := NewReader(r)
	var recs []Record
	for fr.Scan() {
		recs = append(recs, fr.Record())
	}
	return recs, fr.Err()
}
