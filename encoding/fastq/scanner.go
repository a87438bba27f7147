package fastq

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var (
	// ErrShort is returned when a record is cut off before its quality line.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when a header or separator line is malformed.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when the two files of a pair run out at
	// different records or name different fragments.
	ErrDiscordant = errors.New("discordant FASTQ pairs")
)

// A Read is one FASTQ record: the header line, bases, separator line and
// quality string.
type Read struct {
	ID, Seq, Unk, Qual string
}

// Trim cuts the read and quality lengths to at most n.
func (r *Read) Trim(n int) {
	if len(r.Seq) > n {
		r.Seq = r.Seq[:n]
	}
	if len(r.Qual) > n {
		r.Qual = r.Qual[:n]
	}
}

// MaxLineLength is the longest FASTQ line a Scanner accepts. Long reads are
// aligned in bands, so lines may be far longer than bufio's default.
const MaxLineLength = 1 << 28

// Scanner reads FASTQ records one at a time. It checks that headers start
// with '@' and separators with '+', and leaves the rest to Read.Alignment.
// Scanners are not threadsafe.
type Scanner struct {
	b   *bufio.Scanner
	err error
	eof bool
}

// NewScanner returns a Scanner over the raw FASTQ data in r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), MaxLineLength)
	return &Scanner{b: b}
}

// line returns the next line. Running out of input is ErrShort unless
// first is set, in which case it ends the scan cleanly.
func (s *Scanner) line(first bool) (string, bool) {
	if s.b.Scan() {
		return s.b.Text(), true
	}
	s.err = s.b.Err()
	if s.err == nil {
		if first {
			s.eof = true
		} else {
			s.err = ErrShort
		}
	}
	return "", false
}

// Scan reads the next record into r. It returns false at the end of the
// input or on the first error, and never returns true after that; Err
// tells the two apart.
func (s *Scanner) Scan(r *Read) bool {
	if s.err != nil || s.eof {
		return false
	}
	var ok bool
	if r.ID, ok = s.line(true); !ok {
		return false
	}
	if !strings.HasPrefix(r.ID, "@") {
		s.err = ErrInvalid
		return false
	}
	if r.Seq, ok = s.line(false); !ok {
		return false
	}
	if r.Unk, ok = s.line(false); !ok {
		return false
	}
	if !strings.HasPrefix(r.Unk, "+") {
		s.err = ErrInvalid
		return false
	}
	r.Qual, ok = s.line(false)
	return ok
}

// Err returns the error that stopped the scan, or nil at a clean end of
// input.
func (s *Scanner) Err() error { return s.err }

// PairScanner reads mates from a pair of FASTQ streams in lockstep.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner returns a PairScanner over the R1 and R2 data.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// fragmentName strips a trailing "/1" or "/2" mate suffix.
func fragmentName(name string) string {
	if n := len(name); n > 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		return name[:n-2]
	}
	return name
}

// Scan reads the next pair into r1 and r2. The mates must name the same
// fragment, ignoring "/1" and "/2" suffixes.
func (p *PairScanner) Scan(r1, r2 *Read) bool {
	if p.err != nil {
		return false
	}
	ok1 := p.r1.Scan(r1)
	ok2 := p.r2.Scan(r2)
	if ok1 != ok2 || (ok1 && fragmentName(r1.Name()) != fragmentName(r2.Name())) {
		p.err = ErrDiscordant
		return false
	}
	return ok1
}

// Err returns the error that stopped the scan, if any.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
