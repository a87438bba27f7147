package graph

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/dkj/vg/encoding/fasta"
	"github.com/pkg/errors"
)

// ReadGFA parses S (segment), L (link) and P (path) lines of a GFA 1 file
// whose segment names are positive integers. Other line types are skipped.
// Links are applied after all segments are known, so line order is free.
// The returned graph is finished.
func ReadGFA(r io.Reader) (*Graph, error) {
	g := New()
	type link struct {
		e    Edge
		line int
	}
	var links []link
	type path struct {
		name  string
		steps string
		line  int
	}
	var paths []path

	sc := bufio.NewScanner(r)
	sc.Buffer(nil, 1<<30)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Split(line, "\t")
		switch f[0] {
		case "S":
			if len(f) < 3 {
				return nil, errors.Errorf("gfa line %d: segment needs a name and a sequence", lineNo)
			}
			id, err := parseID(f[1])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
			if err := g.AddNode(id, bytes.ToUpper([]byte(f[2]))); err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
		case "L":
			if len(f) < 5 {
				return nil, errors.Errorf("gfa line %d: link needs two oriented segments", lineNo)
			}
			from, err := parseID(f[1])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
			to, err := parseID(f[3])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
			if len(f) > 5 && f[5] != "*" && f[5] != "0M" {
				return nil, errors.Errorf("gfa line %d: overlapping links are not supported (%s)", lineNo, f[5])
			}
			fromRev, err := parseOrientation(f[2])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
			toRev, err := parseOrientation(f[4])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", lineNo)
			}
			links = append(links, link{Edge{From: from, To: to, FromStart: fromRev, ToEnd: toRev}, lineNo})
		case "P":
			if len(f) < 3 {
				return nil, errors.Errorf("gfa line %d: path needs a name and steps", lineNo)
			}
			paths = append(paths, path{f[1], f[2], lineNo})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read GFA data")
	}
	for _, l := range links {
		if err := g.AddEdge(l.e); err != nil {
			return nil, errors.Wrapf(err, "gfa line %d", l.line)
		}
	}
	for _, p := range paths {
		var steps []Handle
		for _, s := range strings.Split(p.steps, ",") {
			if len(s) < 2 {
				return nil, errors.Errorf("gfa line %d: bad path step %q", p.line, s)
			}
			id, err := parseID(s[:len(s)-1])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", p.line)
			}
			rev, err := parseOrientation(s[len(s)-1:])
			if err != nil {
				return nil, errors.Wrapf(err, "gfa line %d", p.line)
			}
			steps = append(steps, Handle{id, rev})
		}
		if err := g.AddPath(p.name, steps); err != nil {
			return nil, errors.Wrapf(err, "gfa line %d", p.line)
		}
	}
	g.Finish()
	return g, nil
}

func parseID(s string) (NodeID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("segment name %q is not a positive integer", s)
	}
	return NodeID(id), nil
}

func parseOrientation(s string) (bool, error) {
	switch s {
	case "+":
		return false, nil
	case "-":
		return true, nil
	}
	return false, errors.Errorf("bad orientation %q", s)
}

// WriteGFA writes g as GFA 1 with S, L and P lines.
func WriteGFA(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("H\tVN:Z:1.0\n")
	orient := func(rev bool) string {
		if rev {
			return "-"
		}
		return "+"
	}
	g.ForEachNode(func(n Node) bool {
		bw.WriteString("S\t" + strconv.FormatInt(int64(n.ID), 10) + "\t")
		bw.Write(n.Seq)
		bw.WriteByte('\n')
		return true
	})
	g.ForEachNode(func(n Node) bool {
		for _, e := range g.Edges(n.ID) {
			if e.From != n.ID {
				continue
			}
			bw.WriteString("L\t" + strconv.FormatInt(int64(e.From), 10) + "\t" + orient(e.FromStart) +
				"\t" + strconv.FormatInt(int64(e.To), 10) + "\t" + orient(e.ToEnd) + "\t0M\n")
		}
		return true
	})
	for _, name := range g.PathNames() {
		var steps []string
		for _, h := range g.Path(name) {
			steps = append(steps, strconv.FormatInt(int64(h.ID), 10)+orient(h.Reverse))
		}
		bw.WriteString("P\t" + name + "\t" + strings.Join(steps, ",") + "\t*\n")
	}
	return bw.Flush()
}

// FromFASTA builds a linear graph from reference sequences: each sequence is
// chopped into nodes of at most nodeSize bases, chained by edges, and
// recorded as a path named after the sequence. Node IDs are assigned
// consecutively from 1 in input order.
func FromFASTA(r io.Reader, nodeSize int) (*Graph, error) {
	if nodeSize <= 0 {
		return nil, errors.Errorf("node size must be positive, got %d", nodeSize)
	}
	g := New()
	fr := fasta.NewReader(r)
	next := NodeID(1)
	for fr.Scan() {
		rec := fr.Record()
		var steps []Handle
		for off := 0; off < len(rec.Seq); off += nodeSize {
			end := off + nodeSize
			if end > len(rec.Seq) {
				end = len(rec.Seq)
			}
			if err := g.AddNode(next, rec.Seq[off:end]); err != nil {
				return nil, err
			}
			if len(steps) > 0 {
				if err := g.AddEdge(Edge{From: next - 1, To: next}); err != nil {
					return nil, err
				}
			}
			steps = append(steps, Handle{ID: next})
			next++
		}
		if len(steps) > 0 {
			if err := g.AddPath(rec.Name, steps); err != nil {
				return nil, err
			}
		}
	}
	if err := fr.Err(); err != nil {
		return nil, err
	}
	g.Finish()
	return g, nil
}
