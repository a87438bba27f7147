package align

import (
	"fmt"
	"strconv"
	"strings"
)

// matrix is a row-major 2 dimensional score matrix. Rows are graph bases in
// topological order, columns are read prefixes.
type matrix struct {
	nRow, nCol int
	data       []int32
}

// reset resizes m to n x k, reusing its storage when possible. The contents
// are undefined afterwards.
func (m *matrix) reset(n, k int) {
	m.nRow, m.nCol = n, k
	if cap(m.data) < n*k {
		m.data = make([]int32, n*k)
		return
	}
	m.data = m.data[:n*k]
}

func (m *matrix) at(i, j int) int32 { return m.data[i*m.nCol+j] }

func (m *matrix) set(i, j int, v int32) { m.data[i*m.nCol+j] = v }

// String returns a string representation of a matrix.
func (m *matrix) String() string {
	maxLength := 0
	for _, d := range m.data {
		if l := len(strconv.Itoa(int(d))); l > maxLength {
			maxLength = l
		}
	}
	lines := []string{"\n"}
	for i := 0; i < m.nRow; i++ {
		var parts []string
		for j := 0; j < m.nCol; j++ {
			parts = append(parts, fmt.Sprintf("%*d", maxLength, m.at(i, j)))
		}
		lines = append(lines, strings.Join(parts, " | "))
	}
	return strings.Join(lines, "\n")
}
