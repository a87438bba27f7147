// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

// BaseCounts holds case-insensitive nucleotide counts.
type BaseCounts struct {
	A, C, G, T, Other int
}

// GC returns the number of G and C bases.
func (c BaseCounts) GC() int { return c.G + c.C }

// Total returns the number of bases counted.
func (c BaseCounts) Total() int { return c.A + c.C + c.G + c.T + c.Other }

// Add accumulates the composition of ascii8[] into c.
func (c *BaseCounts) Add(ascii8 []byte) {
	for _, b := range ascii8 {
		switch b {
		case 'A', 'a':
			c.A++
		case 'C', 'c':
			c.C++
		case 'G', 'g':
			c.G++
		case 'T', 't':
			c.T++
		default:
			c.Other++
		}
	}
}

// IndexN returns the index of the first 'N'/'n' in ascii8[], or -1.
func IndexN(ascii8 []byte) int {
	for i, b := range ascii8 {
		if b == 'N' || b == 'n' {
			return i
		}
	}
	return -1
}
