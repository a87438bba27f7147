// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd_test

import (
	"testing"

	"github.com/dkj/vg/biosimd"
	"github.com/grailbio/testutil/expect"
)

func TestReverseComp8(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"", ""},
		{"A", "T"},
		{"ACGTN", "NACGT"},
		{"acgtx", "NACGT"},
		{"GATTACA", "TGTAATC"},
	} {
		dst := make([]byte, len(tc.in))
		biosimd.ReverseComp8(dst, []byte(tc.in))
		expect.EQ(t, string(dst), tc.want)

		buf := []byte(tc.in)
		biosimd.ReverseComp8Inplace(buf)
		expect.EQ(t, string(buf), tc.want)
		expect.EQ(t, biosimd.ReverseComp8String(tc.in), tc.want)
	}
}

func TestReverse8Inplace(t *testing.T) {
	b := []byte("!#%&")
	biosimd.Reverse8Inplace(b)
	expect.EQ(t, string(b), "&%#!")
}

func TestBaseCounts(t *testing.T) {
	var c biosimd.BaseCounts
	c.Add([]byte("ACGTNacgg"))
	expect.EQ(t, c.GC(), 5)
	expect.EQ(t, c.Total(), 9)
	expect.EQ(t, c.Other, 1)
	expect.EQ(t, biosimd.IndexN([]byte("ACGTNacgg")), 4)
	expect.EQ(t, biosimd.IndexN([]byte("ACGT")), -1)
}
