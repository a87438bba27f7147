// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides byte-array operations on ASCII nucleotide
// sequences that sit on the mapper's hot path: reverse-complementing reads
// and node sequences, and base composition counts.
package biosimd
