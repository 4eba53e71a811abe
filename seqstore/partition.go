// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"fmt"
	"math/bits"

	"github.com/grailbio/base/errors"
)

// IDRange is the half-open range of sequence ids [Begin, End).
type IDRange struct {
	Begin, End uint32
}

// Len returns the number of ids in the range.
func (r IDRange) Len() int { return int(r.End - r.Begin) }

// String returns a string like "[2, 7)".
func (r IDRange) String() string { return fmt.Sprintf("[%d, %d)", r.Begin, r.End) }

// Partition splits the ids of sequences with the provided lengths
// into n contiguous, disjoint ranges that together cover all ids.
// Ranges are balanced by base count: sequence i is assigned to range
// floor(start_i*n/total), where start_i is the number of bases in
// sequences before i. Ranges may be empty. If all sequences are
// empty, they are assigned to the first range.
func Partition(lengths []uint64, n int) ([]IDRange, error) {
	if n < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("seqstore: invalid partition count %d", n))
	}
	if uint64(len(lengths)) > MaxSequences {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("seqstore: cannot partition %d sequences", len(lengths)))
	}
	var total uint64
	for _, l := range lengths {
		total += l
	}
	ranges := make([]IDRange, n)
	var (
		cur   int
		start uint64
	)
	for i, l := range lengths {
		var k int
		if total > 0 {
			hi, lo := bits.Mul64(start, uint64(n))
			q, _ := bits.Div64(hi, lo, total)
			k = int(q)
			if k > n-1 {
				k = n - 1
			}
		}
		for cur < k {
			ranges[cur].End = uint32(i)
			cur++
			ranges[cur].Begin = uint32(i)
		}
		start += l
	}
	num := uint32(len(lengths))
	for cur < n-1 {
		ranges[cur].End = num
		cur++
		ranges[cur].Begin = num
	}
	ranges[n-1].End = num
	return ranges, nil
}

// All returns the range of all ids in the store.
func (s *Store) All() IDRange { return IDRange{0, s.header.NumSequences} }

// Segments partitions the store's sequences into n ranges of
// roughly equal base count. See Partition.
func (s *Store) Segments(n int) ([]IDRange, error) {
	lengths := make([]uint64, len(s.index))
	for i, e := range s.index {
		lengths[i] = uint64(e.length)
	}
	return Partition(lengths, n)
}
