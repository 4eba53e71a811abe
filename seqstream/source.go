// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstream

import (
	"github.com/fmarletaz/canu/seqstore"
)

// A source provides the sequences underlying a stream. Sequences
// are numbered from zero.
type source interface {
	numSequences() int
	// length returns the length of sequence i.
	length(i int) (uint64, error)
	// iid returns the identifier reported for sequence i.
	iid(i int) uint32
	// read reads len(dst) bases of sequence i, starting at begin.
	read(i int, begin uint64, dst []byte) error
}

// storeSource streams a range of a store's sequences.
type storeSource struct {
	store *seqstore.Store
	ids   seqstore.IDRange
}

func (s storeSource) numSequences() int { return s.ids.Len() }

func (s storeSource) length(i int) (uint64, error) {
	return s.store.Length(s.iid(i))
}

func (s storeSource) iid(i int) uint32 { return s.ids.Begin + uint32(i) }

func (s storeSource) read(i int, begin uint64, dst []byte) error {
	return s.store.ReadBases(s.iid(i), begin, dst)
}

// rawSource streams a single in-memory sequence.
type rawSource []byte

func (rawSource) numSequences() int { return 1 }

func (r rawSource) length(int) (uint64, error) { return uint64(len(r)), nil }

func (rawSource) iid(int) uint32 { return 0 }

func (r rawSource) read(_ int, begin uint64, dst []byte) error {
	copy(dst, r[begin:])
	return nil
}
