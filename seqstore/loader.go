// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"fmt"
	"io"

	"github.com/fmarletaz/canu/seqio"
	"github.com/grailbio/base/errors"
)

// Loader is a seqio.BaseLoader over a range of a store's sequences.
type Loader struct {
	store *Store
	ids   IDRange
	id    uint32
	pos   uint64
	err   error
}

var _ seqio.BaseLoader = (*Loader)(nil)

// Loader returns a loader of the bases of the sequences in ids, in
// id order. The range must lie within the store.
func (s *Store) Loader(ids IDRange) (*Loader, error) {
	if ids.Begin > ids.End || ids.End > s.header.NumSequences {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("seqstore: id range %s outside [0, %d)", ids, s.header.NumSequences))
	}
	return &Loader{store: s, ids: ids, id: ids.Begin}, nil
}

// LoadBases implements seqio.BaseLoader.
func (l *Loader) LoadBases(dst []byte) (int, bool, error) {
	if l.err != nil {
		return 0, false, l.err
	}
	if len(dst) == 0 {
		return 0, false, errors.E(errors.Invalid, "seqstore: LoadBases called with an empty buffer")
	}
	if l.id >= l.ids.End {
		l.err = io.EOF
		return 0, false, l.err
	}
	length := uint64(l.store.index[l.id].length)
	n := length - l.pos
	if n > uint64(len(dst)) {
		n = uint64(len(dst))
	}
	if err := l.store.read(l.id, l.pos, dst[:n]); err != nil {
		l.err = err
		return 0, false, err
	}
	l.pos += n
	if l.pos == length {
		l.id++
		l.pos = 0
		return int(n), true, nil
	}
	return int(n), false, nil
}

// ID returns the id of the sequence whose bases are returned by the
// next call to LoadBases.
func (l *Loader) ID() uint32 { return l.id }
