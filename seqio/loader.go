// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqio

import (
	"io"

	"github.com/grailbio/base/errors"
)

// A BaseLoader streams the bases of a collection of sequences
// through a caller-supplied buffer, so that arbitrarily long
// sequences can be consumed without holding them in memory.
type BaseLoader interface {
	// LoadBases copies up to len(dst) bases of the current sequence
	// into dst and returns the number of bases copied. If the copied
	// bases complete the current sequence, endOfSequence is true and
	// the next call begins the following sequence. Empty sequences
	// are reported as (0, true, nil). LoadBases returns io.EOF when
	// no sequences remain. dst must not be empty.
	LoadBases(dst []byte) (n int, endOfSequence bool, err error)
}

// SourceLoader is a BaseLoader over the records of a Source.
type SourceLoader struct {
	src    Source
	cur    []byte
	active bool
	err    error
}

// NewSourceLoader returns a BaseLoader that loads the bases of the
// records of src, in order.
func NewSourceLoader(src Source) *SourceLoader {
	return &SourceLoader{src: src}
}

// LoadBases implements BaseLoader.
func (l *SourceLoader) LoadBases(dst []byte) (int, bool, error) {
	if l.err != nil {
		return 0, false, l.err
	}
	if len(dst) == 0 {
		return 0, false, errors.E(errors.Invalid, "seqio: LoadBases called with an empty buffer")
	}
	if !l.active {
		rec, err := l.src.Next()
		if err != nil {
			l.err = err
			return 0, false, err
		}
		l.cur, l.active = rec.Bases, true
	}
	n := copy(dst, l.cur)
	l.cur = l.cur[n:]
	if len(l.cur) == 0 {
		l.active = false
		return n, true, nil
	}
	return n, false, nil
}

// LoadAll drains a BaseLoader using a buffer of the given size and
// returns the reassembled sequences. It is intended for testing.
func LoadAll(l BaseLoader, bufferSize int) ([][]byte, error) {
	var (
		seqs [][]byte
		cur  []byte
		buf  = make([]byte, bufferSize)
	)
	for {
		n, eos, err := l.LoadBases(buf)
		if err == io.EOF {
			if cur != nil {
				return seqs, errors.E(errors.Integrity, "seqio: loader ended within a sequence")
			}
			return seqs, nil
		}
		if err != nil {
			return seqs, err
		}
		if cur == nil {
			cur = []byte{}
		}
		cur = append(cur, buf[:n]...)
		if eos {
			seqs = append(seqs, cur)
			cur = nil
		}
	}
}
