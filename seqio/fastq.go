// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqio

import (
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/grailbio/base/errors"
)

type fastqSource struct {
	r   *fastq.Reader
	err error
}

// NewFASTQSource returns a Source that parses FASTQ records from r.
// Headers are built as by NewFASTASource. Quality values are
// discarded. Multi-line records are not supported.
func NewFASTQSource(r io.Reader) Source {
	template := linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)
	return &fastqSource{r: fastq.NewReader(r, template)}
}

func (f *fastqSource) Next() (Record, error) {
	if f.err != nil {
		return Record{}, f.err
	}
	s, err := f.r.Read()
	if err != nil {
		if err != io.EOF {
			err = errors.E(err, "seqio: parsing fastq")
		}
		f.err = err
		if s == nil {
			return Record{}, err
		}
	}
	qs, ok := s.(*linear.QSeq)
	if !ok {
		f.err = errors.E(errors.Invalid, "seqio: unexpected fastq sequence type")
		return Record{}, f.err
	}
	rec := Record{Header: header(qs), Bases: make([]byte, len(qs.Seq))}
	for i, ql := range qs.Seq {
		rec.Bases[i] = byte(ql.L)
	}
	return rec, nil
}
