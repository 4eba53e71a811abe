// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqio

import (
	"io"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/grailbio/base/errors"
)

// DefaultLineWidth is the number of bases per line written by
// FASTAWriter when no width is specified.
const DefaultLineWidth = 60

type fastaSource struct {
	r   *fasta.Reader
	err error
}

// NewFASTASource returns a Source that parses FASTA records from r.
// Records are returned in file order; the header of each record is
// its description line, with the name and the rest of the line
// joined by a single space whatever whitespace separated them.
// Bases are returned as they appear in the file, with line breaks
// removed.
func NewFASTASource(r io.Reader) Source {
	template := linear.NewSeq("", nil, alphabet.DNAredundant)
	return &fastaSource{r: fasta.NewReader(r, template)}
}

func (f *fastaSource) Next() (Record, error) {
	if f.err != nil {
		return Record{}, f.err
	}
	s, err := f.r.Read()
	if err != nil {
		if err != io.EOF {
			err = errors.E(err, "seqio: parsing fasta")
		}
		f.err = err
		if s == nil {
			return Record{}, err
		}
	}
	ls, ok := s.(*linear.Seq)
	if !ok {
		f.err = errors.E(errors.Invalid, "seqio: unexpected fasta sequence type")
		return Record{}, f.err
	}
	rec := Record{Header: header(ls), Bases: make([]byte, len(ls.Seq))}
	for i, l := range ls.Seq {
		rec.Bases[i] = byte(l)
	}
	return rec, nil
}

// header rebuilds a header line from a parsed name and description.
func header(s seq.Sequence) string {
	if desc := s.Description(); desc != "" {
		return s.Name() + " " + desc
	}
	return s.Name()
}

// A FASTAWriter writes records in FASTA format.
type FASTAWriter struct {
	w *fasta.Writer
}

// NewFASTAWriter returns a writer that writes FASTA records to w,
// wrapping sequence lines at the given width. A width of zero or
// less selects DefaultLineWidth.
func NewFASTAWriter(w io.Writer, width int) *FASTAWriter {
	if width <= 0 {
		width = DefaultLineWidth
	}
	return &FASTAWriter{fasta.NewWriter(w, width)}
}

// Write writes a single record.
func (w *FASTAWriter) Write(rec Record) error {
	var (
		name = rec.Name()
		desc string
	)
	if len(name) < len(rec.Header) {
		desc = rec.Header[len(name)+1:]
	}
	s := linear.NewSeq(name, alphabet.BytesToLetters(rec.Bases), alphabet.DNAredundant)
	s.Desc = desc
	_, err := w.w.Write(seq.Sequence(s))
	return err
}
