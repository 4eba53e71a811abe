// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package seqio provides the sequence sources consumed by container
// construction and the chunked base loading interface used by
// k-mer counting consumers.
package seqio

import (
	"bytes"
	"io"
)

// A Record is a single input sequence: its header (description)
// line, without any leading '>', and its bases.
type Record struct {
	Header string
	Bases  []byte
}

// Name returns the first whitespace-delimited word of the record's
// header.
func (r Record) Name() string { return FirstWord(r.Header) }

// FirstWord returns the first space- or tab-delimited word of a
// header line.
func FirstWord(header string) string {
	for i := 0; i < len(header); i++ {
		if header[i] == ' ' || header[i] == '\t' {
			return header[:i]
		}
	}
	return header
}

// A Source is a lazy, finite, one-pass sequence of records. Next
// returns io.EOF once the source is exhausted; any other error
// aborts consumption.
//
// Next should not be called concurrently.
type Source interface {
	Next() (Record, error)
}

type recordSource struct {
	q []Record
}

// Records returns a Source that produces the provided records in
// order.
func Records(records ...Record) Source {
	return &recordSource{records}
}

func (r *recordSource) Next() (Record, error) {
	if len(r.q) == 0 {
		return Record{}, io.EOF
	}
	rec := r.q[0]
	r.q = r.q[1:]
	return rec, nil
}

type multiSource struct {
	q   []Source
	err error
}

// MultiSource returns a Source that's the logical concatenation of
// the provided sources. Once every underlying Source has returned
// io.EOF, Next returns io.EOF, too. Other errors are returned
// immediately and are sticky.
func MultiSource(sources ...Source) Source {
	return &multiSource{q: sources}
}

func (m *multiSource) Next() (Record, error) {
	if m.err != nil {
		return Record{}, m.err
	}
	for len(m.q) > 0 {
		rec, err := m.q[0].Next()
		switch {
		case err == io.EOF:
			m.q = m.q[1:]
		case err != nil:
			m.err = err
			return Record{}, err
		default:
			return rec, nil
		}
	}
	return Record{}, io.EOF
}

// ReadAll reads all remaining records from a Source. ReadAll is
// intended for testing and small inputs.
func ReadAll(src Source) ([]Record, error) {
	var records []Record
	for {
		rec, err := src.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// Equal tells whether two records have the same header and bases.
func (r Record) Equal(s Record) bool {
	return r.Header == s.Header && bytes.Equal(r.Bases, s.Bases)
}
