// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package seqstream presents a collection of sequences as a single,
// seekable stream of symbols. Consecutive sequences are separated by
// a run of a configurable separator symbol; no separator precedes the
// first sequence or follows the last.
//
// Streams use space-based coordinates over the whole stream,
// separators included. For sequences "AAA", "C" and "GGG" separated
// by three '-' symbols, the stream is
//
//	position  0123456789012
//	symbol    AAA---C---GGG
//
// and has length 13. Bases other than A, C, G and T are returned as
// 'N'; lowercase bases are returned in upper case.
//
// A Stream is not safe for concurrent use. Any number of streams may
// share a seqstore.Store.
package seqstream

import (
	"fmt"
	"io"
	"sort"

	"github.com/fmarletaz/canu/internal/defaultsize"
	"github.com/fmarletaz/canu/metrics"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bio/biosimd"
)

// Defaults for streams constructed without options.
const (
	DefaultSeparator       = '.'
	DefaultSeparatorLength = 1
)

// Counters maintained in each stream's Stats scope.
var (
	// BasesStreamed counts bases loaded from the stream's sequences.
	BasesStreamed = metrics.NewCounter("bases_streamed")
	// SeparatorsStreamed counts separator symbols produced.
	SeparatorsStreamed = metrics.NewCounter("separators_streamed")
	// Refills counts buffer refills.
	Refills = metrics.NewCounter("refills")
)

// An Option configures a Stream.
type Option func(*Stream)

// BufferSize sets the number of symbols buffered between refills.
// Sizes less than 1 select the default size.
func BufferSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.buf = make([]byte, n)
		}
	}
}

// Separator sets the symbol, and the number of times it is
// repeated, between consecutive sequences.
func Separator(sym byte, n uint64) Option {
	return func(s *Stream) {
		s.sep, s.sepLen = sym, n
	}
}

// entry locates one sequence within the stream.
type entry struct {
	iid    uint32
	length uint64
	// begin is the stream position of the sequence's first base.
	begin uint64
	// base is the number of bases in all preceding sequences.
	base uint64
}

// Stream is a buffered, seekable stream of symbols over a sequence
// of sequences.
type Stream struct {
	src    source
	idx    []entry
	length uint64
	bases  uint64

	sep    byte
	sepLen uint64

	// posMap maps each position to its sequence, when enabled by
	// TradeSpaceForTime.
	posMap []uint32

	begin, end uint64

	// The cursor: strPos is the stream position of the next symbol,
	// which is at position seqPos of sequence cur, or within the
	// separator that follows it when seqPos >= its length.
	cur    int
	seqPos uint64
	strPos uint64

	// buf[bufPos:bufLen] holds the symbols at strPos onward. Each
	// fill holds either only bases or only separator symbols; bufSep
	// is the number of separator symbols in the buffer.
	buf                   []byte
	bufPos, bufLen, bufSep int

	err   error
	stats metrics.Scope
}

// New returns a stream over all of the sequences in store. The store
// must remain open while the stream is in use.
func New(store *seqstore.Store, opts ...Option) (*Stream, error) {
	return NewRange(store, store.All(), opts...)
}

// NewRange returns a stream over the sequences of store with ids in
// the provided range.
func NewRange(store *seqstore.Store, ids seqstore.IDRange, opts ...Option) (*Stream, error) {
	if ids.Begin > ids.End || ids.End > store.NumSequences() {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("seqstream: id range %s outside [0, %d)", ids, store.NumSequences()))
	}
	return newStream(storeSource{store, ids}, opts)
}

// NewRaw returns a stream over a single in-memory sequence. The
// stream takes ownership of bases.
func NewRaw(bases []byte, opts ...Option) *Stream {
	s, err := newStream(rawSource(bases), opts)
	must.Nil(err, "seqstream: raw stream")
	return s
}

func newStream(src source, opts []Option) (*Stream, error) {
	s := &Stream{
		src:    src,
		sep:    DefaultSeparator,
		sepLen: DefaultSeparatorLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buf == nil {
		n := defaultsize.StreamBuffer
		if n < 1 {
			n = 1
		}
		s.buf = make([]byte, n)
	}
	s.idx = make([]entry, src.numSequences())
	for i := range s.idx {
		n, err := src.length(i)
		if err != nil {
			return nil, err
		}
		s.idx[i] = entry{iid: src.iid(i), length: n}
	}
	s.reindex()
	return s, nil
}

// reindex computes the stream positions of each sequence and the
// stream length for the current separator, and resets the range to
// the whole stream.
func (s *Stream) reindex() {
	var pos, base uint64
	for i := range s.idx {
		if i > 0 {
			pos += s.sepLen
		}
		s.idx[i].begin = pos
		s.idx[i].base = base
		pos += s.idx[i].length
		base += s.idx[i].length
	}
	s.length, s.bases = pos, base
	if s.posMap != nil {
		s.posMap = nil
		s.TradeSpaceForTime()
	}
	s.begin, s.end = 0, s.length
	s.seek(0)
}

// SetSeparator changes the separator symbol and length. Since the
// length of the stream and the positions of its sequences depend on
// the separator length, SetSeparator resets the range to the whole
// stream and positions the stream at its beginning.
func (s *Stream) SetSeparator(sym byte, n uint64) {
	s.sep, s.sepLen = sym, n
	s.reindex()
}

// Separator returns the separator symbol and length.
func (s *Stream) Separator() (byte, uint64) { return s.sep, s.sepLen }

// Length returns the length of the stream, including separators.
func (s *Stream) Length() uint64 { return s.length }

// NumBases returns the number of bases in the stream, excluding
// separators.
func (s *Stream) NumBases() uint64 { return s.bases }

// Range returns the stream's current range.
func (s *Stream) Range() (begin, end uint64) { return s.begin, s.end }

// SetRange restricts the stream to positions [begin, end) and
// positions it at begin.
func (s *Stream) SetRange(begin, end uint64) error {
	if begin > end || end > s.length {
		return errors.E(errors.Invalid,
			fmt.Sprintf("seqstream: range [%d, %d) outside stream of length %d", begin, end, s.length))
	}
	s.begin, s.end = begin, end
	s.seek(begin)
	return nil
}

// SetBaseRange restricts the stream to the symbols spanning bases
// [begin, end), where bases are counted without separators. The
// range includes the separators between those bases. For example,
// given sequences "AAA", "C" and "GGG" with the separator "---",
// base range [0, 4) yields "AAA---C".
func (s *Stream) SetBaseRange(begin, end uint64) error {
	if begin > end || end > s.bases {
		return errors.E(errors.Invalid,
			fmt.Sprintf("seqstream: base range [%d, %d) outside %d bases", begin, end, s.bases))
	}
	b := s.length
	if begin < s.bases {
		b = s.basePosition(begin)
	}
	e := b
	if end > begin {
		e = s.basePosition(end-1) + 1
	}
	return s.SetRange(b, e)
}

// basePosition returns the stream position of the base numbered b,
// counting bases only. b must be less than s.bases.
func (s *Stream) basePosition(b uint64) uint64 {
	i := sort.Search(len(s.idx), func(i int) bool { return s.idx[i].base > b }) - 1
	return s.idx[i].begin + b - s.idx[i].base
}

// SetPosition positions the stream at pos, which must lie within
// the stream's range. The position may equal the range end, in which
// case the stream is exhausted.
func (s *Stream) SetPosition(pos uint64) error {
	if pos < s.begin || pos > s.end {
		return errors.E(errors.Invalid,
			fmt.Sprintf("seqstream: position %d outside range [%d, %d)", pos, s.begin, s.end))
	}
	s.seek(pos)
	return nil
}

// Rewind positions the stream at the beginning of its range.
func (s *Stream) Rewind() { s.seek(s.begin) }

func (s *Stream) seek(pos uint64) {
	s.bufPos, s.bufLen, s.bufSep = 0, 0, 0
	s.err = nil
	s.strPos = pos
	switch {
	case len(s.idx) == 0:
		s.cur, s.seqPos = 0, 0
	case pos >= s.length:
		s.cur = len(s.idx) - 1
		s.seqPos = s.idx[s.cur].length
	default:
		s.cur = s.SequenceNumberOfPosition(pos)
		s.seqPos = pos - s.idx[s.cur].begin
	}
}

// EOF reports whether the stream has reached the end of its range,
// or has failed.
func (s *Stream) EOF() bool { return s.strPos >= s.end || s.err != nil }

// Err returns the error, if any, that stopped the stream.
func (s *Stream) Err() error { return s.err }

// Get returns the next symbol in the stream. It returns false at the
// end of the range, or when the stream has failed; Err distinguishes
// the two.
func (s *Stream) Get() (byte, bool) {
	if s.bufPos == s.bufLen && !s.fill() {
		return 0, false
	}
	c := s.buf[s.bufPos]
	s.bufPos++
	s.advance(1)
	return c, true
}

// Read implements io.Reader over the remaining symbols of the
// range.
func (s *Stream) Read(p []byte) (int, error) {
	var n int
	for n < len(p) {
		if s.bufPos == s.bufLen && !s.fill() {
			break
		}
		m := copy(p[n:], s.buf[s.bufPos:s.bufLen])
		s.bufPos += m
		s.advance(uint64(m))
		n += m
	}
	if n > 0 {
		return n, nil
	}
	if s.err != nil {
		return 0, s.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	return 0, io.EOF
}

// advance moves the cursor forward by n symbols, all of which must
// lie within the current sequence or its trailing separator.
func (s *Stream) advance(n uint64) {
	s.strPos += n
	s.seqPos += n
	for s.cur < len(s.idx)-1 && s.seqPos >= s.idx[s.cur].length+s.sepLen {
		s.seqPos -= s.idx[s.cur].length + s.sepLen
		s.cur++
	}
}

// fill refills the buffer from the cursor. The buffer is filled
// either with bases of the current sequence or with separator
// symbols, never both. It returns false if no symbols remain.
func (s *Stream) fill() bool {
	s.bufPos, s.bufLen, s.bufSep = 0, 0, 0
	if s.err != nil || s.strPos >= s.end {
		return false
	}
	n := uint64(len(s.buf))
	if remain := s.end - s.strPos; remain < n {
		n = remain
	}
	e := s.idx[s.cur]
	if s.seqPos < e.length {
		if remain := e.length - s.seqPos; remain < n {
			n = remain
		}
		buf := s.buf[:n]
		if err := s.src.read(s.cur, s.seqPos, buf); err != nil {
			s.err = errors.E(err, fmt.Sprintf("seqstream: reading sequence %d", e.iid))
			return false
		}
		biosimd.CleanASCIISeqInplace(buf)
		BasesStreamed.Incr(&s.stats, int(n))
	} else {
		if remain := e.length + s.sepLen - s.seqPos; remain < n {
			n = remain
		}
		for i := range s.buf[:n] {
			s.buf[i] = s.sep
		}
		s.bufSep = int(n)
		SeparatorsStreamed.Incr(&s.stats, int(n))
	}
	s.bufLen = int(n)
	Refills.Incr(&s.stats, 1)
	return true
}

// InSeparator reports whether the next symbol is a separator.
func (s *Stream) InSeparator() bool {
	if s.bufPos < s.bufLen {
		return s.bufSep > 0
	}
	return len(s.idx) > 0 && s.seqPos >= s.idx[s.cur].length
}

// StrPos returns the stream position of the next symbol.
func (s *Stream) StrPos() uint64 { return s.strPos }

// SeqIID returns the identifier of the sequence containing the next
// symbol. Identifiers are store ids for store-backed streams and zero
// for raw streams. The value is that of the preceding sequence when
// the next symbol is a separator.
func (s *Stream) SeqIID() uint32 {
	if len(s.idx) == 0 {
		return 0
	}
	return s.idx[s.cur].iid
}

// SeqPos returns the position of the next symbol within its
// sequence. The value is undefined when the next symbol is a
// separator.
func (s *Stream) SeqPos() uint64 { return s.seqPos }

// NumSequences returns the number of sequences in the stream.
func (s *Stream) NumSequences() int { return len(s.idx) }

// LengthOf returns the length of the i'th sequence in the stream.
func (s *Stream) LengthOf(i int) uint64 { return s.idx[i].length }

// IIDOf returns the identifier of the i'th sequence in the stream.
func (s *Stream) IIDOf(i int) uint32 { return s.idx[i].iid }

// StartOf returns the stream position of the first base of the i'th
// sequence.
func (s *Stream) StartOf(i int) uint64 { return s.idx[i].begin }

// SequenceNumberOfPosition returns the index of the sequence that
// owns stream position pos; separator positions are owned by the
// preceding sequence. It returns -1 if pos is not within the stream.
func (s *Stream) SequenceNumberOfPosition(pos uint64) int {
	if pos >= s.length {
		return -1
	}
	if s.posMap != nil {
		return int(s.posMap[pos])
	}
	return sort.Search(len(s.idx), func(i int) bool { return s.idx[i].begin > pos }) - 1
}

// TradeSpaceForTime precomputes the owning sequence of every stream
// position, so that SequenceNumberOfPosition takes constant time.
// The table holds four bytes per position, and is maintained across
// changes of separator.
func (s *Stream) TradeSpaceForTime() {
	if s.posMap != nil {
		return
	}
	s.posMap = make([]uint32, s.length)
	for i := range s.idx {
		end := s.length
		if i+1 < len(s.idx) {
			end = s.idx[i+1].begin
		}
		for p := s.idx[i].begin; p < end; p++ {
			s.posMap[p] = uint32(i)
		}
	}
}

// Stats returns the scope in which the stream's counters are kept.
func (s *Stream) Stats() *metrics.Scope { return &s.stats }
