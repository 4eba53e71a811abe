// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bitfile implements a bit-packed symbol store. A Writer
	appends runs of fixed-width symbols to an underlying io.Writer and
	returns the Offset of each run; a Reader later decodes any number
	of symbols starting at such an Offset.

	Symbols are packed most significant bit first. A symbol of width w
	stored at bit b occupies bits [b, b+w) of the region, where bit b
	is bit 7-(b%8) of byte b/8. Runs are packed back to back without
	padding; only the final byte of a region is padded with zeros.
	Widths from 1 to 8 bits are supported.
*/
package bitfile

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
)

// An Offset is the bit position of a run of symbols within a
// region. Offsets are handed out by Writer.Append and are never
// reused or invalidated by later appends.
type Offset uint64

// Bits returns the offset as a raw bit count, suitable for
// serialization.
func (o Offset) Bits() uint64 { return uint64(o) }

func checkWidth(width int) {
	must.Truef(width >= 1 && width <= 8, "bitfile: invalid symbol width %d", width)
}

// A Writer appends fixed-width symbols to an io.Writer.
type Writer struct {
	w     *bufio.Writer
	width uint
	mask  byte

	acc  uint
	nacc uint
	off  uint64
	err  error
}

// NewWriter returns a Writer that packs symbols of the given width
// (in bits) into w. NewWriter panics if the width is not between 1
// and 8.
func NewWriter(w io.Writer, width int) *Writer {
	checkWidth(width)
	return &Writer{
		w:     bufio.NewWriter(w),
		width: uint(width),
		mask:  byte(1<<uint(width) - 1),
	}
}

// Append packs the provided symbols and returns the offset of the
// first one. Each symbol must fit in the writer's width.
func (w *Writer) Append(symbols []byte) (Offset, error) {
	if w.err != nil {
		return 0, w.err
	}
	off := Offset(w.off)
	for _, sym := range symbols {
		if sym&^w.mask != 0 {
			w.err = errors.E(errors.Invalid, fmt.Sprintf("bitfile: symbol %d does not fit in %d bits", sym, w.width))
			return 0, w.err
		}
		w.acc = w.acc<<w.width | uint(sym)
		w.nacc += w.width
		if w.nacc >= 8 {
			w.nacc -= 8
			if w.err = w.w.WriteByte(byte(w.acc >> w.nacc)); w.err != nil {
				return 0, w.err
			}
			w.acc &= 1<<w.nacc - 1
		}
	}
	w.off += uint64(len(symbols)) * uint64(w.width)
	return off, nil
}

// Len returns the offset at which the next run will be appended.
func (w *Writer) Len() Offset { return Offset(w.off) }

// Size returns the number of bytes occupied by the symbols appended
// so far, including the padding of a trailing partial byte.
func (w *Writer) Size() int64 { return int64((w.off + 7) / 8) }

// Close pads and writes the final partial byte and flushes the
// writer. It does not close the underlying io.Writer. The Writer may
// not be used after Close.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	if w.nacc > 0 {
		if w.err = w.w.WriteByte(byte(w.acc << (8 - w.nacc))); w.err != nil {
			return w.err
		}
		w.acc, w.nacc = 0, 0
	}
	w.err = w.w.Flush()
	if w.err == nil {
		w.err = errors.E(errors.Precondition, "bitfile: writer closed")
		return nil
	}
	return w.err
}

// A Reader decodes symbols from a bit-packed region of an
// io.ReaderAt. Readers are safe for concurrent use if the underlying
// io.ReaderAt is.
type Reader struct {
	r     io.ReaderAt
	base  int64
	nbits uint64
	width uint
	mask  byte
}

// NewReader returns a reader for the region of r beginning at byte
// offset base and spanning size bytes, containing symbols of the
// given width.
func NewReader(r io.ReaderAt, base, size int64, width int) *Reader {
	checkWidth(width)
	return &Reader{
		r:     r,
		base:  base,
		nbits: uint64(size) * 8,
		width: uint(width),
		mask:  byte(1<<uint(width) - 1),
	}
}

// Read decodes len(dst) symbols into dst, beginning skip symbols
// after the run at offset off. Reads that would extend past the end
// of the region fail with errors.Invalid.
func (r *Reader) Read(off Offset, skip uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	start := uint64(off) + skip*uint64(r.width)
	end := start + uint64(len(dst))*uint64(r.width)
	if end > r.nbits || end < start {
		return errors.E(errors.Invalid, fmt.Sprintf("bitfile: read of bits [%d, %d) beyond region of %d bits", start, end, r.nbits))
	}
	first := start / 8
	p := make([]byte, (end+7)/8-first)
	if _, err := r.r.ReadAt(p, r.base+int64(first)); err != nil {
		return errors.E(err, fmt.Sprintf("bitfile: read %d bytes at %d", len(p), r.base+int64(first)))
	}
	pos := uint(start % 8)
	for i := range dst {
		b := pos / 8
		v := uint(p[b]) << 8
		if b+1 < uint(len(p)) {
			v |= uint(p[b+1])
		}
		dst[i] = byte(v>>(16-pos%8-r.width)) & r.mask
		pos += r.width
	}
	return nil
}

// NewReaderAt returns an io.ReaderAt for rs. If rs already
// implements io.ReaderAt, it is returned directly; otherwise reads
// are serialized through a seek followed by a full read.
func NewReaderAt(rs io.ReadSeeker) io.ReaderAt {
	if ra, ok := rs.(io.ReaderAt); ok {
		return ra
	}
	return &seekReaderAt{r: rs}
}

type seekReaderAt struct {
	mu sync.Mutex
	r  io.ReadSeeker
}

func (s *seekReaderAt) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.r, p)
}
