// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/ioutil"
	"os"

	"github.com/fmarletaz/canu/bitfile"
	"github.com/fmarletaz/canu/seqio"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
)

// progressInterval is the number of sequences between progress
// reports of a verbose construction.
const progressInterval = 1 << 16

// An Option configures container construction.
type Option func(*options)

type options struct {
	tempDir string
	verbose bool
}

// TempDir sets the local directory in which packed bases are
// spilled while the source is consumed. The default is the system
// temporary directory.
func TempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

// Verbose turns on progress logging.
func Verbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// symbols maps bases to their packed values; bases without a value
// are stored as gaps.
var symbols [256]byte

const noSymbol = 0xff

func init() {
	for i := range symbols {
		symbols[i] = noSymbol
	}
	for i, b := range []byte("ACGT") {
		symbols[b] = byte(i)
		symbols[b+'a'-'A'] = byte(i)
	}
}

// Encodable reports whether a base is stored in packed form. Other
// bases are stored as gaps and are decoded as 'N'.
func Encodable(b byte) bool { return symbols[b] != noSymbol }

// builder accumulates the sections of a container as sequences are
// added. Packed bases go to a bitfile.Writer; everything else is
// kept in memory.
type builder struct {
	data   *bitfile.Writer
	header Header
	index  []indexEntry
	blocks []Block
	names  bytes.Buffer
	packed []byte
}

func (b *builder) add(rec seqio.Record) error {
	id := uint64(len(b.index))
	if id >= MaxSequences {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: more than %d sequences", uint64(MaxSequences)))
	}
	if uint64(len(rec.Bases)) > MaxSequenceLength {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: sequence %q: length %d exceeds maximum %d",
			rec.Name(), len(rec.Bases), uint64(MaxSequenceLength)))
	}
	if uint64(b.names.Len())+uint64(len(rec.Header)) > MaxNamesLength {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: sequence %q: header text exceeds %d bytes",
			rec.Name(), uint64(MaxNamesLength)))
	}
	entry := indexEntry{
		nameOff:    uint32(b.names.Len()),
		nameLen:    uint32(len(rec.Header)),
		dataOff:    b.data.Len().Bits(),
		length:     uint32(len(rec.Bases)),
		firstBlock: uint32(len(b.blocks)),
	}
	b.names.WriteString(rec.Header)
	bases := rec.Bases
	for pos := 0; pos < len(bases); {
		encoded := Encodable(bases[pos])
		end := pos + 1
		for end < len(bases) && end-pos < MaxBlockLength && Encodable(bases[end]) == encoded {
			end++
		}
		blk := Block{
			Encoded:  encoded,
			Position: uint32(pos),
			ID:       uint32(id),
			Length:   uint32(end - pos),
		}
		if encoded {
			b.packed = b.packed[:0]
			for _, base := range bases[pos:end] {
				b.packed = append(b.packed, symbols[base])
			}
			off, err := b.data.Append(b.packed)
			if err != nil {
				return errors.E(err, "seqstore: spilling bases")
			}
			blk.Offset = off
			b.header.NumEncodedBlocks++
		} else {
			b.header.NumGapBlocks++
		}
		if err := checkBlock(blk); err != nil {
			return err
		}
		if uint64(len(b.blocks)) >= 1<<32-1 {
			return errors.E(errors.Integrity, "seqstore: too many blocks")
		}
		b.blocks = append(b.blocks, blk)
		pos = end
	}
	b.index = append(b.index, entry)
	b.header.NumBases += uint64(len(bases))
	return nil
}

// finish fills in the header and returns the serialized index,
// block and names sections.
func (b *builder) finish() (Header, []byte, error) {
	if err := b.data.Close(); err != nil {
		return Header{}, nil, errors.E(err, "seqstore: spilling bases")
	}
	h := b.header
	h.NumSequences = uint32(len(b.index))
	h.NumBlocks = h.NumEncodedBlocks + h.NumGapBlocks
	h.NamesLength = uint32(b.names.Len())
	h.IndexStart = headerSize + uint64(b.data.Size())
	h.BlockStart = h.IndexStart + uint64(len(b.index))*indexEntrySize
	h.NamesStart = h.BlockStart + uint64(len(b.blocks))*blockSize

	meta := make([]byte, h.NamesStart-h.IndexStart, h.NamesStart-h.IndexStart+uint64(h.NamesLength))
	p := meta
	for _, e := range b.index {
		e.marshal(p)
		p = p[indexEntrySize:]
	}
	for _, blk := range b.blocks {
		blk.marshal(p)
		p = p[blockSize:]
	}
	meta = append(meta, b.names.Bytes()...)
	h.Checksum = crc32.ChecksumIEEE(meta)
	return h, meta, h.validate()
}

// Construct builds a container at path from the records of src, in
// order. The container is written through package
// github.com/grailbio/base/file, so path may name any registered
// file implementation. Construct returns the header of the
// container. On error, the partially written container is removed.
//
// An empty source yields a valid, empty container.
func Construct(ctx context.Context, path string, src seqio.Source, opts ...Option) (hdr Header, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	spill, err := ioutil.TempFile(o.tempDir, "seqstore-")
	if err != nil {
		return Header{}, errors.E(err, "seqstore: creating spill file")
	}
	defer func() {
		fileio.CloseAndReport(spill, &err)
		if rmErr := os.Remove(spill.Name()); rmErr != nil {
			log.Error.Printf("seqstore: removing spill file %s: %v", spill.Name(), rmErr)
		}
	}()

	b := &builder{data: bitfile.NewWriter(spill, bitsPerBase)}
	for {
		if err = ctx.Err(); err != nil {
			return Header{}, err
		}
		var rec seqio.Record
		rec, err = src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Header{}, errors.E(err, "seqstore: reading source")
		}
		if err = b.add(rec); err != nil {
			return Header{}, err
		}
		log.Debug.Printf("seqstore: %s: sequence %d %q: %d bases", path, len(b.index)-1, rec.Name(), len(rec.Bases))
		if o.verbose && len(b.index)%progressInterval == 0 {
			log.Printf("seqstore: %s: loaded %d sequences, %d bases", path, len(b.index), b.header.NumBases)
		}
	}
	hdr, meta, err := b.finish()
	if err != nil {
		return Header{}, err
	}
	if _, err = spill.Seek(0, io.SeekStart); err != nil {
		return Header{}, errors.E(err, "seqstore: rewinding spill file")
	}
	if err = write(ctx, path, hdr, spill, meta); err != nil {
		return Header{}, err
	}
	if o.verbose {
		log.Printf("seqstore: %s: wrote %d sequences, %d bases in %d blocks (%d encoded, %d gap)",
			path, hdr.NumSequences, hdr.NumBases, hdr.NumBlocks, hdr.NumEncodedBlocks, hdr.NumGapBlocks)
	}
	return hdr, nil
}

// write writes a complete container to path, removing it if any
// part of the write fails.
func write(ctx context.Context, path string, h Header, data io.Reader, meta []byte) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, fmt.Sprintf("seqstore: create %s", path))
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			if closeErr := f.Close(ctx); closeErr != nil {
				log.Error.Printf("seqstore: closing %s: %v", path, closeErr)
			}
		}
		if rmErr := file.Remove(ctx, path); rmErr != nil {
			log.Error.Printf("seqstore: removing %s: %v", path, rmErr)
		}
	}()
	w := f.Writer(ctx)
	var hbuf [headerSize]byte
	h.marshal(hbuf[:])
	if _, err = w.Write(hbuf[:]); err != nil {
		return errors.E(err, fmt.Sprintf("seqstore: write %s", path))
	}
	n, err := io.Copy(w, data)
	if err != nil {
		return errors.E(err, fmt.Sprintf("seqstore: write %s", path))
	}
	if n != h.DataSize() {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: copied %d bytes of base data, expected %d", n, h.DataSize()))
	}
	if _, err = w.Write(meta); err != nil {
		return errors.E(err, fmt.Sprintf("seqstore: write %s", path))
	}
	closed = true
	if err = f.Close(ctx); err != nil {
		return errors.E(err, fmt.Sprintf("seqstore: close %s", path))
	}
	return nil
}
