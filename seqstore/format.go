// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"encoding/binary"
	"fmt"

	"github.com/fmarletaz/canu/bitfile"
	"github.com/grailbio/base/errors"
)

var order = binary.LittleEndian

const (
	headerSize     = 80
	indexEntrySize = 24
	blockSize      = 16

	formatVersion = 1

	bitsPerBase = 2
)

var magic = [16]byte{'c', 'a', 'n', 'u', '.', 's', 'e', 'q', 'S', 't', 'o', 'r', 'e', 0, 'v', '1'}

// Limits imposed by the on-disk format.
const (
	// MaxSequenceLength is the length of the longest sequence that
	// can be stored; it is also the largest block position.
	MaxSequenceLength = 1<<32 - 1
	// MaxSequences is the largest number of sequences a container
	// can hold.
	MaxSequences = 1<<32 - 1
	// MaxBlockLength is the longest run described by a single block.
	// Longer runs are split into consecutive blocks.
	MaxBlockLength = 1<<23 - 1
	// MaxDataBits is the largest bit offset of a packed run.
	MaxDataBits = 1<<40 - 1
	// MaxNamesLength is the largest size of all header lines
	// combined.
	MaxNamesLength = 1<<32 - 1
)

// Header describes a container. It is written once, at construction.
type Header struct {
	// NumSequences is the number of sequences in the container.
	NumSequences uint32
	// NumBases is the total length of all sequences, including gaps.
	NumBases uint64
	// NumEncodedBlocks is the number of blocks of packed bases.
	NumEncodedBlocks uint32
	// NumGapBlocks is the number of gap blocks.
	NumGapBlocks uint32
	// NumBlocks is NumEncodedBlocks + NumGapBlocks.
	NumBlocks uint32
	// NamesLength is the size, in bytes, of all header lines.
	NamesLength uint32

	// IndexStart, BlockStart and NamesStart are the file offsets of
	// the sequence index, the block index and the header lines.
	IndexStart, BlockStart, NamesStart uint64

	// Checksum is the IEEE CRC-32 of the index, block, and names
	// sections.
	Checksum uint32
}

// DataSize returns the size in bytes of the packed base data.
func (h Header) DataSize() int64 { return int64(h.IndexStart) - headerSize }

// Size returns the total size in bytes of the container file.
func (h Header) Size() int64 { return int64(h.NamesStart) + int64(h.NamesLength) }

func (h Header) marshal(p []byte) {
	copy(p, magic[:])
	order.PutUint32(p[16:], h.NumSequences)
	order.PutUint32(p[20:], formatVersion)
	order.PutUint64(p[24:], h.NumBases)
	order.PutUint32(p[32:], h.NumEncodedBlocks)
	order.PutUint32(p[36:], h.NumGapBlocks)
	order.PutUint32(p[40:], h.NumBlocks)
	order.PutUint32(p[44:], h.NamesLength)
	order.PutUint64(p[48:], h.IndexStart)
	order.PutUint64(p[56:], h.BlockStart)
	order.PutUint64(p[64:], h.NamesStart)
	order.PutUint32(p[72:], h.Checksum)
	order.PutUint32(p[76:], 0)
}

func (h *Header) unmarshal(p []byte) error {
	if len(p) < headerSize {
		return errors.E(errors.Integrity, "seqstore: truncated header")
	}
	var m [16]byte
	copy(m[:], p)
	if m != magic {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: wrong magic %q", m[:]))
	}
	if v := order.Uint32(p[20:]); v != formatVersion {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: unsupported format version %d", v))
	}
	h.NumSequences = order.Uint32(p[16:])
	h.NumBases = order.Uint64(p[24:])
	h.NumEncodedBlocks = order.Uint32(p[32:])
	h.NumGapBlocks = order.Uint32(p[36:])
	h.NumBlocks = order.Uint32(p[40:])
	h.NamesLength = order.Uint32(p[44:])
	h.IndexStart = order.Uint64(p[48:])
	h.BlockStart = order.Uint64(p[56:])
	h.NamesStart = order.Uint64(p[64:])
	h.Checksum = order.Uint32(p[72:])
	return h.validate()
}

// validate checks the header's internal consistency.
func (h Header) validate() error {
	switch {
	case uint64(h.NumEncodedBlocks)+uint64(h.NumGapBlocks) != uint64(h.NumBlocks):
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: block count %d does not match %d encoded + %d gap blocks",
			h.NumBlocks, h.NumEncodedBlocks, h.NumGapBlocks))
	case h.IndexStart < headerSize:
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: index start %d within header", h.IndexStart))
	case h.BlockStart != h.IndexStart+uint64(h.NumSequences)*indexEntrySize:
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: block start %d does not follow index of %d sequences at %d",
			h.BlockStart, h.NumSequences, h.IndexStart))
	case h.NamesStart != h.BlockStart+uint64(h.NumBlocks)*blockSize:
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: names start %d does not follow %d blocks at %d",
			h.NamesStart, h.NumBlocks, h.BlockStart))
	case uint64(h.DataSize())*8 > MaxDataBits+1:
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: data section of %d bytes too large", h.DataSize()))
	}
	return nil
}

// indexEntry is the in-memory form of a sequence index record.
type indexEntry struct {
	nameOff, nameLen uint32
	dataOff          uint64
	length           uint32
	firstBlock       uint32
}

func (e indexEntry) marshal(p []byte) {
	order.PutUint32(p, e.nameOff)
	order.PutUint32(p[4:], e.nameLen)
	order.PutUint64(p[8:], e.dataOff)
	order.PutUint32(p[16:], e.length)
	order.PutUint32(p[20:], e.firstBlock)
}

func (e *indexEntry) unmarshal(p []byte) {
	e.nameOff = order.Uint32(p)
	e.nameLen = order.Uint32(p[4:])
	e.dataOff = order.Uint64(p[8:])
	e.length = order.Uint32(p[16:])
	e.firstBlock = order.Uint32(p[20:])
}

// A Block describes a run of a sequence: either packed bases stored
// in the data section, or a gap of non-ACGT symbols.
type Block struct {
	// Encoded is true for runs of packed bases and false for gaps.
	Encoded bool
	// Position is the offset of the run within its sequence.
	Position uint32
	// ID is the id of the sequence containing the run.
	ID uint32
	// Length is the number of bases in the run.
	Length uint32
	// Offset is the location of the packed bases in the data
	// section. It is zero for gaps.
	Offset bitfile.Offset
}

// End returns the position just past the end of the run.
func (b Block) End() uint64 { return uint64(b.Position) + uint64(b.Length) }

const (
	encodedFlag = 1 << 63
	lengthShift = 40
	lengthMask  = MaxBlockLength
	offsetMask  = MaxDataBits
)

// checkBlock reports whether a block's fields fit the on-disk
// layout. Positions and ids are bounded by their types.
func checkBlock(b Block) error {
	if b.Length > MaxBlockLength {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: block length %d exceeds maximum %d", b.Length, MaxBlockLength))
	}
	if b.Offset.Bits() > MaxDataBits {
		return errors.E(errors.Integrity, fmt.Sprintf("seqstore: block offset %d exceeds maximum %d", b.Offset.Bits(), uint64(MaxDataBits)))
	}
	return nil
}

func (b Block) marshal(p []byte) {
	w0 := uint64(b.Length)&lengthMask<<lengthShift | b.Offset.Bits()&offsetMask
	if b.Encoded {
		w0 |= encodedFlag
	}
	order.PutUint64(p, w0)
	order.PutUint64(p[8:], uint64(b.Position)<<32|uint64(b.ID))
}

func (b *Block) unmarshal(p []byte) {
	w0, w1 := order.Uint64(p), order.Uint64(p[8:])
	b.Encoded = w0&encodedFlag != 0
	b.Length = uint32(w0 >> lengthShift & lengthMask)
	b.Offset = bitfile.Offset(w0 & offsetMask)
	b.Position = uint32(w1 >> 32)
	b.ID = uint32(w1)
}
