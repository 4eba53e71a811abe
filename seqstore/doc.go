// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package seqstore implements a compact, random-access container for
	collections of DNA sequences. A container is written once, by
	Construct, from a seqio.Source; it is then opened read-only by Open
	and queried by sequence id, by name, or by base range without
	decoding the rest of the file.

	Bases A, C, G and T (in either case) are packed two bits each;
	runs of any other symbol are stored only as their length and are
	decoded as 'N'. Each sequence is described by a chain of blocks,
	each block covering a maximal run of packed bases or of gap
	symbols.

	A container is a single file. All integers are little-endian.

		container := header data index blocks names
		header :=
			magic:        uint8[16]   // "canu.seqStore\x00v1"
			nseq:         uint32      // number of sequences
			version:      uint32      // format version (1)
			nbase:        uint64      // total number of bases, including gaps
			nacgtBlock:   uint32      // number of packed-base blocks
			ngapBlock:    uint32      // number of gap blocks
			nblock:       uint32      // nacgtBlock + ngapBlock
			namesLen:     uint32      // size of the names section
			indexStart:   uint64      // file offset of index
			blockStart:   uint64      // file offset of blocks
			namesStart:   uint64      // file offset of names
			crc32:        uint32      // IEEE crc32 of index, blocks, and names
			reserved:     uint32
		data := uint8[indexStart-80]  // 2-bit packed bases, MSB first
		index := indexEntry[nseq]
		indexEntry :=
			nameOff:      uint32      // offset of the header line in names
			nameLen:      uint32      // length of the header line
			dataOff:      uint64      // bit offset of the first packed run
			length:       uint32      // number of bases
			firstBlock:   uint32      // id of the sequence's first block
		blocks := block[nblock]
		block :=
			word0:        uint64      // acgt:1 length:23 offset:40
			word1:        uint64      // position:32 sequence:32
		names := uint8[namesLen]      // concatenated header lines

	Blocks are stored in order of sequence id and position. Within a
	sequence, blocks are contiguous: the first starts at position 0,
	each begins where the previous ends, and the last ends at the
	sequence's length. Block offsets are bit offsets into the data
	section; they are zero for gap blocks.

	Errors returned by this package carry the kinds of
	github.com/grailbio/base/errors: corrupt or invalid containers
	(and values exceeding the format's limits at construction) have
	kind errors.Integrity; unknown names and out-of-range ids have kind
	errors.NotExist; out-of-range base coordinates have kind
	errors.Invalid. I/O errors are returned with their original kind.
*/
package seqstore
