// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/fmarletaz/canu/bitfile"
	"github.com/fmarletaz/canu/metrics"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/sync/once"
)

// Counters maintained in each store's Stats scope.
var (
	// BasesDecoded counts packed bases read from the data section.
	BasesDecoded = metrics.NewCounter("bases_decoded")
	// GapBases counts 'N' bases produced for gap blocks.
	GapBases = metrics.NewCounter("gap_bases")
	// BlocksVisited counts the blocks touched by fetches.
	BlocksVisited = metrics.NewCounter("blocks_visited")
)

// decoded maps packed symbols to bases.
var decoded = [4]byte{'A', 'C', 'G', 'T'}

// Store is an open, read-only container. Its index, blocks and
// header text are held in memory; bases are read from the
// underlying file on demand. A Store is safe for concurrent use.
type Store struct {
	path   string
	file   file.File
	header Header
	index  []indexEntry
	blocks []Block
	names  []byte
	data   *bitfile.Reader

	nameOnce  once.Task
	nameTable map[uint32][]uint32

	stats metrics.Scope
}

// Open opens and validates the container at path. The header,
// checksum and block chains of every sequence are verified; errors
// in any of them are returned with kind errors.Integrity.
func Open(ctx context.Context, path string) (*Store, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("seqstore: open %s", path))
	}
	s, err := newStore(ctx, path, f)
	if err != nil {
		if closeErr := f.Close(ctx); closeErr != nil {
			err = errors.E(err, fmt.Sprintf("seqstore: close %s: %v", path, closeErr))
		}
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, path string, f file.File) (*Store, error) {
	info, err := f.Stat(ctx)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("seqstore: stat %s", path))
	}
	s := &Store{path: path, file: f}
	r := bitfile.NewReaderAt(f.Reader(ctx))
	var hbuf [headerSize]byte
	if info.Size() < headerSize {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("seqstore: %s: truncated header (%d bytes)", path, info.Size()))
	}
	if err := readAt(r, hbuf[:], 0); err != nil {
		return nil, errors.E(err, fmt.Sprintf("seqstore: read %s", path))
	}
	if err := s.header.unmarshal(hbuf[:]); err != nil {
		return nil, errors.E(err, path)
	}
	if got, want := info.Size(), s.header.Size(); got != want {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("seqstore: %s: file size %d, expected %d", path, got, want))
	}
	meta := make([]byte, s.header.Size()-int64(s.header.IndexStart))
	if err := readAt(r, meta, int64(s.header.IndexStart)); err != nil {
		return nil, errors.E(err, fmt.Sprintf("seqstore: read %s", path))
	}
	if got, want := crc32.ChecksumIEEE(meta), s.header.Checksum; got != want {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("seqstore: %s: checksum %08x, expected %08x", path, got, want))
	}
	s.index = make([]indexEntry, s.header.NumSequences)
	for i := range s.index {
		s.index[i].unmarshal(meta)
		meta = meta[indexEntrySize:]
	}
	s.blocks = make([]Block, s.header.NumBlocks)
	for i := range s.blocks {
		s.blocks[i].unmarshal(meta)
		meta = meta[blockSize:]
	}
	s.names = meta
	if err := s.validate(); err != nil {
		return nil, errors.E(err, path)
	}
	s.data = bitfile.NewReader(r, headerSize, s.header.DataSize(), bitsPerBase)
	return s, nil
}

// readAt reads len(p) bytes at off, accepting io.EOF for reads that
// end exactly at the end of the file.
func readAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return err
}

// validate checks that the index, blocks and header text describe a
// well-formed container: each sequence's blocks are contiguous,
// start at position zero and cover exactly its length, and packed
// runs lie within the data section.
func (s *Store) validate() error {
	corrupt := func(format string, args ...interface{}) error {
		return errors.E(errors.Integrity, "seqstore: "+fmt.Sprintf(format, args...))
	}
	var (
		next, encoded, gaps uint32
		bases               uint64
		dataBits            = uint64(s.header.DataSize()) * 8
	)
	for id, e := range s.index {
		if uint64(e.nameOff)+uint64(e.nameLen) > uint64(len(s.names)) {
			return corrupt("sequence %d: header text [%d, %d) outside names section of %d bytes",
				id, e.nameOff, uint64(e.nameOff)+uint64(e.nameLen), len(s.names))
		}
		if e.firstBlock != next {
			return corrupt("sequence %d: first block %d, expected %d", id, e.firstBlock, next)
		}
		var pos uint64
		for pos < uint64(e.length) {
			if next >= s.header.NumBlocks {
				return corrupt("sequence %d: block chain ends at %d of %d bases", id, pos, e.length)
			}
			b := s.blocks[next]
			switch {
			case b.ID != uint32(id):
				return corrupt("sequence %d: block %d belongs to sequence %d", id, next, b.ID)
			case uint64(b.Position) != pos:
				return corrupt("sequence %d: block %d at position %d, expected %d", id, next, b.Position, pos)
			case b.Length == 0:
				return corrupt("sequence %d: block %d is empty", id, next)
			case b.End() > uint64(e.length):
				return corrupt("sequence %d: block %d ends at %d, past length %d", id, next, b.End(), e.length)
			}
			if b.Encoded {
				if end := b.Offset.Bits() + uint64(b.Length)*bitsPerBase; end > dataBits {
					return corrupt("sequence %d: block %d ends at bit %d, past data of %d bits", id, next, end, dataBits)
				}
				encoded++
			} else {
				gaps++
			}
			pos = b.End()
			next++
		}
		bases += uint64(e.length)
	}
	switch {
	case next != s.header.NumBlocks:
		return corrupt("%d blocks not owned by any sequence", s.header.NumBlocks-next)
	case encoded != s.header.NumEncodedBlocks || gaps != s.header.NumGapBlocks:
		return corrupt("found %d encoded and %d gap blocks, expected %d and %d",
			encoded, gaps, s.header.NumEncodedBlocks, s.header.NumGapBlocks)
	case bases != s.header.NumBases:
		return corrupt("found %d bases, expected %d", bases, s.header.NumBases)
	}
	return nil
}

// Close releases the store's file. The store may not be used after
// Close.
func (s *Store) Close(ctx context.Context) error {
	return s.file.Close(ctx)
}

// Path returns the path from which the store was opened.
func (s *Store) Path() string { return s.path }

// Header returns the container's header.
func (s *Store) Header() Header { return s.header }

// NumSequences returns the number of sequences in the container.
func (s *Store) NumSequences() uint32 { return s.header.NumSequences }

// Stats returns the scope in which the store's decoding counters
// are kept.
func (s *Store) Stats() *metrics.Scope { return &s.stats }

func (s *Store) entry(id uint32) (indexEntry, error) {
	if id >= s.header.NumSequences {
		return indexEntry{}, errors.E(errors.NotExist,
			fmt.Sprintf("seqstore: sequence %d out of range [0, %d)", id, s.header.NumSequences))
	}
	return s.index[id], nil
}

// Length returns the number of bases in sequence id.
func (s *Store) Length(id uint32) (uint64, error) {
	e, err := s.entry(id)
	return uint64(e.length), err
}

// Name returns the full header text of sequence id.
func (s *Store) Name(id uint32) (string, error) {
	e, err := s.entry(id)
	if err != nil {
		return "", err
	}
	return s.name(e), nil
}

func (s *Store) name(e indexEntry) string {
	return string(s.names[e.nameOff : e.nameOff+e.nameLen])
}

// chain returns the blocks of sequence id, which must be valid.
func (s *Store) chain(id uint32) []Block {
	end := s.header.NumBlocks
	if id+1 < s.header.NumSequences {
		end = s.index[id+1].firstBlock
	}
	return s.blocks[s.index[id].firstBlock:end]
}

// Blocks returns a copy of the blocks describing sequence id, in
// order of position.
func (s *Store) Blocks(id uint32) ([]Block, error) {
	if _, err := s.entry(id); err != nil {
		return nil, err
	}
	return append([]Block(nil), s.chain(id)...), nil
}

// Fetch returns the header text and bases of sequence id.
func (s *Store) Fetch(id uint32) (string, []byte, error) {
	e, err := s.entry(id)
	if err != nil {
		return "", nil, err
	}
	bases := make([]byte, e.length)
	if err := s.read(id, 0, bases); err != nil {
		return "", nil, err
	}
	return s.name(e), bases, nil
}

// FetchRange returns bases [begin, end) of sequence id. Empty ranges
// are permitted; ranges extending past the sequence, or with
// begin > end, are errors.Invalid.
func (s *Store) FetchRange(id uint32, begin, end uint64) ([]byte, error) {
	if begin > end {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("seqstore: invalid range [%d, %d)", begin, end))
	}
	bases := make([]byte, end-begin)
	if err := s.ReadBases(id, begin, bases); err != nil {
		return nil, err
	}
	return bases, nil
}

// ReadBases reads len(dst) bases of sequence id, starting at
// position begin, into dst.
func (s *Store) ReadBases(id uint32, begin uint64, dst []byte) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	if end := begin + uint64(len(dst)); end > uint64(e.length) || end < begin {
		return errors.E(errors.Invalid, fmt.Sprintf("seqstore: range [%d, %d) exceeds sequence %d of length %d",
			begin, end, id, e.length))
	}
	return s.read(id, begin, dst)
}

// read decodes bases from the block chain of id. The range must be
// valid. Gap blocks never touch the data section.
func (s *Store) read(id uint32, begin uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	chain := s.chain(id)
	i := sort.Search(len(chain), func(i int) bool { return chain[i].End() > begin })
	var nblock, nbase, ngap int
	for len(dst) > 0 {
		b := chain[i]
		skip := begin - uint64(b.Position)
		n := uint64(b.Length) - skip
		if n > uint64(len(dst)) {
			n = uint64(len(dst))
		}
		if b.Encoded {
			if err := s.data.Read(b.Offset, skip, dst[:n]); err != nil {
				return errors.E(err, fmt.Sprintf("seqstore: %s: sequence %d", s.path, id))
			}
			for j, sym := range dst[:n] {
				dst[j] = decoded[sym]
			}
			nbase += int(n)
		} else {
			for j := range dst[:n] {
				dst[j] = 'N'
			}
			ngap += int(n)
		}
		nblock++
		begin += n
		dst = dst[n:]
		i++
	}
	BlocksVisited.Incr(&s.stats, nblock)
	BasesDecoded.Incr(&s.stats, nbase)
	GapBases.Incr(&s.stats, ngap)
	return nil
}
