// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstore

import (
	"fmt"

	"github.com/fmarletaz/canu/seqio"
	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
)

func hashName(name string) uint32 {
	return murmur3.Sum32([]byte(name))
}

// Find returns the id of the first sequence whose header text, or
// whose first whitespace-delimited word of header text, equals name.
// Find returns an errors.NotExist error if no sequence matches.
//
// The first call to Find builds a hash index of all names.
func (s *Store) Find(name string) (uint32, error) {
	if err := s.nameOnce.Do(func() error {
		s.buildNameTable()
		return nil
	}); err != nil {
		return 0, err
	}
	for _, id := range s.nameTable[hashName(name)] {
		header := s.name(s.index[id])
		if header == name || seqio.FirstWord(header) == name {
			return id, nil
		}
	}
	return 0, errors.E(errors.NotExist, fmt.Sprintf("seqstore: %s: no sequence named %q", s.path, name))
}

// buildNameTable indexes each sequence under the hashes of its
// header text and of its first word. Buckets are in id order.
func (s *Store) buildNameTable() {
	s.nameTable = make(map[uint32][]uint32)
	for id, e := range s.index {
		var (
			header = s.name(e)
			word   = seqio.FirstWord(header)
			h      = hashName(header)
		)
		s.nameTable[h] = append(s.nameTable[h], uint32(id))
		if word != header {
			if hw := hashName(word); hw != h {
				s.nameTable[hw] = append(s.nameTable[hw], uint32(id))
			}
		}
	}
}
