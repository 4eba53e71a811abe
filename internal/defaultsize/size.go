// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package defaultsize holds default buffer sizes, configurable by
// flag, shared by the sequence store and stream packages.
package defaultsize

import "flag"

var (
	// StreamBuffer is the default number of symbols buffered by a
	// sequence stream between refills.
	StreamBuffer int
	// LoaderChunk is the default number of bases requested per chunk
	// by bulk base loaders.
	LoaderChunk int
)

func init() {
	flag.IntVar(&StreamBuffer, "seqstream-default-buffer-bases", 1<<16,
		"default number of symbols buffered by a sequence stream")
	flag.IntVar(&LoaderChunk, "seqstore-default-chunk-bases", 1<<20,
		"default number of bases loaded per chunk")
}
