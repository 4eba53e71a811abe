// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package seqconf defines the configuration of the seqstore tool.
// Configurations are stored as TOML; values given explicitly on the
// command line override those from a file.
package seqconf

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fmarletaz/canu/internal/defaultsize"
	"github.com/fmarletaz/canu/seqio"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/fmarletaz/canu/seqstream"
	"github.com/grailbio/base/errors"
)

// Config holds the settings shared by the tool's commands.
type Config struct {
	// Separator is the symbol inserted between sequences of a stream.
	Separator string `toml:"separator"`
	// SeparatorLength is the number of separator symbols between
	// sequences.
	SeparatorLength int `toml:"separator_length"`
	// BufferSize is the number of symbols buffered by streams.
	BufferSize int `toml:"buffer_size"`
	// ChunkSize is the number of bases loaded per chunk.
	ChunkSize int `toml:"chunk_size"`
	// Segments is the number of id ranges that sequences are split
	// into for parallel processing.
	Segments int `toml:"segments"`
	// LineWidth is the width of FASTA sequence lines.
	LineWidth int `toml:"line_width"`
	// TempDir is the local directory used while building containers.
	TempDir string `toml:"temp_dir"`
	// Verbose turns on progress logging.
	Verbose bool `toml:"verbose"`
}

// Default returns the default configuration. Sizes are taken from
// package defaultsize, and so reflect its flags once they are
// parsed.
func Default() Config {
	return Config{
		Separator:       string(seqstream.DefaultSeparator),
		SeparatorLength: seqstream.DefaultSeparatorLength,
		BufferSize:      defaultsize.StreamBuffer,
		ChunkSize:       defaultsize.LoaderChunk,
		Segments:        1,
		LineWidth:       seqio.DefaultLineWidth,
	}
}

// Load reads a configuration from r. Settings missing from r keep
// their default values; unknown settings are an error.
func Load(r io.Reader) (Config, error) {
	conf := Default()
	md, err := toml.DecodeReader(r, &conf)
	if err != nil {
		return Config{}, errors.E(errors.Invalid, "seqconf: parsing configuration", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return Config{}, errors.E(errors.Invalid,
			fmt.Sprintf("seqconf: unknown settings: %s", strings.Join(keys, ", ")))
	}
	return conf, conf.Validate()
}

// Write writes the configuration to w as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks that the configuration's values are usable.
func (c Config) Validate() error {
	switch {
	case len(c.Separator) != 1:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: separator %q is not a single symbol", c.Separator))
	case c.SeparatorLength < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: negative separator length %d", c.SeparatorLength))
	case c.BufferSize < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: invalid buffer size %d", c.BufferSize))
	case c.ChunkSize < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: invalid chunk size %d", c.ChunkSize))
	case c.Segments < 1:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: invalid segment count %d", c.Segments))
	case c.LineWidth < 0:
		return errors.E(errors.Invalid, fmt.Sprintf("seqconf: negative line width %d", c.LineWidth))
	}
	return nil
}

// Flags registers flags for each setting in fs, bound to c.
func (c *Config) Flags(fs *flag.FlagSet) {
	fs.StringVar(&c.Separator, "separator", c.Separator, "symbol inserted between sequences")
	fs.IntVar(&c.SeparatorLength, "separator-length", c.SeparatorLength, "number of separator symbols between sequences")
	fs.IntVar(&c.BufferSize, "buffer", c.BufferSize, "number of symbols buffered by streams")
	fs.IntVar(&c.ChunkSize, "chunk", c.ChunkSize, "number of bases loaded per chunk")
	fs.IntVar(&c.Segments, "segments", c.Segments, "number of id ranges processed in parallel")
	fs.IntVar(&c.LineWidth, "line-width", c.LineWidth, "width of FASTA sequence lines")
	fs.StringVar(&c.TempDir, "tmpdir", c.TempDir, "local directory for temporary files")
	fs.BoolVar(&c.Verbose, "verbose", c.Verbose, "log progress")
}

// FlagMerge replaces each setting of c that was not set explicitly
// in fs with the corresponding setting from file. The flags must
// have been registered by Flags and parsed.
func (c *Config) FlagMerge(fs *flag.FlagSet, file Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["separator"] {
		c.Separator = file.Separator
	}
	if !set["separator-length"] {
		c.SeparatorLength = file.SeparatorLength
	}
	if !set["buffer"] {
		c.BufferSize = file.BufferSize
	}
	if !set["chunk"] {
		c.ChunkSize = file.ChunkSize
	}
	if !set["segments"] {
		c.Segments = file.Segments
	}
	if !set["line-width"] {
		c.LineWidth = file.LineWidth
	}
	if !set["tmpdir"] {
		c.TempDir = file.TempDir
	}
	if !set["verbose"] {
		c.Verbose = file.Verbose
	}
}

// StreamOptions returns the stream options implied by the
// configuration, which must be valid.
func (c Config) StreamOptions() []seqstream.Option {
	return []seqstream.Option{
		seqstream.Separator(c.Separator[0], uint64(c.SeparatorLength)),
		seqstream.BufferSize(c.BufferSize),
	}
}

// ConstructOptions returns the container construction options
// implied by the configuration.
func (c Config) ConstructOptions() []seqstore.Option {
	return []seqstore.Option{
		seqstore.TempDir(c.TempDir),
		seqstore.Verbose(c.Verbose),
	}
}
