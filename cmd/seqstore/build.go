// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"compress/gzip"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmarletaz/canu/seqio"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

func buildCmdUsage(flags *flag.FlagSet) {
	fmt.Fprint(os.Stderr, `usage: seqstore build [flags] output input...

Command build builds a container at output from the sequences in the
given FASTA or FASTQ files, in order. Inputs named *.fastq or *.fq
are parsed as FASTQ, and all others as FASTA. Inputs ending in ".gz"
are decompressed; an input of "-" is read from standard input as
FASTA.

The flags are:
`)
	flags.PrintDefaults()
	os.Exit(2)
}

func buildCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore build", flag.ExitOnError)
	flags.Usage = func() { buildCmdUsage(flags) }
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() < 2 {
		flags.Usage()
	}
	output, inputs := flags.Arg(0), flags.Args()[1:]

	var (
		sources = make([]seqio.Source, len(inputs))
		closers []func() error
	)
	for i, path := range inputs {
		r, closeInput, err := openInput(ctx, path)
		if err != nil {
			log.Fatal(err)
		}
		closers = append(closers, closeInput)
		if isFASTQ(path) {
			sources[i] = seqio.NewFASTQSource(r)
		} else {
			sources[i] = seqio.NewFASTASource(r)
		}
	}
	hdr, err := seqstore.Construct(ctx, output, seqio.MultiSource(sources...), conf.ConstructOptions()...)
	for _, closeInput := range closers {
		if closeErr := closeInput(); closeErr != nil {
			log.Error.Printf("closing input: %v", closeErr)
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%s: %d sequences, %d bases, %s", output, hdr.NumSequences, hdr.NumBases, data.Size(hdr.Size()))
}

func isFASTQ(path string) bool {
	path = strings.TrimSuffix(path, ".gz")
	return strings.HasSuffix(path, ".fastq") || strings.HasSuffix(path, ".fq")
}

// openInput opens the sequence file at path, decompressing it if its
// name ends in ".gz".
func openInput(ctx context.Context, path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	r := f.Reader(ctx)
	if !strings.HasSuffix(path, ".gz") {
		return r, func() error { return f.Close(ctx) }, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		if closeErr := f.Close(ctx); closeErr != nil {
			log.Error.Printf("%s: %v", path, closeErr)
		}
		return nil, nil, err
	}
	return gz, func() error {
		err := gz.Close()
		if closeErr := f.Close(ctx); err == nil {
			err = closeErr
		}
		return err
	}, nil
}
