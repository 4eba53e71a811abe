// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fmarletaz/canu/seqio"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

func commandUsage(flags *flag.FlagSet, usage string) func() {
	return func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
		os.Exit(2)
	}
}

func infoCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore info", flag.ExitOnError)
	flags.Usage = commandUsage(flags, `usage: seqstore info container...

Command info prints the header of each container.

The flags are:
`)
	parseFlags(ctx, flags, args)
	if flags.NArg() == 0 {
		flags.Usage()
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 1, ' ', 0)
	for _, path := range flags.Args() {
		store := openStore(ctx, path)
		h := store.Header()
		fmt.Fprintf(tw, "%s:\n", path)
		fmt.Fprintf(tw, "\tsequences:\t%d\n", h.NumSequences)
		fmt.Fprintf(tw, "\tbases:\t%d\n", h.NumBases)
		fmt.Fprintf(tw, "\tblocks:\t%d (%d encoded, %d gap)\n", h.NumBlocks, h.NumEncodedBlocks, h.NumGapBlocks)
		fmt.Fprintf(tw, "\tdata:\t%s\n", data.Size(h.DataSize()))
		fmt.Fprintf(tw, "\tnames:\t%s\n", data.Size(h.NamesLength))
		fmt.Fprintf(tw, "\tsize:\t%s\n", data.Size(h.Size()))
		fmt.Fprintf(tw, "\tchecksum:\t%08x\n", h.Checksum)
		must.Nil(store.Close(ctx))
	}
	must.Nil(tw.Flush())
}

func findCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore find", flag.ExitOnError)
	flags.Usage = commandUsage(flags, `usage: seqstore find container name...

Command find prints the id, length, and header of the first sequence
matching each name. A name matches a sequence's full header, or the
first word of its header.

The flags are:
`)
	parseFlags(ctx, flags, args)
	if flags.NArg() < 2 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	var failed bool
	for _, name := range flags.Args()[1:] {
		id, err := store.Find(name)
		if err != nil {
			log.Error.Printf("%v", err)
			failed = true
			continue
		}
		n, err := store.Length(id)
		must.Nil(err)
		header, err := store.Name(id)
		must.Nil(err)
		fmt.Printf("%d\t%d\t%s\n", id, n, header)
	}
	if failed {
		os.Exit(1)
	}
}

// parseRange parses a range of the form "begin:end". Either bound
// may be omitted.
func parseRange(s string, length uint64) (begin, end uint64, err error) {
	end = length
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range %q", s)
	}
	if parts[0] != "" {
		if begin, err = strconv.ParseUint(parts[0], 10, 64); err != nil {
			return 0, 0, err
		}
	}
	if parts[1] != "" {
		if end, err = strconv.ParseUint(parts[1], 10, 64); err != nil {
			return 0, 0, err
		}
	}
	return begin, end, nil
}

func fetchCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore fetch", flag.ExitOnError)
	rangeFlag := flags.String("range", "", "fetch only bases begin:end of each sequence")
	flags.Usage = commandUsage(flags, `usage: seqstore fetch [-range begin:end] container sequence...

Command fetch prints the given sequences in FASTA format. Sequences
are named by header, by the first word of their header, or by id.
With -range, only the given range of bases of each sequence is
printed; the range is appended to the sequence's name.

The flags are:
`)
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() < 2 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	out := bufio.NewWriter(os.Stdout)
	w := seqio.NewFASTAWriter(out, conf.LineWidth)
	for _, arg := range flags.Args()[1:] {
		id := resolve(store, arg)
		rec := seqio.Record{}
		if *rangeFlag == "" {
			var err error
			rec.Header, rec.Bases, err = store.Fetch(id)
			must.Nil(err)
		} else {
			n, err := store.Length(id)
			must.Nil(err)
			begin, end, err := parseRange(*rangeFlag, n)
			if err != nil {
				log.Fatal(err)
			}
			header, err := store.Name(id)
			must.Nil(err)
			if rec.Bases, err = store.FetchRange(id, begin, end); err != nil {
				log.Fatal(err)
			}
			name := seqio.FirstWord(header)
			rec.Header = fmt.Sprintf("%s:%d-%d%s", name, begin, end, header[len(name):])
		}
		must.Nil(w.Write(rec))
	}
	must.Nil(out.Flush())
}

func dumpCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore dump", flag.ExitOnError)
	flags.Usage = commandUsage(flags, `usage: seqstore dump container

Command dump prints every sequence of a container in FASTA format.

The flags are:
`)
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	out := bufio.NewWriter(os.Stdout)
	w := seqio.NewFASTAWriter(out, conf.LineWidth)
	for id := uint32(0); id < store.NumSequences(); id++ {
		header, bases, err := store.Fetch(id)
		if err != nil {
			log.Fatal(err)
		}
		must.Nil(w.Write(seqio.Record{Header: header, Bases: bases}))
	}
	must.Nil(out.Flush())
	log.Debug.Printf("%s: decoded %d bases, %d gap bases", store.Path(),
		seqstore.BasesDecoded.Value(store.Stats()), seqstore.GapBases.Value(store.Stats()))
}
