// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"text/tabwriter"

	"github.com/fmarletaz/canu/metrics"
	"github.com/fmarletaz/canu/seqio"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/fmarletaz/canu/seqstream"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/traverse"
)

func streamCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore stream", flag.ExitOnError)
	var (
		rangeFlag = flags.String("range", "", "print only stream positions begin:end")
		bases     = flags.Bool("bases", false, "interpret -range in base coordinates, excluding separators")
	)
	flags.Usage = commandUsage(flags, `usage: seqstore stream [-range begin:end] [-bases] container

Command stream prints the sequences of a container as a single
stream, each pair of sequences separated by the configured
separator. Bases other than A, C, G, and T are printed as N.

The flags are:
`)
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	s, err := seqstream.New(store, conf.StreamOptions()...)
	must.Nil(err)
	if *rangeFlag != "" {
		length := s.Length()
		if *bases {
			length = s.NumBases()
		}
		begin, end, err := parseRange(*rangeFlag, length)
		if err != nil {
			log.Fatal(err)
		}
		if *bases {
			err = s.SetBaseRange(begin, end)
		} else {
			err = s.SetRange(begin, end)
		}
		if err != nil {
			log.Fatal(err)
		}
	}
	out := bufio.NewWriter(os.Stdout)
	if _, err := io.Copy(out, s); err != nil {
		log.Fatal(err)
	}
	must.Nil(out.WriteByte('\n'))
	must.Nil(out.Flush())
}

func segmentsCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore segments", flag.ExitOnError)
	flags.Usage = commandUsage(flags, `usage: seqstore segments [-segments n] container

Command segments prints the partition of a container's sequences
into contiguous id ranges of roughly equal base count.

The flags are:
`)
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	segments, err := store.Segments(conf.Segments)
	must.Nil(err)
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 1, ' ', 0)
	fmt.Fprintln(tw, "segment\tids\tsequences\tbases")
	for i, seg := range segments {
		var n uint64
		for id := seg.Begin; id < seg.End; id++ {
			l, err := store.Length(id)
			must.Nil(err)
			n += l
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i, seg, seg.Len(), n)
	}
	must.Nil(tw.Flush())
}

// composition tallies bases by symbol.
type composition struct {
	sequences uint64
	counts    [256]uint64
}

func (c *composition) add(p []byte) {
	for _, b := range p {
		c.counts[b]++
	}
}

func (c *composition) merge(d *composition) {
	c.sequences += d.sequences
	for i := range c.counts {
		c.counts[i] += d.counts[i]
	}
}

func countCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore count", flag.ExitOnError)
	var (
		useStream  = flags.Bool("stream", false, "count through sequence streams rather than base loaders")
		parallel   = flags.Int("parallel", runtime.NumCPU(), "maximum number of segments counted concurrently")
		printStats = flags.Bool("stats", false, "also print decoding and streaming counters")
	)
	flags.Usage = commandUsage(flags, `usage: seqstore count [-segments n] [-stream] [-stats] container

Command count counts the bases of a container, by symbol. The
container's sequences are partitioned into segments, which are
counted in parallel. With -stream, bases are read through
sequence streams; otherwise they are loaded in chunks. With -stats,
the counters of the container and its streams follow the counts.

The flags are:
`)
	conf := parseFlags(ctx, flags, args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	store := openStore(ctx, flags.Arg(0))
	defer store.Close(ctx)
	segments, err := store.Segments(conf.Segments)
	must.Nil(err)

	var (
		mu    sync.Mutex
		total composition
		stats metrics.Scope
	)
	err = traverse.Limit(*parallel).Each(len(segments), func(i int) error {
		var (
			c   composition
			err error
		)
		if *useStream {
			err = countStream(store, segments[i], conf.StreamOptions(), conf.ChunkSize, &c, &stats)
		} else {
			err = countLoader(store, segments[i], conf.ChunkSize, &c)
		}
		if err != nil {
			return err
		}
		log.Debug.Printf("segment %d %s: %d sequences", i, segments[i], c.sequences)
		mu.Lock()
		total.merge(&c)
		mu.Unlock()
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "sequences\t%d\n", total.sequences)
	for _, b := range []byte("ACGTN") {
		fmt.Fprintf(tw, "%c\t%d\n", b, total.counts[b])
	}
	must.Nil(tw.Flush())
	stats.Merge(store.Stats())
	if *printStats {
		for _, sample := range stats.Snapshot() {
			fmt.Fprintf(tw, "%s\t%d\n", sample.Name, sample.Value)
		}
		must.Nil(tw.Flush())
	}
	log.Debug.Printf("%s: %s", store.Path(), &stats)
}

// countLoader tallies the bases of a segment, loading them in chunks.
func countLoader(store *seqstore.Store, seg seqstore.IDRange, chunk int, c *composition) error {
	l, err := store.Loader(seg)
	if err != nil {
		return err
	}
	var loader seqio.BaseLoader = l
	buf := make([]byte, chunk)
	for {
		n, eos, err := loader.LoadBases(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		c.add(buf[:n])
		if eos {
			c.sequences++
		}
	}
}

// countStream tallies the bases of a segment by reading it as a
// stream. Separator symbols are discounted using the stream's
// counters, which are then merged into stats.
func countStream(store *seqstore.Store, seg seqstore.IDRange, opts []seqstream.Option, chunk int, c *composition, stats *metrics.Scope) error {
	s, err := seqstream.NewRange(store, seg, opts...)
	if err != nil {
		return err
	}
	buf := make([]byte, chunk)
	for {
		n, err := s.Read(buf)
		c.add(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	sep, _ := s.Separator()
	c.counts[sep] -= seqstream.SeparatorsStreamed.Value(s.Stats())
	c.sequences = uint64(s.NumSequences())
	stats.Merge(s.Stats())
	return nil
}
