// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command seqstore builds and queries sequence containers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/fmarletaz/canu/seqconf"
	"github.com/fmarletaz/canu/seqstore"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func usage() {
	fmt.Fprintf(os.Stderr, `Seqstore is a tool for building and querying sequence containers.

Usage:

	seqstore <command> [arguments]

The commands are:

	build       build a container from FASTA or FASTQ files
	info        print a container's header
	find        print the ids of named sequences
	fetch       print sequences, or ranges of sequences, as FASTA
	dump        print all sequences as FASTA
	stream      print the concatenated stream of a container's sequences
	segments    print a partition of a container's sequences
	count       count the bases of a container in parallel
	config      print the effective configuration as TOML

Paths may be local or s3:// URLs. Each command accepts -config, naming
a TOML configuration file whose settings are overridden by flags.
`)
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("seqstore: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	ctx := context.Background()
	switch cmd {
	default:
		fmt.Fprintln(os.Stderr, "unknown command", cmd)
		flag.Usage()
	case "build":
		buildCmd(ctx, args)
	case "info":
		infoCmd(ctx, args)
	case "find":
		findCmd(ctx, args)
	case "fetch":
		fetchCmd(ctx, args)
	case "dump":
		dumpCmd(ctx, args)
	case "stream":
		streamCmd(ctx, args)
	case "segments":
		segmentsCmd(ctx, args)
	case "count":
		countCmd(ctx, args)
	case "config":
		configCmd(ctx, args)
	}
}

// parseFlags registers the configuration flags in flags, parses args,
// and returns the resulting configuration. Settings not given as
// flags are taken from the file named by -config, if any.
func parseFlags(ctx context.Context, flags *flag.FlagSet, args []string) seqconf.Config {
	conf := seqconf.Default()
	conf.Flags(flags)
	configPath := flags.String("config", "", "TOML configuration file")
	must.Nil(flags.Parse(args))
	if *configPath != "" {
		fileConf, err := loadConfig(ctx, *configPath)
		if err != nil {
			log.Fatal(err)
		}
		conf.FlagMerge(flags, fileConf)
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}
	return conf
}

func loadConfig(ctx context.Context, path string) (conf seqconf.Config, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return conf, err
	}
	defer func() {
		if closeErr := f.Close(ctx); err == nil {
			err = closeErr
		}
	}()
	return seqconf.Load(f.Reader(ctx))
}

func openStore(ctx context.Context, path string) *seqstore.Store {
	store, err := seqstore.Open(ctx, path)
	if err != nil {
		log.Fatal(err)
	}
	return store
}

// resolve returns the id of the sequence named by arg: either a
// sequence name or, failing that, a numeric id.
func resolve(store *seqstore.Store, arg string) uint32 {
	id, err := store.Find(arg)
	if err == nil {
		return id
	}
	if !errors.Is(errors.NotExist, err) {
		log.Fatal(err)
	}
	n, parseErr := strconv.ParseUint(arg, 10, 32)
	if parseErr != nil {
		log.Fatal(err)
	}
	if uint32(n) >= store.NumSequences() {
		log.Fatalf("%s: no sequence %d", store.Path(), n)
	}
	return uint32(n)
}

func configCmd(ctx context.Context, args []string) {
	flags := flag.NewFlagSet("seqstore config", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: seqstore config [flags]")
		flags.PrintDefaults()
		os.Exit(2)
	}
	conf := parseFlags(ctx, flags, args)
	must.Nil(conf.Write(os.Stdout))
}
