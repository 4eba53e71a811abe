// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package seqstream

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmarletaz/canu/seqio"
	"github.com/fmarletaz/canu/seqstore"
	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"golang.org/x/sync/errgroup"
)

func openStore(t *testing.T, dir string, seqs ...string) *seqstore.Store {
	t.Helper()
	records := make([]seqio.Record, len(seqs))
	for i, seq := range seqs {
		records[i] = seqio.Record{Header: fmt.Sprintf("seq%d", i), Bases: []byte(seq)}
	}
	ctx := context.Background()
	path := filepath.Join(dir, fmt.Sprintf("%d.seqstore", rand.Int()))
	_, err := seqstore.Construct(ctx, path, seqio.Records(records...), seqstore.TempDir(dir))
	assert.NoError(t, err)
	s, err := seqstore.Open(ctx, path)
	assert.NoError(t, err)
	return s
}

func randomSeqs(n int, seed int64) []string {
	const alphabet = "ACGTACGTacgtNnRY"
	fz := fuzz.NewWithSeed(seed).NilChance(0).NumElements(0, 40)
	seqs := make([]string, n)
	for i := range seqs {
		var raw []byte
		fz.Fuzz(&raw)
		for j := range raw {
			raw[j] = alphabet[int(raw[j])%len(alphabet)]
		}
		seqs[i] = string(raw)
	}
	return seqs
}

// concat returns the expected contents of a stream. It normalizes
// bases without the stream's own cleaning so that tests check it.
func concat(seqs []string, sep byte, n int) string {
	norm := make([]string, len(seqs))
	for i, seq := range seqs {
		norm[i] = strings.Map(func(r rune) rune {
			switch r {
			case 'A', 'C', 'G', 'T':
				return r
			case 'a', 'c', 'g', 't':
				return r - 'a' + 'A'
			}
			return 'N'
		}, seq)
	}
	return strings.Join(norm, strings.Repeat(string(sep), n))
}

func getAll(s *Stream) string {
	var b strings.Builder
	for {
		c, ok := s.Get()
		if !ok {
			return b.String()
		}
		b.WriteByte(c)
	}
}

func TestExample(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	store := openStore(t, dir, "AAA", "C", "GGG")
	defer store.Close(context.Background())
	s, err := New(store, Separator('-', 3))
	assert.NoError(t, err)
	expect.EQ(t, s.Length(), uint64(13))
	expect.EQ(t, s.NumBases(), uint64(7))
	expect.EQ(t, getAll(s), "AAA---C---GGG")

	for _, c := range []struct {
		begin, end uint64
		want       string
	}{
		{0, 0, ""},
		{0, 1, "A"},
		{0, 3, "AAA"},
		{0, 4, "AAA-"},
		{0, 7, "AAA---C"},
		{5, 11, "-C---G"},
		{13, 13, ""},
	} {
		assert.NoError(t, s.SetRange(c.begin, c.end))
		expect.EQ(t, getAll(s), c.want)
		expect.True(t, s.EOF())
		_, ok := s.Get()
		expect.False(t, ok)
	}

	for _, c := range []struct {
		begin, end uint64
		want       string
	}{
		{0, 0, ""},
		{0, 1, "A"},
		{0, 3, "AAA"},
		{0, 4, "AAA---C"},
		{0, 5, "AAA---C---G"},
		{3, 4, "C"},
		{2, 7, "A---C---GGG"},
		{7, 7, ""},
	} {
		assert.NoError(t, s.SetBaseRange(c.begin, c.end))
		expect.EQ(t, getAll(s), c.want)
	}

	s.SetSeparator('N', 1)
	for _, c := range []struct {
		begin, end uint64
		want       string
	}{
		{0, 4, "AAANC"},
		{0, 5, "AAANCNG"},
	} {
		assert.NoError(t, s.SetBaseRange(c.begin, c.end))
		expect.EQ(t, getAll(s), c.want)
	}

	if err := s.SetRange(3, 2); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if err := s.SetRange(0, s.Length()+1); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if err := s.SetBaseRange(0, 8); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestLength(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	for i, n := range []int{0, 1, 2, 10, 50} {
		seqs := randomSeqs(n, int64(i))
		store := openStore(t, dir, seqs...)
		for _, sepLen := range []uint64{0, 1, 4} {
			s, err := New(store, Separator('.', sepLen))
			assert.NoError(t, err)
			var want uint64
			for _, seq := range seqs {
				want += uint64(len(seq))
			}
			if n > 0 {
				want += uint64(n-1) * sepLen
			}
			expect.EQ(t, s.Length(), want)
			expect.EQ(t, s.NumSequences(), n)
			expect.EQ(t, getAll(s), concat(seqs, '.', int(sepLen)))
		}
		assert.NoError(t, store.Close(context.Background()))
	}
}

func TestBuffering(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	seqs := randomSeqs(30, 1)
	seqs = append(seqs, "", "", "ACGT")
	store := openStore(t, dir, seqs...)
	defer store.Close(context.Background())

	r := rand.New(rand.NewSource(1))
	for _, size := range []int{1, 2, 3, 7, 64, 1 << 12} {
		for _, sepLen := range []uint64{0, 1, 3} {
			s, err := New(store, BufferSize(size), Separator('-', sepLen))
			assert.NoError(t, err)
			want := concat(seqs, '-', int(sepLen))
			assert.EQ(t, s.Length(), uint64(len(want)))
			for k := 0; k < 20; k++ {
				begin := uint64(r.Intn(len(want) + 1))
				end := begin + uint64(r.Intn(len(want)-int(begin)+1))
				assert.NoError(t, s.SetRange(begin, end))
				if got := getAll(s); got != want[begin:end] {
					t.Errorf("size %d, separator %d, range [%d, %d): got %q, want %q",
						size, sepLen, begin, end, got, want[begin:end])
				}
				s.Rewind()
				p, err := ioutil.ReadAll(s)
				assert.NoError(t, err)
				if got := string(p); got != want[begin:end] {
					t.Errorf("Read: size %d, separator %d, range [%d, %d): got %q, want %q",
						size, sepLen, begin, end, got, want[begin:end])
				}
			}
		}
	}
}

func TestRaw(t *testing.T) {
	s := NewRaw([]byte("acgtRYnACGT-"), BufferSize(5))
	expect.EQ(t, s.NumSequences(), 1)
	expect.EQ(t, s.Length(), uint64(12))
	expect.EQ(t, getAll(s), "ACGTNNNACGTN")
	expect.EQ(t, s.IIDOf(0), uint32(0))
	assert.NoError(t, s.SetRange(2, 6))
	expect.EQ(t, getAll(s), "GTNN")

	empty := NewRaw(nil)
	expect.EQ(t, empty.Length(), uint64(0))
	expect.True(t, empty.EOF())
	expect.EQ(t, getAll(empty), "")
}

func TestNormalize(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	want := concat([]string{string(all)}, DefaultSeparator, DefaultSeparatorLength)
	s := NewRaw(append([]byte(nil), all...), BufferSize(7))
	expect.EQ(t, getAll(s), want)
	expect.EQ(t, strings.Count(want, "N"), 256-8)
	s.Rewind()
	expect.EQ(t, getAll(s), want)
}

func TestPositioning(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	seqs := []string{"ACGTA", "", "CC", "GGGTT"}
	store := openStore(t, dir, seqs...)
	defer store.Close(context.Background())
	s, err := New(store, Separator('/', 2), BufferSize(3))
	assert.NoError(t, err)
	want := concat(seqs, '/', 2)

	assert.NoError(t, s.SetRange(3, 12))
	assert.NoError(t, s.SetPosition(6))
	expect.EQ(t, getAll(s), want[6:12])
	s.Rewind()
	expect.EQ(t, getAll(s), want[3:12])
	assert.NoError(t, s.SetPosition(12))
	expect.True(t, s.EOF())
	expect.EQ(t, getAll(s), "")
	if err := s.SetPosition(2); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if err := s.SetPosition(13); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}

	// Walk the whole stream, checking the cursor before each symbol.
	assert.NoError(t, s.SetRange(0, s.Length()))
	for p := uint64(0); p < s.Length(); p++ {
		expect.EQ(t, s.StrPos(), p)
		i := s.SequenceNumberOfPosition(p)
		inSep := p >= s.StartOf(i)+s.LengthOf(i)
		expect.EQ(t, s.InSeparator(), inSep)
		if !inSep {
			expect.EQ(t, s.SeqIID(), s.IIDOf(i))
			expect.EQ(t, s.SeqPos(), p-s.StartOf(i))
		}
		c, ok := s.Get()
		assert.True(t, ok)
		expect.EQ(t, c, want[p])
	}
	expect.True(t, s.EOF())
}

func TestSequenceNumberOfPosition(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	seqs := randomSeqs(40, 2)
	seqs = append([]string{""}, seqs...)
	seqs = append(seqs, "", "A", "")
	store := openStore(t, dir, seqs...)
	defer store.Close(context.Background())

	for _, sepLen := range []uint64{0, 1, 5} {
		s, err := New(store, Separator('.', sepLen))
		assert.NoError(t, err)
		binary := make([]int, s.Length())
		last := 0
		for p := range binary {
			n := s.SequenceNumberOfPosition(uint64(p))
			if n < last {
				t.Errorf("separator %d: position %d: sequence %d follows %d", sepLen, p, n, last)
			}
			binary[p], last = n, n
		}
		for i := 0; i < s.NumSequences(); i++ {
			// Empty sequences own no positions without separators,
			// nor does a trailing empty sequence.
			if s.LengthOf(i) == 0 && (sepLen == 0 || s.StartOf(i) == s.Length()) {
				continue
			}
			expect.EQ(t, s.SequenceNumberOfPosition(s.StartOf(i)), i)
		}
		expect.EQ(t, s.SequenceNumberOfPosition(s.Length()), -1)

		s.TradeSpaceForTime()
		for p, n := range binary {
			if got := s.SequenceNumberOfPosition(uint64(p)); got != n {
				t.Errorf("separator %d: position %d: dense map gives %d, search gives %d", sepLen, p, got, n)
			}
		}
		expect.EQ(t, s.SequenceNumberOfPosition(s.Length()), -1)
	}
}

func TestSetSeparator(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	seqs := []string{"AAA", "C", "GGG"}
	store := openStore(t, dir, seqs...)
	defer store.Close(context.Background())
	s, err := New(store, Separator('-', 3))
	assert.NoError(t, err)
	s.TradeSpaceForTime()
	assert.NoError(t, s.SetRange(2, 9))
	_, ok := s.Get()
	assert.True(t, ok)

	s.SetSeparator('+', 1)
	expect.EQ(t, s.Length(), uint64(9))
	begin, end := s.Range()
	expect.EQ(t, begin, uint64(0))
	expect.EQ(t, end, uint64(9))
	expect.EQ(t, s.StrPos(), uint64(0))
	expect.EQ(t, s.StartOf(2), uint64(6))
	expect.EQ(t, getAll(s), "AAA+C+GGG")
	for p := uint64(0); p < s.Length(); p++ {
		want := 0
		switch {
		case p >= 6:
			want = 2
		case p >= 4:
			want = 1
		}
		expect.EQ(t, s.SequenceNumberOfPosition(p), want)
	}
	sym, n := s.Separator()
	expect.EQ(t, sym, byte('+'))
	expect.EQ(t, n, uint64(1))
}

func TestNewRange(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	store := openStore(t, dir, "AAAA", "CC", "GGG", "T")
	defer store.Close(context.Background())
	s, err := NewRange(store, seqstore.IDRange{Begin: 1, End: 3}, Separator('x', 1))
	assert.NoError(t, err)
	expect.EQ(t, s.NumSequences(), 2)
	expect.EQ(t, s.IIDOf(0), uint32(1))
	expect.EQ(t, s.IIDOf(1), uint32(2))
	expect.EQ(t, getAll(s), "CCxGGG")
	if _, err := NewRange(store, seqstore.IDRange{Begin: 3, End: 5}); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestConcurrentStreams(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	seqs := randomSeqs(100, 3)
	store := openStore(t, dir, seqs...)
	defer store.Close(context.Background())
	segments, err := store.Segments(8)
	assert.NoError(t, err)

	var g errgroup.Group
	for _, seg := range segments {
		seg := seg
		g.Go(func() error {
			s, err := NewRange(store, seg, BufferSize(16))
			if err != nil {
				return err
			}
			p, err := ioutil.ReadAll(s)
			if err != nil {
				return err
			}
			if want := concat(seqs[seg.Begin:seg.End], DefaultSeparator, DefaultSeparatorLength); !bytes.Equal(p, []byte(want)) {
				return fmt.Errorf("segment %s: got %q, want %q", seg, p, want)
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
}

func TestStats(t *testing.T) {
	s := NewRaw([]byte("ACGTACGTAC"), BufferSize(4))
	expect.EQ(t, getAll(s), "ACGTACGTAC")
	expect.EQ(t, BasesStreamed.Value(s.Stats()), uint64(10))
	expect.EQ(t, SeparatorsStreamed.Value(s.Stats()), uint64(0))
	expect.EQ(t, Refills.Value(s.Stats()), uint64(3))
}
