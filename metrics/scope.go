// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Scope holds the values of a set of counters. The zero Scope is
// empty and ready to use. Scopes are safe for concurrent use, and
// must not be copied after first use.
type Scope struct {
	mu sync.RWMutex
	// counts is indexed by counter id; nil entries have never been
	// incremented.
	counts []*uint64
}

// Merge adds the counts of scope u into scope s.
func (s *Scope) Merge(u *Scope) {
	for id, p := range u.entries() {
		if p != nil {
			atomic.AddUint64(s.counter(id), atomic.LoadUint64(p))
		}
	}
}

// A Sample is the value of a named counter.
type Sample struct {
	Name  string
	Value uint64
}

func (s Sample) String() string {
	return fmt.Sprintf("%s=%d", s.Name, s.Value)
}

// Snapshot returns the values of the counters that have been
// incremented in the scope, in order of registration.
func (s *Scope) Snapshot() []Sample {
	var samples []Sample
	for id, p := range s.entries() {
		if p != nil {
			samples = append(samples, Sample{counterName(id), atomic.LoadUint64(p)})
		}
	}
	return samples
}

// String formats the scope's snapshot as space-separated
// name=value pairs.
func (s *Scope) String() string {
	samples := s.Snapshot()
	strs := make([]string, len(samples))
	for i, sample := range samples {
		strs[i] = sample.String()
	}
	return strings.Join(strs, " ")
}

func (s *Scope) entries() []*uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*uint64(nil), s.counts...)
}

func (s *Scope) load(id int) *uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < len(s.counts) {
		return s.counts[id]
	}
	return nil
}

// counter returns the count for counter id, allocating it if needed.
func (s *Scope) counter(id int) *uint64 {
	if p := s.load(id); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.counts) <= id {
		s.counts = append(s.counts, nil)
	}
	if s.counts[id] == nil {
		s.counts[id] = new(uint64)
	}
	return s.counts[id]
}
