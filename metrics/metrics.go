// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics provides counters that record the decoding work
// done by sequence stores and streams. Counters are declared once,
// at package level, and their values are kept in a Scope, so that
// independent readers can keep independent tallies that are merged
// afterwards.
package metrics

import (
	"sync"
	"sync/atomic"
)

var (
	mu sync.Mutex
	// names holds the name of each registered counter by id. Index 0
	// is reserved so that the zero Counter is never mistaken for a
	// registered one.
	names = []string{""}
)

// A Counter is a monotonically increasing count.
type Counter struct {
	id int
}

// NewCounter registers and returns a new counter with the provided
// name. Counters should be created at package initialization.
func NewCounter(name string) Counter {
	mu.Lock()
	defer mu.Unlock()
	names = append(names, name)
	return Counter{len(names) - 1}
}

// Name returns the name with which the counter was registered.
func (c Counter) Name() string {
	return counterName(c.id)
}

// Value returns the counter's value in the provided scope.
func (c Counter) Value(scope *Scope) uint64 {
	p := scope.load(c.id)
	if p == nil {
		return 0
	}
	return atomic.LoadUint64(p)
}

// Incr increments the counter's value in the provided scope by n.
func (c Counter) Incr(scope *Scope, n int) {
	atomic.AddUint64(scope.counter(c.id), uint64(n))
}

func counterName(id int) string {
	mu.Lock()
	defer mu.Unlock()
	return names[id]
}
