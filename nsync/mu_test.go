// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync_test

import (
	"runtime"
	"sync"
	"testing"

	"github.com/luoyongjiee/Jamvm/nsync"
)

// counter is the state shared by the mutual-exclusion tests: a count
// protected by whichever lock variant a test exercises, plus an nsync-based
// completion signal.  A sync.WaitGroup would do for the latter, but routing
// it through Mu/CV makes the tests lean on nsync itself.
type counter struct {
	i  int // incremented by every thread, under the test's lock
	id int // id of the thread currently inside the critical section

	mu       nsync.Mu // protects finished
	done     nsync.CV // broadcast when finished changes
	finished int      // threads that have completed their loops
}

func (c *counter) threadFinished() {
	c.mu.Lock()
	c.finished++
	c.done.Broadcast()
	c.mu.Unlock()
}

func (c *counter) waitForThreads(n int) {
	c.mu.Lock()
	for c.finished != n {
		c.done.Wait(&c.mu)
	}
	c.mu.Unlock()
}

// runCountingTest starts threads goroutines that each increment c.i iters
// times under the supplied lock/unlock pair, then checks the total.  Each
// goroutine also writes its own id inside the critical section and rereads
// it, so broken mutual exclusion shows up as a direct clash rather than only
// as a miscount.
func runCountingTest(t *testing.T, threads, iters int, lock, unlock func()) {
	var c counter
	for id := 0; id != threads; id++ {
		go func(id int) {
			for i := 0; i != iters; i++ {
				lock()
				c.id = id
				c.i++
				if c.id != id {
					panic("another thread inside the critical section")
				}
				unlock()
			}
			c.threadFinished()
		}(id)
	}
	c.waitForThreads(threads)
	if c.i != threads*iters {
		t.Fatalf("final count %d, want %d", c.i, threads*iters)
	}
}

// TestMuNThread checks that nsync.Mu provides mutual exclusion across a few
// threads incrementing one counter.
func TestMuNThread(t *testing.T) {
	var mu nsync.Mu
	runCountingTest(t, 5, 1000000, mu.Lock, mu.Unlock)
}

// TestMutexNThread runs the same loops under a sync.Mutex, as a baseline for
// both correctness and the benchmarks below.
func TestMutexNThread(t *testing.T) {
	var mu sync.Mutex
	runCountingTest(t, 5, 1000000, mu.Lock, mu.Unlock)
}

// TestTryMuNThread checks that acquisition via TryLock in a yield loop still
// provides mutual exclusion.
func TestTryMuNThread(t *testing.T) {
	var mu nsync.Mu
	lock := func() {
		for !mu.TryLock() {
			runtime.Gosched()
		}
	}
	runCountingTest(t, 5, 100000, lock, mu.Unlock)
}

// BenchmarkMuUncontended measures an uncontended nsync.Mu acquire/release.
func BenchmarkMuUncontended(b *testing.B) {
	var mu nsync.Mu
	for i := 0; i != b.N; i++ {
		mu.Lock()
		mu.Unlock()
	}
}

// BenchmarkMutexUncontended measures an uncontended sync.Mutex
// acquire/release, for comparison.
func BenchmarkMutexUncontended(b *testing.B) {
	var mu sync.Mutex
	for i := 0; i != b.N; i++ {
		mu.Lock()
		mu.Unlock()
	}
}
