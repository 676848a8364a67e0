// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/luoyongjiee/Jamvm/nsync"
)

// waitForParked polls, under the monitor's own lock, until n threads are
// parked in Wait.
func waitForParked(mon *Monitor, owner *Thread, n uint32) {
	for {
		mon.Lock(owner)
		parked := mon.Waiting() == n
		mon.Unlock(owner)
		if parked {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLockRecursive(t *testing.T) {
	mon := New()
	self := &Thread{ID: 1}

	mon.Lock(self)
	mon.Lock(self)
	mon.Lock(self)
	if mon.Count() != 2 {
		t.Fatalf("count = %d, want 2", mon.Count())
	}
	mon.Unlock(self)
	mon.Unlock(self)
	if mon.Owner() != self {
		t.Fatalf("owner lost after partial unlock")
	}
	mon.Unlock(self)
	if mon.Owner() != nil {
		t.Fatalf("owner = %v, want nil after balanced unlock", mon.Owner())
	}
}

func TestTryLockContested(t *testing.T) {
	mon := New()
	t1 := &Thread{ID: 1}
	t2 := &Thread{ID: 2}

	mon.Lock(t1)
	if mon.TryLock(t2) {
		t.Fatalf("TryLock succeeded while t1 held the monitor")
	}
	mon.Unlock(t1)
	if !mon.TryLock(t2) {
		t.Fatalf("TryLock failed on a free monitor")
	}
	mon.Unlock(t2)
}

func TestLockBlocksUntilUnlock(t *testing.T) {
	mon := New()
	t1 := &Thread{ID: 1}
	t2 := &Thread{ID: 2}

	mon.Lock(t1)

	acquired := make(chan struct{})
	go func() {
		mon.Lock(t2)
		close(acquired)
		mon.Unlock(t2)
	}()

	select {
	case <-acquired:
		t.Fatalf("t2 acquired the monitor before t1 released it")
	case <-time.After(50 * time.Millisecond):
	}

	mon.Unlock(t1)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("t2 never acquired the monitor after t1 unlocked")
	}
}

// TestWaitNotifyHandshake: one thread waits, another notifies, and the
// waiter returns without error and with the waiting counter back at zero.
func TestWaitNotifyHandshake(t *testing.T) {
	mon := New()
	waiter := &Thread{ID: 1}
	notifier := &Thread{ID: 2}

	mon.Lock(waiter)

	woke := make(chan WaitOutcome, 1)
	go func() {
		woke <- mon.Wait(waiter, nsync.NoDeadline)
	}()

	// Give the waiter a chance to park before the notifier locks the monitor.
	time.Sleep(20 * time.Millisecond)

	mon.Lock(notifier)
	if !mon.Notify(notifier) {
		t.Fatalf("Notify returned false from the owner")
	}
	mon.Unlock(notifier)

	select {
	case outcome := <-woke:
		if outcome != WaitOK {
			t.Fatalf("outcome = %v, want WaitOK", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter never woke")
	}

	if mon.Owner() != waiter {
		t.Fatalf("waiter did not reacquire the monitor after waking")
	}
	if mon.Waiting() != 0 {
		t.Fatalf("waiting = %d, want 0 at quiescence", mon.Waiting())
	}
	mon.Unlock(waiter)
}

// TestNotifyCreditBound checks that notify credits never exceed the
// number of parked waiters, so excess Notify calls are no-ops rather than
// releasing more threads than are actually waiting.
func TestNotifyCreditBound(t *testing.T) {
	mon := New()
	const n = 5
	var wg sync.WaitGroup
	released := make(chan int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			self := &Thread{ID: id}
			mon.Lock(self)
			mon.Wait(self, nsync.NoDeadline)
			released <- 1
			mon.Unlock(self)
		}(uint32(i + 1))
	}

	owner := &Thread{ID: 100}
	waitForParked(mon, owner, n)

	mon.Lock(owner)
	for i := 0; i < n+3; i++ { // deliberately over-notify
		mon.Notify(owner)
	}
	mon.Unlock(owner)

	wg.Wait()
	close(released)
	count := 0
	for range released {
		count++
	}
	if count != n {
		t.Fatalf("released %d waiters, want %d", count, n)
	}
	mon.Lock(owner)
	leftover := mon.notifying
	mon.Unlock(owner)
	if leftover != 0 {
		t.Fatalf("%d notify credits left with no waiters, want 0", leftover)
	}
}

// TestNotifyAllReleasesEveryWaiter checks that NotifyAll releases every
// parked waiter.
func TestNotifyAllReleasesEveryWaiter(t *testing.T) {
	mon := New()
	const n = 8
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			self := &Thread{ID: id}
			mon.Lock(self)
			mon.Wait(self, nsync.NoDeadline)
			mon.Unlock(self)
		}(uint32(i + 1))
	}

	owner := &Thread{ID: 100}
	waitForParked(mon, owner, n)

	mon.Lock(owner)
	mon.NotifyAll(owner)
	mon.Unlock(owner)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("NotifyAll failed to release all waiters")
	}
}

func TestWaitTimesOut(t *testing.T) {
	mon := New()
	self := &Thread{ID: 1}
	mon.Lock(self)

	start := time.Now()
	outcome := mon.Wait(self, start.Add(30*time.Millisecond))
	if outcome != WaitTimedOut {
		t.Fatalf("outcome = %v, want WaitTimedOut", outcome)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("Wait returned before its deadline")
	}
	if mon.Owner() != self {
		t.Fatalf("self did not reacquire the monitor after timeout")
	}
	mon.Unlock(self)
}

func TestInterruptWakesWaiter(t *testing.T) {
	mon := New()
	self := &Thread{ID: 1}
	mon.Lock(self)

	woke := make(chan WaitOutcome, 1)
	go func() {
		woke <- mon.Wait(self, nsync.NoDeadline)
	}()

	time.Sleep(20 * time.Millisecond)
	self.Interrupt()

	select {
	case outcome := <-woke:
		if outcome != WaitInterrupted {
			t.Fatalf("outcome = %v, want WaitInterrupted", outcome)
		}
	case <-time.After(time.Second):
		t.Fatalf("interrupted waiter never woke")
	}
	if self.Interrupted() {
		t.Fatalf("interrupted flag should be cleared once consumed")
	}
	mon.Unlock(self)
}

func TestInterruptBeforeWaitIsImmediate(t *testing.T) {
	mon := New()
	self := &Thread{ID: 1}
	self.Interrupt()

	mon.Lock(self)
	start := time.Now()
	outcome := mon.Wait(self, nsync.NoDeadline)
	if outcome != WaitInterrupted {
		t.Fatalf("outcome = %v, want WaitInterrupted", outcome)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("pre-pending interrupt should return immediately")
	}
	mon.Unlock(self)
}

