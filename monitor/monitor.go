// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor implements the heavyweight monitor used once an object's
// lockword has inflated: an nsync.Mu/nsync.CV pair plus the bookkeeping
// counters (waiting, notifying, interrupting, entering) that bound how many
// parked threads a notify or an interrupt may legally wake.
//
// A Monitor knows nothing about lockwords or object headers; that state
// machine lives in package vmsync, which allocates Monitors from a
// monitorpool.Pool and drives them through Lock/Unlock/Wait/Notify/NotifyAll.
package monitor

import (
	"sync/atomic"
	"time"

	"github.com/luoyongjiee/Jamvm/nsync"
)

// SuspendGate brackets a thread's potentially long-blocking calls so an
// external safepoint coordinator can tell when the thread's stack is parked
// in a state safe to inspect. A VM without a cooperative safepoint can wire
// in NopSuspendGate.
type SuspendGate interface {
	DisableSuspend()
	EnableSuspend()
}

// NopSuspendGate is a SuspendGate that does nothing, for embedders with no
// stop-the-world coordinator.
type NopSuspendGate struct{}

func (NopSuspendGate) DisableSuspend() {}
func (NopSuspendGate) EnableSuspend()  {}

// State mirrors the handful of thread states the safepoint machinery cares
// about while a thread crosses a Monitor boundary.
type State int32

const (
	Running State = iota
	Waiting
)

// Thread is the per-thread state a Monitor reads and writes: its small
// integer id (also embedded in a thin lockword), the state flips bracketing
// blocking calls, and the interrupt handshake fields. Embedders construct
// one Thread per native OS thread / goroutine that will call into vmsync.
type Thread struct {
	ID uint32

	Gate SuspendGate // if nil, NopSuspendGate is used

	state int32 // atomic State; read by an external safepoint scanner

	// interrupted is sticky: set by an external interrupt delivery, cleared
	// when consumed by a Wait that observes it. Interrupt sets it from the
	// interrupting thread, with no lock held when t is not parked on a
	// monitor, so it is always read and written atomically.
	interrupted uint32

	// interrupting is set by an interrupter under mon.lock and cleared by
	// the woken waiter, also under mon.lock (see Wait's own locking via
	// the monitor it is invoked on).
	interrupting uint32

	// waitMon is the monitor this thread is currently parked on, or nil. Set
	// and cleared by the thread itself while it holds that monitor's lock;
	// read by a concurrent Interrupt() with no lock held, hence atomic.Pointer
	// rather than a plain field.
	waitMon atomic.Pointer[Monitor]
}

func (t *Thread) gate() SuspendGate {
	if t.Gate == nil {
		return NopSuspendGate{}
	}
	return t.Gate
}

// State reports the thread's current Running/Waiting state.
func (t *Thread) State() State {
	return State(atomic.LoadInt32(&t.state))
}

func (t *Thread) setState(s State) {
	atomic.StoreInt32(&t.state, int32(s))
}

// Interrupt marks t as interrupted. If t is currently parked in Wait on a
// monitor, the wait is woken immediately; otherwise the sticky flag causes
// the next Wait call to return immediately as interrupted. This is the
// thread-subsystem side of the interrupt handshake described by the
// monitor's Wait.
func (t *Thread) Interrupt() {
	mon := t.waitMon.Load()
	if mon == nil {
		atomic.StoreUint32(&t.interrupted, 1)
		return
	}
	mon.lock.Lock()
	// Re-check under the lock: t may have woken and cleared waitMon between
	// the unlocked read above and acquiring mon.lock.
	if t.waitMon.Load() == mon {
		mon.interrupting++
		atomic.StoreUint32(&t.interrupting, 1)
		mon.cv.Broadcast()
	} else {
		atomic.StoreUint32(&t.interrupted, 1)
	}
	mon.lock.Unlock()
}

// Interrupted reports whether t has a pending interrupt that has not yet
// been consumed by a Wait call.
func (t *Thread) Interrupted() bool {
	return atomic.LoadUint32(&t.interrupted) != 0
}

// Monitor is the heavyweight lock a thin lockword inflates into. Its zero
// value is not ready for use; obtain one via monitorpool.Pool so its in_use
// bookkeeping and free-list linkage are initialized.
type Monitor struct {
	lock nsync.Mu
	cv   nsync.CV

	owner        *Thread
	count        uint32 // recursion depth beyond 1; 0 means held exactly once
	waiting      uint32 // threads parked in Wait
	notifying    uint32 // outstanding notify credits
	interrupting uint32 // outstanding interrupt credits

	// entering counts threads blocked trying to acquire lock. Unlike the
	// other counters it is incremented before lock is held, so it is accessed
	// atomically.
	entering uint32

	// inUse and Next are owned by the monitorpool, not by Monitor's own
	// critical section: the pool's scavenger inspects inUse, and links a
	// reclaimed Monitor onto its free list via Next, while holding only the
	// pool's lock. inUse is therefore accessed atomically rather than under
	// mon.lock.
	inUse uint32
	Next  *Monitor
}

// New returns a freshly initialized Monitor: the state of a Monitor just
// popped empty off the free list or allocated new.
func New() *Monitor {
	mon := &Monitor{}
	atomic.StoreUint32(&mon.inUse, 1)
	return mon
}

// InUse reports whether the pool considers this Monitor allocated. Only the
// pool's lookup/allocation and vmsync's inflation and deflation paths call
// SetInUse; everyone else should treat this as read-only.
func (mon *Monitor) InUse() bool { return atomic.LoadUint32(&mon.inUse) != 0 }

// SetInUse updates the pool-owned allocation flag.
func (mon *Monitor) SetInUse(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&mon.inUse, n)
}

// Owner returns the thread currently holding mon's lock, or nil.
func (mon *Monitor) Owner() *Thread { return mon.owner }

// Count returns the recursion depth beyond one. Exposed so vmsync can
// transplant a thin lockword's recursion count into a freshly inflated
// Monitor.
func (mon *Monitor) Count() uint32 { return mon.count }

// SetCount lets vmsync install a recursion count transplanted from a thin
// lockword at inflation time. Must only be called while self holds mon.
func (mon *Monitor) SetCount(n uint32) { mon.count = n }

// Entering reports the number of threads currently blocked trying to
// acquire mon; vmsync's deflation precondition depends on this being
// zero.
func (mon *Monitor) Entering() uint32 { return atomic.LoadUint32(&mon.entering) }

// Waiting reports the number of threads currently parked in Wait.
func (mon *Monitor) Waiting() uint32 { return mon.waiting }

// Lock acquires mon on behalf of self, blocking if necessary. Re-entrant: if
// self already owns mon, this simply bumps the recursion count.
func (mon *Monitor) Lock(self *Thread) {
	if mon.owner == self {
		mon.count++
		return
	}
	atomic.AddUint32(&mon.entering, 1)
	self.gate().DisableSuspend()
	self.setState(Waiting)
	mon.lock.Lock()
	self.setState(Running)
	self.gate().EnableSuspend()
	atomic.AddUint32(&mon.entering, ^uint32(0))
	mon.owner = self
}

// TryLock attempts to acquire mon without blocking. It does not touch
// entering, since a non-blocking attempt never parks.
func (mon *Monitor) TryLock(self *Thread) bool {
	if mon.owner == self {
		mon.count++
		return true
	}
	if !mon.lock.TryLock() {
		return false
	}
	mon.owner = self
	return true
}

// Unlock releases one level of self's hold on mon. Unlock by a non-owner is
// a silent no-op; vmsync's facade guarantees this is never invoked that way
// in a correct caller, so this is a guard rather than a contract callers may
// rely on.
func (mon *Monitor) Unlock(self *Thread) {
	if mon.owner != self {
		return
	}
	if mon.count == 0 {
		mon.owner = nil
		mon.lock.Unlock()
	} else {
		mon.count--
	}
}

// WaitOutcome reports why Wait returned.
type WaitOutcome int

const (
	// WaitOK means self was released by a credited Notify/NotifyAll; a
	// wakeup that finds no credit waits again. self re-owns mon on return.
	WaitOK WaitOutcome = iota
	// WaitTimedOut means a deadline elapsed with no notify or interrupt credit.
	WaitTimedOut
	// WaitInterrupted means self was interrupted while parked, or already
	// carried a pending interrupt when Wait was called.
	WaitInterrupted
	// WaitNotOwner means self did not hold mon; no state changed.
	WaitNotOwner
)

// Wait releases mon, blocks self until woken by Notify, NotifyAll, an
// interrupt, or deadline, then reacquires mon restoring self's prior
// recursion depth. deadline == nsync.NoDeadline waits indefinitely.
//
// The wakeup-reason checks run in interrupt, then notify-credit, then
// timeout/spurious order, so a notify racing a timeout is never silently
// dropped once it has been recorded as a credit.
func (mon *Monitor) Wait(self *Thread, deadline time.Time) WaitOutcome {
	if mon.owner != self {
		return WaitNotOwner
	}

	self.gate().DisableSuspend()

	oldCount := mon.count
	mon.count = 0
	mon.owner = nil
	mon.waiting++
	self.waitMon.Store(mon)
	self.setState(Waiting)

	outcome := WaitOK
	if self.Interrupted() {
		outcome = WaitInterrupted
	} else {
	waitLoop:
		for {
			expired := mon.cv.WaitWithDeadline(&mon.lock, deadline) == nsync.Expired
			// An interrupt or notify credit that raced the deadline is
			// consumed rather than dropped.
			if atomic.LoadUint32(&self.interrupting) != 0 {
				atomic.StoreUint32(&self.interrupting, 0)
				mon.interrupting--
				outcome = WaitInterrupted
				break waitLoop
			}
			if mon.notifying > 0 {
				mon.notifying--
				outcome = WaitOK
				break waitLoop
			}
			if expired {
				outcome = WaitTimedOut
				break waitLoop
			}
			// Spurious wakeup with no credit and no expiry: re-wait.
		}
	}

	self.setState(Running)
	self.waitMon.Store(nil)
	mon.owner = self
	mon.count = oldCount
	mon.waiting--

	self.gate().EnableSuspend()

	if outcome == WaitInterrupted {
		atomic.StoreUint32(&self.interrupted, 0)
	}
	return outcome
}

// Notify wakes at most one thread parked in Wait, if notify/interrupt
// credits have not already reached waiting. Returns false if self does not
// own mon.
func (mon *Monitor) Notify(self *Thread) bool {
	if mon.owner != self {
		return false
	}
	if mon.notifying+mon.interrupting < mon.waiting {
		mon.notifying++
		mon.cv.Signal()
	}
	return true
}

// NotifyAll wakes every thread parked in Wait that is not already being
// woken by a pending interrupt. Returns false if self does not own mon.
func (mon *Monitor) NotifyAll(self *Thread) bool {
	if mon.owner != self {
		return false
	}
	mon.notifying = mon.waiting - mon.interrupting
	mon.cv.Broadcast()
	return true
}
