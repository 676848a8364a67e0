// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmsync

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/luoyongjiee/Jamvm/lockword"
	"github.com/luoyongjiee/Jamvm/monitor"
	"github.com/luoyongjiee/Jamvm/monitorpool"
	"github.com/luoyongjiee/Jamvm/nsync"
)

// Core is the object-level locking facade: the thin/fat state machine,
// inflation, deflation and the FLC handshake, built on top of a single
// monitorpool.Pool. Embedders construct one Core per heap (or per VM
// instance); every Object it touches must have been obtained from a heap
// that uses this same Core, since the pool's cache is keyed by object
// identity.
//
// A Core's zero value is not ready for use; call NewCore.
type Core struct {
	pool *monitorpool.Pool
}

// NewCore constructs the monitor cache with an initial table size of
// cacheSize, which must be a power of two. Pass 0 to use
// monitorpool.InitialSize. This is the core's one and only piece of
// configuration; everything else is driven by per-call arguments.
func NewCore(cacheSize int) *Core {
	if cacheSize == 0 {
		cacheSize = monitorpool.InitialSize
	}
	return &Core{pool: monitorpool.New(cacheSize)}
}

// MonitorCount reports how many live cache entries the core's pool holds.
// Exposed for tests and for monitorbench reporting; not part of the
// object-level contract.
func (c *Core) MonitorCount() int { return c.pool.Len() }

func ptr(obj *Object) unsafe.Pointer { return unsafe.Pointer(obj) }

// findMonitor resolves the monitor backing obj: a fat lockword names its
// monitor directly, with no cache touch at all; only a thin lockword
// goes through the pool, which may itself allocate on a miss.
func (c *Core) findMonitor(obj *Object, w lockword.Word) *monitor.Monitor {
	if lockword.IsFat(w) {
		return (*monitor.Monitor)(lockword.AsMonitor(w))
	}
	return c.pool.Find(ptr(obj))
}

// Lock acquires obj's monitor on behalf of self, recursively. It never
// fails: an uncontended acquisition is a single CAS on the lockword; a
// recursive re-entry bumps the thin count (or inflates on overflow); a
// contended acquisition inflates and blocks on the resulting monitor.
func (c *Core) Lock(obj *Object, self *monitor.Thread) {
	tid := lockword.MakeThin(self.ID)

	if atomic.CompareAndSwapUint64(&obj.lock, lockword.Unlocked, tid) {
		return
	}

	for {
		w := atomic.LoadUint64(&obj.lock)

		if !lockword.IsFat(w) && lockword.ThinOwnerWord(w) == tid {
			if lockword.ThinCount(w) < lockword.ThinMax {
				if atomic.CompareAndSwapUint64(&obj.lock, w, lockword.ThinIncrement(w)) {
					return
				}
				continue
			}
			// Recursion overflowed the thin count field: inflate rather
			// than lose depth. self already owns the lock, so a contender
			// holding this monitor only does so until it parks in Wait.
			mon := c.pool.Find(ptr(obj))
			mon.Lock(self)
			logger.Debugf("vmsync: recursion overflow, inflating obj=%p", obj)
			c.inflate(obj, mon, self)
			mon.SetCount(lockword.ThinMax + 1)
			return
		}

		c.lockContended(obj, self)
		return
	}
}

// lockContended is the slow path for a lockword self does not already own:
// self takes the monitor for obj, then loops until the lockword is fat,
// racing to claim the right to inflate by CASing the lockword from 0 to a
// thin word naming self and parking on the monitor between attempts while
// the prior owner has not yet released. The loop also covers a lockword that
// was fat at entry but deflated before the monitor was acquired: self simply
// re-inflates it. mon is held on return.
func (c *Core) lockContended(obj *Object, self *monitor.Thread) {
	tid := lockword.MakeThin(self.ID)
	mon := c.findMonitor(obj, atomic.LoadUint64(&obj.lock))
	mon.Lock(self)
	logger.Trace(newLogClosure(func() string {
		return fmt.Sprintf("vmsync: contention on obj=%p, racing to inflate mon=%p", obj, mon)
	}))

	for {
		w := atomic.LoadUint64(&obj.lock)
		if lockword.IsFat(w) {
			return
		}

		obj.SetFLC()

		if atomic.CompareAndSwapUint64(&obj.lock, lockword.Unlocked, tid) {
			c.inflate(obj, mon, self)
			return
		}

		// The thin owner has not released yet (or another contender beat
		// us to the claim); park until inflate (ours or a peer's) wakes us.
		mon.Wait(self, nsync.NoDeadline)
	}
}

// inflate publishes mon as obj's monitor, clearing the FLC bit and waking
// any thread parked waiting for the inflation itself (which may include
// peers that lost the CAS race in lockContended). The monitor is already
// held by self, with count already correct for the new depth.
func (c *Core) inflate(obj *Object, mon *monitor.Monitor, self *monitor.Thread) {
	obj.ClearFLC()
	// Re-assert in_use: mon may have been deflated by another thread between
	// this thread's pool lookup and winning the inflation CAS, and a fat
	// lockword must never reference a scavengeable monitor.
	mon.SetInUse(true)
	mon.NotifyAll(self)
	// Release-store: any thread that acquire-loads this fat word and then
	// takes mon observes a fully initialized Monitor.
	atomic.StoreUint64(&obj.lock, lockword.AsFat(unsafe.Pointer(mon)))
	logger.Tracef("vmsync: inflated obj=%p mon=%p", obj, mon)
}

// Unlock releases one level of self's hold on obj. Silent on non-owner:
// the facade's callers are VM bytecode/runtime paths that are only
// ever correct to invoke this when self is in fact the owner.
func (c *Core) Unlock(obj *Object, self *monitor.Thread) {
	tid := lockword.MakeThin(self.ID)
	w := atomic.LoadUint64(&obj.lock)

	switch {
	case !lockword.IsFat(w) && w == tid:
		// Thin, owned exactly once: release, then hand off to a waiting
		// contender if FLC says one exists.
		atomic.StoreUint64(&obj.lock, lockword.Unlocked)
		if obj.TestFLC() {
			c.handOff(obj, self)
		}

	case !lockword.IsFat(w) && lockword.ThinOwnerWord(w) == tid:
		atomic.StoreUint64(&obj.lock, lockword.ThinDecrement(w))

	case lockword.IsFat(w):
		mon := c.findMonitor(obj, w)
		if mon.Owner() == self && mon.Count() == 0 && mon.Entering() == 0 && mon.Waiting() == 0 {
			// Deflate while still held: the lockword is zeroed before
			// the monitor is released, so no thread can arrive at it via
			// the fat path after this point.
			atomic.StoreUint64(&obj.lock, lockword.Unlocked)
			mon.SetInUse(false)
			logger.Tracef("vmsync: deflated obj=%p mon=%p", obj, mon)
		}
		mon.Unlock(self)

	default:
		// Not the owner: silent no-op; correct callers never reach this case.
	}
}

// handOff implements the post-release half of the thin-unlock hand-off: a
// contender set FLC before self released, so self briefly takes the
// monitor to deliver exactly one notify credit to it.
func (c *Core) handOff(obj *Object, self *monitor.Thread) {
	mon := c.pool.Find(ptr(obj))
	for !mon.TryLock(self) {
		runtime.Gosched()
	}
	if obj.TestFLC() {
		mon.Notify(self)
	}
	mon.Unlock(self)
}

// ownedMonitor resolves the monitor backing obj on behalf of a thread that
// claims to already own it, inflating a thin lock first if necessary and
// transferring the current recursion count into the monitor. It reports
// false only when obj is thin and not owned by self at all; a fat object
// not owned by self is still returned, so the monitor primitive itself can
// report the ownership failure consistently with direct fat-path calls.
func (c *Core) ownedMonitor(obj *Object, self *monitor.Thread) (*monitor.Monitor, bool) {
	tid := lockword.MakeThin(self.ID)
	w := atomic.LoadUint64(&obj.lock)

	if lockword.IsFat(w) {
		return c.findMonitor(obj, w), true
	}

	if lockword.ThinOwnerWord(w) != tid {
		return nil, false
	}

	mon := c.pool.Find(ptr(obj))
	mon.Lock(self)
	mon.SetCount(lockword.ThinCount(w))
	c.inflate(obj, mon, self)
	return mon, true
}

// Wait requires self to own obj. It blocks until notified, interrupted or
// timeout elapses, releasing obj's monitor and, if thin, inflating it
// first: a parked waiter has no thin-lockword representation. A zero
// timeout waits indefinitely.
func (c *Core) Wait(obj *Object, self *monitor.Thread, timeout time.Duration) error {
	mon, ok := c.ownedMonitor(obj, self)
	if !ok {
		return ErrNotOwner
	}

	deadline := nsync.NoDeadline
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	switch mon.Wait(self, deadline) {
	case monitor.WaitNotOwner:
		return ErrNotOwner
	case monitor.WaitInterrupted:
		return ErrInterrupted
	default:
		return nil
	}
}

// Notify wakes at most one thread parked in obj's Wait. Requires ownership;
// returns ErrNotOwner otherwise.
func (c *Core) Notify(obj *Object, self *monitor.Thread) error {
	mon, ok := c.ownedMonitor(obj, self)
	if !ok || !mon.Notify(self) {
		return ErrNotOwner
	}
	return nil
}

// NotifyAll wakes every thread parked in obj's Wait that is not already
// being woken by a pending interrupt. Requires ownership; returns
// ErrNotOwner otherwise.
func (c *Core) NotifyAll(obj *Object, self *monitor.Thread) error {
	mon, ok := c.ownedMonitor(obj, self)
	if !ok || !mon.NotifyAll(self) {
		return ErrNotOwner
	}
	return nil
}
