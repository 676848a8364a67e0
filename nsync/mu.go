// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nsync provides a mutex Mu and a Mesa-style condition variable CV.
//
// They differ from sync.Mutex and sync.Cond in the ways a lock runtime needs:
// Mu has TryLock, CV has a wait with an absolute deadline, a zero CV is ready
// to use, and CV's wait calls take the mutex as an explicit argument as a
// reminder that they release and reacquire it.  A Mu acquired by one thread
// must be released by that same thread.
//
// Mu and CV interoperate with the sync package as well: an nsync.Mu works
// under a sync.Cond, and an nsync.CV accepts any sync.Locker.
//
// This package backs the monitor implementation in the monitor package: a
// fat (inflated) object lock pairs one Mu with one CV, mirroring an OS
// mutex+condvar pair in a native VM.
package nsync

import "sync/atomic"

// Implementation notes
//
// Both Mu and CV keep their blocked threads on a doubly-linked waiter list
// (waiter.go), guarded by a spinlock bit inside the same atomic word that
// holds the rest of their state.  The spin helpers live in common.go; apart
// from the sync.Locker interface, nothing here depends on package sync.
//
// Sharing one waiter representation between Mu and CV is what allows
// wakeWaiters() in cv.go to move a thread woken from a CV directly onto the
// Mu's queue instead of waking it only to have it block again on the mutex.
//
// The muDesigWaker bit records that some former waiter is currently awake
// but has neither acquired the lock nor gone back to sleep.  While such a
// thread exists, Unlock can skip waking another waiter, since the designated
// waker will pass the wakeup along when it is done.  Under heavy contention
// with short critical sections this avoids a thundering parade of wakeups.
//
// TryLock promises success only "with high probability" when the lock is
// free.  Together with the rule that the acquiring thread must be the one to
// release, this keeps callers from treating Mu as a semaphore, which both
// preserves room for future reordering of the fast paths and keeps Mu usable
// with lock-set style race detection.
//
// The CV deliberately offers only an absolute-deadline wait; see the comment
// on CV.WaitWithDeadline for why relative timeouts are the error-prone
// variant, however often they are asked for.
//
// CV waits block on a binary semaphore carried by the waiter struct, with a
// per-waiter time.Timer for expirations.  A waiter on the free list always
// has its timer stopped and its channel drained.

// A Mu is a mutex.  Its zero value is valid and unlocked.  It is similar to
// sync.Mutex, but adds TryLock.
//
// A Mu is either free or held by exactly one thread.  The holder must be the
// one to release it; acquiring in one thread and releasing in another is not
// legal.
//
// Example, with p.mu protecting the invariant p.a+p.b==0:
//
//	p.mu.Lock()
//	p.a++
//	p.b-- // p.a+p.b==0 again, safe to release
//	p.mu.Unlock()
type Mu struct {
	word    uint32 // state bits below
	waiters dll    // head of the waiter list; guarded by muSpinlock
}

// Bits in Mu.word.
const (
	muLock       = 1 << iota // lock is held.
	muSpinlock   = 1 << iota // spinlock is held (protects waiters).
	muWaiting    = 1 << iota // waiter list is non-empty.
	muDesigWaker = 1 << iota // a woken former waiter has not yet acquired or re-slept.
)

// TryLock attempts to acquire *mu without blocking, and returns whether it
// succeeded.  It returns true with high probability if *mu was free on entry.
func (mu *Mu) TryLock() bool {
	if atomic.CompareAndSwapUint32(&mu.word, 0, muLock) { // acquire CAS
		return true
	}
	old := atomic.LoadUint32(&mu.word)
	return old&muLock == 0 && atomic.CompareAndSwapUint32(&mu.word, old, old|muLock) // acquire CAS
}

// Lock blocks until *mu is free and then acquires it.
func (mu *Mu) Lock() {
	if atomic.CompareAndSwapUint32(&mu.word, 0, muLock) { // acquire CAS
		return
	}
	old := atomic.LoadUint32(&mu.word)
	if old&muLock != 0 || !atomic.CompareAndSwapUint32(&mu.word, old, old|muLock) { // acquire CAS
		mu.lockSlow(newWaiter(), 0)
	}
}

// lockSlow acquires *mu, sleeping on *w whenever the lock is held.  clear is
// zero if the calling thread has not yet slept on *mu, and muDesigWaker once
// it has: whichever acquire or enqueue CAS ends this thread's turn as the
// designated waker must also clear that bit.
func (mu *Mu) lockSlow(w *waiter, clear uint32) {
	var attempts uint // spin backoff state
	w.cvMu = nil      // this is a mutex wait, not a CV wait
	for {
		old := atomic.LoadUint32(&mu.word)
		if old&muLock == 0 {
			// Lock is free: take it.
			if atomic.CompareAndSwapUint32(&mu.word, old, (old|muLock)&^clear) { // acquire CAS
				freeWaiter(w)
				return
			}
		} else if old&muSpinlock == 0 &&
			atomic.CompareAndSwapUint32(&mu.word, old, (old|muSpinlock|muWaiting)&^clear) { // acquire CAS

			// Someone else holds the lock and we now hold the
			// spinlock, with muWaiting already set: enqueue ourselves.
			atomic.StoreUint32(&w.waiting, 1)
			if old&muWaiting == 0 { // first waiter initializes the list.
				mu.waiters.MakeEmpty()
			}
			w.q.InsertAfter(&mu.waiters)

			// Drop the spinlock.  This must be a CAS, not a store:
			// the lock holder may be concurrently unlocking and
			// flipping other bits in the word, since holding the
			// spinlock alone does not freeze them.
			old = atomic.LoadUint32(&mu.word)
			for !atomic.CompareAndSwapUint32(&mu.word, old, old&^muSpinlock) { // release CAS
				old = atomic.LoadUint32(&mu.word)
			}

			// Sleep until woken.
			for atomic.LoadUint32(&w.waiting) != 0 { // acquire load
				w.sem.P()
			}

			// We are now the designated waker; retry from scratch.
			attempts = 0
			clear = muDesigWaker
		}
		attempts = spinDelay(attempts)
	}
}

// Unlock unlocks *mu, waking one waiter if any are present and none is
// already awake.
func (mu *Mu) Unlock() {
	// Release the lock with a bare atomic add, before looking at the
	// waiter bits.  In a garbage-collected language this is safe (and a
	// little faster on x86); without GC another thread could acquire the
	// mutex and free its memory between this add and the wakeup check
	// below.
	newWord := atomic.AddUint32(&mu.word, ^uint32(muLock-1))
	if newWord&(muLock|muWaiting) == 0 || newWord&(muLock|muDesigWaker) == muDesigWaker {
		return // no waiters, or a designated waker is already up.
	}

	if newWord&muLock != 0 {
		panic("attempt to Unlock a free nsync.Mu")
	}

	var attempts uint // spin backoff state
	for {
		old := atomic.LoadUint32(&mu.word)
		if old&muWaiting == 0 || old&muDesigWaker == muDesigWaker {
			return // nobody to wake, or someone else is already waking.
		} else if old&muSpinlock == 0 &&
			atomic.CompareAndSwapUint32(&mu.word, old, old|muSpinlock|muDesigWaker) { // acquire CAS
			// Spinlock held; muDesigWaker was set optimistically,
			// since the thread we expect to wake becomes the
			// designated waker.

			if mu.waiters.elem != nil {
				panic("non-nil mu.waiters.dll.elem")
			}

			// Dequeue a waiter, if one is still there.
			wake := mu.waiters.prev.elem
			clearOnRelease := uint32(muSpinlock)
			if wake != nil {
				wake.q.Remove()
			} else {
				clearOnRelease |= muDesigWaker // woke no one after all.
			}
			if mu.waiters.IsEmpty() {
				clearOnRelease |= muWaiting // list drained.
			}
			// Drop the spinlock.  As in lockSlow, this must be a
			// CAS: this thread no longer holds the mutex itself, so
			// other bits of the word may be changing underneath.
			old = atomic.LoadUint32(&mu.word)
			for !atomic.CompareAndSwapUint32(&mu.word, old, (old|muDesigWaker)&^clearOnRelease) { // release CAS
				old = atomic.LoadUint32(&mu.word)
			}
			if wake != nil {
				atomic.StoreUint32(&wake.waiting, 0) // release store
				wake.sem.V()
			}
			return
		}
		attempts = spinDelay(attempts)
	}
}

// AssertHeld panics if *mu is not held.
func (mu *Mu) AssertHeld() {
	if atomic.LoadUint32(&mu.word)&muLock == 0 {
		panic("nsync.Mu not held")
	}
}
