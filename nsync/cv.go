// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync

import "sync"
import "sync/atomic"
import "time"

// See also the implementation notes at the top of mu.go.

// A CV is a condition variable in the style of Mesa, Java, POSIX, and Go's
// sync.Cond. It allows a thread to wait for a condition on state protected by
// a mutex, and to proceed with the mutex held and the condition true.
//
// When compared with sync.Cond: (a) CV adds WaitWithDeadline(), which allows
// timeouts, (b) the mutex is an explicit argument of the wait calls to remind
// the reader that they have a side effect on the mutex, and (c) (as a result
// of (b)), a zero-valued CV is a valid CV with no enqueued waiters, so there
// is no need of a call to construct a CV.
//
// Usage, assuming cv.Broadcast() is called whenever the predicate becomes true:
//
//	mu.Lock()
//	for !somePredicateProtectedByMu {
//	        cv.Wait(&mu) // the for-loop is required: wakeups may be spurious.
//	}
//	mu.Unlock()
//
// or, bounding the wait with a deadline:
//
//	mu.Lock()
//	for !somePredicateProtectedByMu && cv.WaitWithDeadline(&mu, absDeadline) == nsync.OK {
//	}
//	mu.Unlock()
type CV struct {
	word    uint32 // see bits below; read and written atomically
	waiters dll    // Head of a doubly-linked list of enqueued waiters; under mu.
}

// Bits in CV.word
const (
	cvSpinlock = 1 << iota // protects waiters
	cvNonEmpty = 1 << iota // waiters list is non-empty
)

// Values returned by CV.WaitWithDeadline().
const (
	OK      = iota // Woken by Signal or Broadcast (or a spurious wakeup that the caller's loop re-tests).
	Expired        // absDeadline was reached with no wakeup.
)

// WaitWithDeadline atomically releases mu and blocks the calling goroutine on
// *cv. It waits until awakened by a call to Signal() or Broadcast() (or a
// spurious wakeup), or by the time reaching absDeadline. In all cases it
// reacquires mu before returning, and reports which of those happened. Use
// absDeadline == NoDeadline for no deadline. As with all Mesa-style condition
// variables, WaitWithDeadline should be used in a loop; see the examples
// above.
//
// An absolute rather than relative deadline is used for the same reason
// pthread_cond_timedwait does: condition waits are used in a loop, so an
// absolute time need not be recomputed each iteration, and it is immune to
// the deadline creeping outward across a sequence of waits the way a
// relative timeout re-armed after every spurious wakeup would.
func (cv *CV) WaitWithDeadline(mu sync.Locker, absDeadline time.Time) (outcome int) {
	var w *waiter = newWaiter()
	atomic.StoreUint32(&w.waiting, 1)
	cvMu, _ := mu.(*Mu)
	w.cvMu = cvMu // If the Locker is an nsync.Mu, record its address, else record nil.

	oldWord := spinTestAndSet(&cv.word, cvSpinlock, cvSpinlock|cvNonEmpty) // acquire spinlock, set non-empty
	if (oldWord & cvNonEmpty) == 0 {
		cv.waiters.MakeEmpty() // initialize the waiter queue if it was empty.
	}
	w.q.InsertAfter(&cv.waiters)
	atomic.StoreUint32(&cv.word, oldWord|cvNonEmpty) // release the spin lock.

	mu.Unlock()

	// Prepare a time.Timer for the deadline, if any. A waiter carries its own
	// pre-allocated timer so a timed wait need not allocate and GC a new one.
	var deadlineTimer *time.Timer
	if absDeadline != NoDeadline {
		deadlineTimer = w.deadlineTimer
		if deadlineTimer.Reset(absDeadline.Sub(time.Now())) {
			// w.deadlineTimer is guaranteed inactive and drained; see
			// "Stop any active timer" below.
			panic("deadlineTimer was active")
		}
	}

	// Wait until awoken or a timeout.
	semOutcome := OK
	var attempts uint
	for atomic.LoadUint32(&w.waiting) != 0 { // acquire load
		if semOutcome == OK {
			semOutcome = w.sem.PWithDeadline(deadlineTimer)
		}
		if semOutcome != OK && atomic.LoadUint32(&w.waiting) != 0 { // acquire load
			// A timeout occurred, and no wakeup. Acquire the spinlock, and confirm.
			oldWord = spinTestAndSet(&cv.word, cvSpinlock, cvSpinlock)
			// IsInList() confirms *w is still governed by *cv's spinlock;
			// otherwise some other thread is about to set w.waiting==0.
			if atomic.LoadUint32(&w.waiting) != 0 && w.q.IsInList(&cv.waiters) { // still in waiter queue
				outcome = semOutcome
				w.q.Remove()
				atomic.StoreUint32(&w.waiting, 0) // release store
				if cv.waiters.IsEmpty() {
					oldWord &^= cvNonEmpty
				}
			}
			atomic.StoreUint32(&cv.word, oldWord) // release spinlock
			if atomic.LoadUint32(&w.waiting) != 0 {
				attempts = spinDelay(attempts) // ultimately yields to the scheduler.
			}
		}
	}

	// Stop any active timer, and drain its channel.
	if deadlineTimer != nil && semOutcome != Expired && !deadlineTimer.Stop() /*expired*/ {
		// Synchronous receive: a time.Timer's expire+send isn't atomic, so it
		// may send after Stop() returns false. semOutcome != Expired ensures
		// the value wasn't already consumed by PWithDeadline above.
		<-deadlineTimer.C
	}

	if cvMu != nil && w.cvMu == nil { // waiter was transferred to mu's queue, and woken.
		// Requeue mu using the existing waiter struct; current thread is the designated waker.
		cvMu.lockSlow(w, muDesigWaker)
	} else {
		// Traditional case: woken from the CV, need to reacquire mu.
		freeWaiter(w)
		mu.Lock()
	}
	return outcome
}

// Signal wakes at least one thread currently enqueued on *cv.
func (cv *CV) Signal() {
	if (atomic.LoadUint32(&cv.word) & cvNonEmpty) != 0 { // acquire load
		var toWakeList *waiter                                      // waiters that we will wake
		oldWord := spinTestAndSet(&cv.word, cvSpinlock, cvSpinlock) // acquire spinlock
		if !cv.waiters.IsEmpty() {
			// Point to first waiter that enqueued itself, and detach it from all others.
			toWakeList = cv.waiters.prev.elem
			toWakeList.q.Remove()
			toWakeList.q.MakeEmpty()
			if cv.waiters.IsEmpty() {
				oldWord &^= cvNonEmpty
			}
		}
		atomic.StoreUint32(&cv.word, oldWord) // release spinlock
		if toWakeList != nil {
			wakeWaiters(toWakeList)
		}
	}
}

// Broadcast wakes all threads currently enqueued on *cv.
func (cv *CV) Broadcast() {
	if (atomic.LoadUint32(&cv.word) & cvNonEmpty) != 0 { // acquire load
		var toWakeList *waiter                           // waiters that we will wake
		spinTestAndSet(&cv.word, cvSpinlock, cvSpinlock) // acquire spinlock
		if !cv.waiters.IsEmpty() {
			// Point to last waiter that enqueued itself, still attached to all other waiters.
			toWakeList = cv.waiters.next.elem
			cv.waiters.Remove()
			cv.waiters.MakeEmpty()
		}
		atomic.StoreUint32(&cv.word, 0) // release spinlock, queue now empty
		if toWakeList != nil {
			wakeWaiters(toWakeList)
		}
	}
}

// Wait atomically releases mu and blocks the caller on *cv. It waits until
// awakened by a call to Signal() or Broadcast(), or a spurious wakeup, then
// reacquires mu and returns. Equivalent to WaitWithDeadline(mu, NoDeadline).
// It should be used in a loop, as with all Mesa-style condition variables.
func (cv *CV) Wait(mu sync.Locker) {
	cv.WaitWithDeadline(mu, NoDeadline)
}

// ------------------------------------------

// wakeWaiters wakes the CV waiters in the circular list pointed to by
// toWakeList, which may not be nil. If a waiter is associated with an
// nsync.Mu (as opposed to another sync.Locker implementation), the "wakeup"
// may instead transfer the waiter directly onto that Mu's queue. Requires:
//   - every element of toWakeList is a waiter (no head/sentinel), and
//   - every waiter in it is associated with the same mutex.
func wakeWaiters(toWakeList *waiter) {
	var firstWaiter *waiter = toWakeList.q.prev.elem
	var mu *Mu = firstWaiter.cvMu
	if mu != nil { // waiter is associated with the nsync.Mu *mu.
		// We transfer elements of toWakeList to *mu if all of:
		//  - mu's spinlock is not held, and
		//  - either mu is locked, or there's more than one thread on toWakeList, and
		//  - we acquire the spinlock on the first try.
		// The spinlock acquisition also marks mu as having waiters.
		var oldMuWord uint32 = atomic.LoadUint32(&mu.word)
		var locked bool = (oldMuWord & muLock) != 0
		var setDesigWaker uint32 // set to muDesigWaker if a thread is to be woken rather than transferred
		if !locked {
			setDesigWaker = muDesigWaker
		}
		if (oldMuWord&muSpinlock) == 0 &&
			(locked || firstWaiter != toWakeList) &&
			atomic.CompareAndSwapUint32(&mu.word, oldMuWord, (oldMuWord|muSpinlock|muWaiting|setDesigWaker)) { // acquire CAS

			// Choose which waiters to transfer, and which to wake.
			toTransferList := toWakeList
			if locked { // *mu is held; all the threads get transferred.
				toWakeList = nil
			} else { // *mu is not held; transfer all but the first thread, which will be woken.
				toWakeList = firstWaiter
				toWakeList.q.Remove()
				toWakeList.q.MakeEmpty()
			}

			// Transfer toTransferList onto *mu's waiter queue instead of waking its threads.
			for toTransferList != nil {
				var toTransfer *waiter = toTransferList.q.prev.elem
				if toTransfer == toTransferList { // singleton; toTransfer is the last waiter
					toTransferList = nil
				} else {
					toTransfer.q.Remove()
				}
				if toTransfer.cvMu != mu {
					panic("multiple mutexes used with condition variable")
				}
				toTransfer.cvMu = nil // tell WaitWithDeadline() that we moved the waiter to *mu's queue.
				// toTransfer.waiting is already 1, from being on CV's waiter queue.
				if (oldMuWord & muWaiting) == 0 { // if there were previously no waiters, initialize.
					mu.waiters.MakeEmpty()
					oldMuWord |= muWaiting // so next iteration won't initialize again.
				}
				toTransfer.q.InsertAfter(&mu.waiters)
			}

			// release *mu's spinlock (muWaiting was set by the CAS above)
			oldMuWord = atomic.LoadUint32(&mu.word)
			for !atomic.CompareAndSwapUint32(&mu.word, oldMuWord, oldMuWord&^muSpinlock) { // release CAS
				oldMuWord = atomic.LoadUint32(&mu.word)
			}
		} else if (oldMuWord & (muSpinlock | muLock | muDesigWaker)) == 0 {
			// If spinlock and lock are not held, try to set muDesigWaker because
			// at least one thread is to be woken.
			atomic.CompareAndSwapUint32(&mu.word, oldMuWord, oldMuWord|muDesigWaker)
		}
	}

	// Wake any waiters we didn't manage to enqueue on the Mu.
	for toWakeList != nil {
		var toWake *waiter = toWakeList.q.prev.elem
		if toWake == toWakeList { // singleton; toWake is the last waiter
			toWakeList = nil
		} else {
			toWake.q.Remove()
		}
		atomic.StoreUint32(&toWake.waiting, 0) // release store
		toWake.sem.V()
	}
}
