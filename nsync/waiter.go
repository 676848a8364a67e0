// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync

import (
	"math"
	"sync/atomic"
	"time"
)

// A dll is one element of a circular doubly-linked list of waiters.  The
// same element type serves as a list head (elem == nil) and as the link
// embedded in each waiter (elem pointing back at it).
type dll struct {
	next *dll
	prev *dll
	elem *waiter
}

// MakeEmpty makes *l an empty list.  *l must not currently be an element of
// a non-empty list.
func (l *dll) MakeEmpty() {
	l.next = l
	l.prev = l
}

// IsEmpty reports whether list *l is empty.  *l must be part of a list; a
// zero dll (never passed to MakeEmpty) reports false.
func (l *dll) IsEmpty() bool {
	return l.next == l
}

// InsertAfter inserts *e into the list just after position *p.  *e must not
// currently be in a list; *p must be.
func (e *dll) InsertAfter(p *dll) {
	e.next = p.next
	e.prev = p
	e.next.prev = e
	e.prev.next = e
}

// Remove unlinks *e from whatever list it is in.
func (e *dll) Remove() {
	e.next.prev = e.prev
	e.prev.next = e.next
}

// IsInList reports whether element e is reachable from list head l.
func (e *dll) IsInList(l *dll) bool {
	p := l.next
	for p != e && p != l {
		p = p.next
	}
	return p == e
}

// A waiter is one parked thread, on either a Mu or a CV.
//
// To wait: take a waiter *w from newWaiter, store 1 into w.waiting, set
// w.cvMu (nil for a mutex wait, the associated Mu for a CV wait), link w.q
// onto the relevant queue, then
//
//	for atomic.LoadUint32(&w.waiting) != 0 { w.sem.P() }
//
// and finally hand *w back with freeWaiter.
//
// To wake: unlink *w from its queue, store 0 into w.waiting (release), and
// V its semaphore.
type waiter struct {
	q             dll             // list linkage
	sem           binarySemaphore // the thread parks on this
	deadlineTimer *time.Timer     // fires to bound a timed CV wait

	// cvMu is the Mu associated with a CV wait, or nil for a mutex wait.
	// wakeWaiters clears it when it transfers the waiter to the Mu's queue.
	cvMu *Mu

	// waiting is non-zero while the thread is parked; read and written
	// atomically.
	waiting uint32
}

// freeWaiters is a free list of waiter structs, so a park/unpark slot is
// reused across waits instead of allocated (with a fresh timer) per wait.
var freeWaiters dll
var freeWaitersMu uint32 // spinlock protecting freeWaiters

// newWaiter returns an unused waiter with its timer stopped and its timer
// channel drained.
func newWaiter() (w *waiter) {
	spinTestAndSet(&freeWaitersMu, 1, 1)
	if freeWaiters.next == nil { // first use; set up the free list.
		freeWaiters.MakeEmpty()
	}
	if !freeWaiters.IsEmpty() {
		q := freeWaiters.next
		q.Remove()
		w = q.elem
	}
	atomic.StoreUint32(&freeWaitersMu, 0) // release store
	if w == nil {
		w = new(waiter)
		w.sem.Init()
		w.deadlineTimer = time.NewTimer(time.Duration(math.MaxInt64))
		w.deadlineTimer.Stop()
		w.q.elem = w
	}
	return w
}

// freeWaiter returns *w to the free list.
func freeWaiter(w *waiter) {
	spinTestAndSet(&freeWaitersMu, 1, 1)
	w.q.InsertAfter(&freeWaiters)
	atomic.StoreUint32(&freeWaitersMu, 0) // release store
}
