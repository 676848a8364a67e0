// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync

import (
	"runtime"
	"sync/atomic"
	"time"
)

// NoDeadline is the zero time.Time; passing it as the absDeadline argument
// of CV.WaitWithDeadline means "wait with no deadline".  Real deadlines are
// built with time.Now().Add and so never compare equal to it.
var NoDeadline time.Time

// spinDelay delays resumption of a spin loop and returns the attempt count
// to pass to the next call.  The first few attempts burn a short, doubling
// busy-wait; after that, every attempt yields the processor instead.
//
// Usage:
//
//	var attempts uint
//	for trySomething {
//	        attempts = spinDelay(attempts)
//	}
func spinDelay(attempts uint) uint {
	if attempts < 7 {
		for i := 0; i != 1<<attempts; i++ {
		}
		return attempts + 1
	}
	runtime.Gosched()
	return attempts
}

// spinTestAndSet spins until (*w & test) == 0, then atomically performs
// *w |= set and returns the previous value of *w.  The successful CAS is an
// acquire barrier, which is what makes this usable as a spinlock acquire.
func spinTestAndSet(w *uint32, test, set uint32) uint32 {
	var attempts uint
	for {
		old := atomic.LoadUint32(w)
		if old&test == 0 && atomic.CompareAndSwapUint32(w, old, old|set) { // acquire CAS
			return old
		}
		attempts = spinDelay(attempts)
	}
}
