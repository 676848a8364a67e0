// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync

import "time"

// A binarySemaphore is a binary semaphore; it can have values 0 and 1.
type binarySemaphore struct {
	ch chan struct{}
}

// Init initializes binarySemaphore *s; the initial value is 0.
func (s *binarySemaphore) Init() {
	s.ch = make(chan struct{}, 1)
}

// P waits until the count of semaphore *s is 1 and decrements the count to 0.
func (s *binarySemaphore) P() {
	<-s.ch
}

// PWithDeadline waits until either the count of semaphore *s becomes 1 (it is
// then decremented to 0 and OK is returned), or deadlineTimer != nil and
// *deadlineTimer fires first, in which case Expired is returned.
func (s *binarySemaphore) PWithDeadline(deadlineTimer *time.Timer) (res int) {
	if deadlineTimer == nil {
		<-s.ch
		return OK
	}
	select {
	case <-s.ch:
		return OK
	case <-deadlineTimer.C:
		return Expired
	}
}

// V ensures that the semaphore count of *s is 1.
func (s *binarySemaphore) V() {
	select {
	case s.ch <- struct{}{}:
	default: // Don't block if the semaphore count is already 1.
	}
}
