// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nsync_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/luoyongjiee/Jamvm/nsync"
)

// A queue is a bounded FIFO holding up to Limit elements, with its storage
// grown on demand.  It is the classic two-condition-variable exercise: one
// CV announces not-empty, the other not-full.
type queue struct {
	Limit    int           // capacity; fixed after initialization
	nonEmpty nsync.CV      // signalled when count leaves zero
	nonFull  nsync.CV      // signalled when count leaves Limit
	mu       nsync.Mu      // protects the fields below
	data     []interface{} // live elements are data[pos, ..., (pos+count-1)%len(data)]
	pos      int           // index of the first live element
	count    int           // number of live elements
}

// Put appends v to *q and returns true, unless the queue stays full through
// absDeadline, in which case it returns false having added nothing.
func (q *queue) Put(v interface{}, absDeadline time.Time) (added bool) {
	q.mu.Lock()
	for q.count == q.Limit && q.nonFull.WaitWithDeadline(&q.mu, absDeadline) == nsync.OK {
	}
	if q.count != q.Limit {
		length := len(q.data)
		i := q.pos + q.count
		if q.count == length {
			// Grow, unwrapping the circular buffer into the new storage.
			newLength := length * 2
			if newLength == 0 {
				newLength = 16
			}
			if q.Limit < newLength {
				newLength = q.Limit
			}
			newData := make([]interface{}, newLength)
			if i <= length {
				copy(newData[:], q.data[q.pos:i])
			} else {
				n := copy(newData[:], q.data[q.pos:length])
				copy(newData[n:], q.data[:i-length])
			}
			q.pos = 0
			i = q.count
			q.data = newData
			length = newLength
		}
		if length <= i {
			i -= length
		}
		q.data[i] = v
		if q.count == 0 {
			q.nonEmpty.Broadcast()
		}
		q.count++
		added = true
	}
	q.mu.Unlock()
	return added
}

// Get removes and returns the front element of *q, unless the queue stays
// empty through absDeadline, in which case it returns (nil, false).
func (q *queue) Get(absDeadline time.Time) (v interface{}, ok bool) {
	q.mu.Lock()
	for q.count == 0 && q.nonEmpty.WaitWithDeadline(&q.mu, absDeadline) == nsync.OK {
	}
	if q.count != 0 {
		v = q.data[q.pos]
		q.data[q.pos] = nil
		if q.count == q.Limit {
			q.nonFull.Broadcast()
		}
		q.pos++
		q.count--
		if q.pos == len(q.data) {
			q.pos = 0
		}
		ok = true
	}
	q.mu.Unlock()
	return v, ok
}

// producerN puts count integers on *q: start*3, (start+1)*3, (start+2)*3...
func producerN(t *testing.T, q *queue, start int, count int) {
	for i := 0; i != count; i++ {
		if !q.Put((start+i)*3, nsync.NoDeadline) {
			t.Errorf("queue.Put() returned false with no deadline")
			return
		}
	}
}

// consumerN gets count integers from *q and checks that they arrive in
// order, as the sequence start*3, (start+1)*3, (start+2)*3...
func consumerN(t *testing.T, q *queue, start int, count int) {
	for i := 0; i != count; i++ {
		v, ok := q.Get(nsync.NoDeadline)
		if !ok {
			t.Fatalf("queue.Get() returned false with no deadline")
		}
		x, isInt := v.(int)
		if !isInt {
			t.Fatalf("queue.Get() returned non integer value; wanted int %d, got %#v", (start+i)*3, v)
		}
		if x != (start+i)*3 {
			t.Fatalf("queue.Get() returned bad value; want %d, got %d", (start+i)*3, x)
		}
	}
}

// TestCVProducerConsumer streams integers from a producer thread to a
// consumer thread through queues of widely varying capacity: Limit 1 forces
// a full handoff per element, while the largest limits mostly exercise the
// grow path and the not-empty wait.
func TestCVProducerConsumer(t *testing.T) {
	const n = 300000
	for _, limit := range []int{1, 10, 100, 1000, 10000, 100000, 1000000} {
		limit := limit
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			q := queue{Limit: limit}
			go producerN(t, &q, 0, n)
			consumerN(t, &q, 0, n)
		})
	}
}

// TestCVDeadline checks how tightly WaitWithDeadline honors its deadline.
func TestCVDeadline(t *testing.T) {
	var mu nsync.Mu
	var cv nsync.CV

	// How aggressively the timeout is policed.  Early wakeups are a
	// correctness bug; late ones mostly reflect scheduling delays, so a few
	// are tolerated.
	const tooEarly time.Duration = 1 * time.Millisecond
	const tooLate time.Duration = 35 * time.Millisecond
	const tooLateAllowed int = 3

	var tooLateViolations int
	mu.Lock()
	for i := 0; i != 50; i++ {
		startTime := time.Now()
		expectedEndTime := startTime.Add(87 * time.Millisecond)
		if cv.WaitWithDeadline(&mu, expectedEndTime) != nsync.Expired {
			t.Fatalf("cv.Wait() returns non-Expired for a timeout")
		}
		endTime := time.Now()
		if endTime.Before(expectedEndTime.Add(-tooEarly)) {
			t.Errorf("cv.WaitWithDeadline() returned %v too early", expectedEndTime.Sub(endTime))
		}
		if endTime.After(expectedEndTime.Add(tooLate)) {
			tooLateViolations++
		}
	}
	mu.Unlock()
	if tooLateViolations > tooLateAllowed {
		t.Errorf("cv.WaitWithDeadline() returned too late %d times", tooLateViolations)
	}
}
