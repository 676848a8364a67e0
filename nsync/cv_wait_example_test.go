// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Example use of CV waits: a priority queue of strings whose remove
// operation gives up at a deadline.

package nsync_test

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/luoyongjiee/Jamvm/nsync"
)

// stringHeap implements heap.Interface over strings.
type stringHeap []string

func (h stringHeap) Len() int               { return len(h) }
func (h stringHeap) Less(i int, j int) bool { return h[i] < h[j] }
func (h stringHeap) Swap(i int, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stringHeap) Push(x interface{})    { *h = append(*h, x.(string)) }
func (h *stringHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[0 : n-1]
	return s
}

// A StringPriorityQueue emits the lexicographically least of the strings it
// currently holds.
type StringPriorityQueue struct {
	nonEmpty nsync.CV // signalled when the heap stops being empty
	mu       nsync.Mu // protects heap
	heap     stringHeap
}

// Add adds s to the queue *q.
func (q *StringPriorityQueue) Add(s string) {
	q.mu.Lock()
	if q.heap.Len() == 0 {
		q.nonEmpty.Broadcast()
	}
	heap.Push(&q.heap, s)
	q.mu.Unlock()
}

// RemoveWithDeadline waits until *q is non-empty, then removes its least
// string and returns it with true; if absDeadline arrives first it returns
// ("", false).
func (q *StringPriorityQueue) RemoveWithDeadline(absDeadline time.Time) (s string, ok bool) {
	q.mu.Lock()
	for q.heap.Len() == 0 && q.nonEmpty.WaitWithDeadline(&q.mu, absDeadline) == nsync.OK {
	}
	if q.heap.Len() != 0 {
		s = heap.Pop(&q.heap).(string)
		ok = true
	}
	q.mu.Unlock()
	return s, ok
}

// addAndWait adds each of the strings s to *q, sleeping delay between
// additions.
func addAndWait(q *StringPriorityQueue, delay time.Duration, s ...string) {
	for i := range s {
		q.Add(s[i])
		time.Sleep(delay)
	}
}

// removeAndPrint prints the first string removable from *q within delay, or
// "timeout <delay>" when nothing arrives in time.
func removeAndPrint(q *StringPriorityQueue, delay time.Duration) {
	if s, ok := q.RemoveWithDeadline(time.Now().Add(delay)); ok {
		fmt.Printf("%s\n", s)
	} else {
		fmt.Printf("timeout %v\n", delay)
	}
}

// ExampleCV_Wait feeds strings through a StringPriorityQueue on a timer and
// drains them with assorted deadlines; see RemoveWithDeadline above for the
// CV wait loop.
func ExampleCV_Wait() {
	var q StringPriorityQueue

	go addAndWait(&q, 500*time.Millisecond, "one", "two", "three", "four", "five")

	time.Sleep(1100 * time.Millisecond) // "one", "two" and "three" are queued by now; "four" is not

	removeAndPrint(&q, 1*time.Second)        // gets "one"
	removeAndPrint(&q, 1*time.Second)        // gets "three", the least of the remaining two
	removeAndPrint(&q, 1*time.Second)        // gets "two"
	removeAndPrint(&q, 100*time.Millisecond) // times out: 1.1s < 3*0.5s, so "four" hasn't been added
	removeAndPrint(&q, 1*time.Second)        // gets "four"
	removeAndPrint(&q, 100*time.Millisecond) // times out: 0.1s < 0.5s
	removeAndPrint(&q, 1*time.Second)        // gets "five"
	removeAndPrint(&q, 1*time.Second)        // times out: the queue is drained
	// Output:
	// one
	// three
	// two
	// timeout 100ms
	// four
	// timeout 100ms
	// five
	// timeout 1s
}
