// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitorpool is the identity-keyed cache that hands out
// heavyweight monitors on demand: an open-addressed hash table, keyed by
// object identity, backed by a free list of monitors reclaimed from
// deflated (idle) locks.
package monitorpool

import (
	"sync"
	"unsafe"

	"github.com/luoyongjiee/Jamvm/monitor"
)

// InitialSize is the default starting table size. New always takes an
// explicit size; vmsync.NewCore passes InitialSize when given 0.
const InitialSize = 1 << 5

// ObjectGrainLog2 is the assumed log2 alignment of object addresses, used
// only to spread keys across table buckets; Find always confirms an exact
// key match afterward; it never trusts the hash alone for identity; so this
// does not need to be tuned for correctness, only for bucket distribution.
const ObjectGrainLog2 = 3

type entry struct {
	used bool
	hash uint64
	key  uintptr
	mon  *monitor.Monitor
}

// Pool is the monitor cache. Its zero value is not usable; call New.
type Pool struct {
	mu       sync.Mutex
	table    []entry
	count    int
	freeList *monitor.Monitor
}

// New returns a Pool with a table of the given initial size, which must be
// a power of two. Pass InitialSize for the default of 32.
func New(size int) *Pool {
	if size <= 0 || size&(size-1) != 0 {
		panic("monitorpool: size must be a positive power of two")
	}
	return &Pool{table: make([]entry, size)}
}

func key(obj unsafe.Pointer) (k uintptr, hash uint64) {
	k = uintptr(obj)
	return k, uint64(k) >> ObjectGrainLog2
}

// Find returns the monitor associated with obj, allocating and caching one
// if this is the first lookup for obj. The caller is responsible for taking
// the fat-lockword fast path itself (reading the embedded pointer directly)
// before ever calling Find, since Find always consults the cache.
//
// The probe notes the first stale (in_use == false) entry it passes for an
// object other than obj. On a genuine miss for obj, that entry's monitor is
// returned to the free list and its slot is reused instead of taking a new
// one; a hit scavenges nothing.
func (p *Pool) Find(obj unsafe.Pointer) *monitor.Monitor {
	k, hash := key(obj)

	p.mu.Lock()
	defer p.mu.Unlock()

	mask := uint64(len(p.table) - 1)
	idx := hash & mask
	reclaimAt := -1
	for p.table[idx].used {
		e := &p.table[idx]
		if e.key == k {
			e.mon.SetInUse(true)
			return e.mon
		}
		if reclaimAt == -1 && !e.mon.InUse() {
			reclaimAt = int(idx)
		}
		idx = (idx + 1) & mask
	}

	insertIdx := int(idx)
	if reclaimAt != -1 {
		// Repurpose the scavenged slot instead of growing the table; its
		// monitor goes through the free list and usually comes straight back
		// out of allocLocked below.
		insertIdx = reclaimAt
		logger.Tracef("monitorpool: scavenged slot %d for obj=%p", reclaimAt, obj)
		p.releaseLocked(p.table[insertIdx].mon)
	} else {
		p.count++
	}

	mon := p.allocLocked()
	p.table[insertIdx] = entry{used: true, hash: hash, key: k, mon: mon}
	logger.Debugf("monitorpool: miss for obj=%p, allocated mon=%p (live=%d)", obj, mon, p.count)
	if p.count*2 >= len(p.table) {
		p.growLocked()
	}
	return mon
}

// Alloc returns a monitor from the free list, or a freshly constructed one
// if the free list is empty. Ordinary callers should use Find, which calls
// this internally on a cache miss.
func (p *Pool) Alloc() *monitor.Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocLocked()
}

func (p *Pool) allocLocked() *monitor.Monitor {
	if p.freeList != nil {
		mon := p.freeList
		p.freeList = mon.Next
		mon.Next = nil
		mon.SetInUse(true)
		return mon
	}
	return monitor.New()
}

// releaseLocked returns mon to the free list. The caller must already know
// mon.InUse() is false: a deflated monitor's fields (owner, count, waiting,
// entering) are already zero at the point deflation set in_use false, so no
// reset beyond in_use is needed before reuse.
func (p *Pool) releaseLocked(mon *monitor.Monitor) {
	mon.Next = p.freeList
	p.freeList = mon
}

func (p *Pool) growLocked() {
	newTable := make([]entry, len(p.table)*2)
	mask := uint64(len(newTable) - 1)
	for i := range p.table {
		e := &p.table[i]
		if !e.used {
			continue
		}
		idx := e.hash & mask
		for newTable[idx].used {
			idx = (idx + 1) & mask
		}
		newTable[idx] = *e
	}
	p.table = newTable
}

// Len reports the number of live table slots (used, whether or not the
// monitor they reference is currently in_use). Exposed for tests and for
// monitorbench reporting.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
