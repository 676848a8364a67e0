// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmsync

import "sync/atomic"

// Object is the two pieces of header state the synchronization core reads
// and mutates on every embedder's heap object: the lockword itself, and the
// FLC ("fat-lock contended") bit, which deliberately lives outside the
// lockword so signalling contention never forces an extra CAS loop on the
// thin-lock fast path.
//
// A zero Object is unlocked, thin, with no FLC pending: the state of a
// freshly allocated object.
type Object struct {
	lock uint64 // lockword.Word, read/written atomically
	flc  uint32 // 0 or 1, read/written atomically
}

// SetFLC sets the FLC bit, recording that some thread intends to force this
// object's lockword to inflate.
func (o *Object) SetFLC() { atomic.StoreUint32(&o.flc, 1) }

// ClearFLC clears the FLC bit. Only the thread performing an inflation
// should call this (see Core.inflate).
func (o *Object) ClearFLC() { atomic.StoreUint32(&o.flc, 0) }

// TestFLC reports whether the FLC bit is currently set.
func (o *Object) TestFLC() bool { return atomic.LoadUint32(&o.flc) != 0 }
