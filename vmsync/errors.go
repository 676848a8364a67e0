// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmsync

import "errors"

// ErrNotOwner is returned by Wait, Notify and NotifyAll when the calling
// thread does not hold obj's monitor. A hosting VM maps this to
// IllegalMonitorStateException; the core itself never panics for it,
// since it is a program error in the embedder, not in the core.
var ErrNotOwner = errors.New("vmsync: current thread does not own this object's monitor")

// ErrInterrupted is returned by Wait when the calling thread's interrupted
// flag was set, either before the call or while parked. A hosting VM maps
// this to InterruptedException.
var ErrInterrupted = errors.New("vmsync: wait interrupted")
