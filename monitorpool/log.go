// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package monitorpool

import "github.com/echa/log"

// logger is initialized with no output filters: the package logs nothing by
// default until a caller requests it, so cache miss and scavenge tracing
// costs nothing in production embedders.
var logger log.Logger = log.Log

func init() {
	DisableLog()
}

// DisableLog disables all library log output.
func DisableLog() {
	logger = log.Disabled
}

// UseLogger directs this package's logging to l.
func UseLogger(l log.Logger) {
	logger = l
}
