// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vmsync

import "github.com/echa/log"

// logger is initialized with no output filters: the package logs nothing by
// default until a caller requests it, so inflation, deflation and contention
// tracing costs nothing in production embedders.
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

// logClosure defers building an expensive trace string until the configured
// level would actually print it.
type logClosure func() string

func (c logClosure) String() string { return c() }

func newLogClosure(c func() string) logClosure { return logClosure(c) }
