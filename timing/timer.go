// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package timing tracks trees of named, non-overlapping time intervals, for
// phase reporting in long-running tools.
package timing

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// nowFunc is used rather than direct calls to time.Now to allow tests to inject
// different clock functions.
var nowFunc = time.Now

// Timer tracks a tree of hierarchical time intervals.  If you need to track
// overlapping time intervals, simply use separate Timers.
//
// Timer maintains a notion of a current interval, initialized to the root.  The
// tree of intervals is constructed by Push and Pop operations, which add and
// update intervals in the tree, while updating the currently referenced
// interval.  Finish should be called to finish all timing.
//
// The implementation records a timestamp only on calls to Push and Finish,
// assuming the delay between a Pop and the subsequent Push or Finish is
// negligible; this keeps the record a single flat slice with one entry per
// interval.
type Timer struct {
	points []point
	depth  int
	zero   time.Time
}

// point represents a single interval.  Since intervals are non-overlapping
// and adjacent, each point only records the start of the interval that
// follows it, as a delta from the timer's zero time.  If the next interval is
// at the same or smaller depth, nextStart is also the end time of this
// interval.
type point struct {
	name      string
	depth     int
	nextStart time.Duration
}

// stillOpen marks an interval whose end hasn't been recorded yet.
const stillOpen = time.Duration(-1 << 63)

// NewTimer returns a new Timer, with the root interval started and given the
// name name.
func NewTimer(name string) *Timer {
	return &Timer{
		points: []point{{name: name, depth: 0, nextStart: stillOpen}},
		zero:   nowFunc(),
	}
}

// Push appends a child with the given name and an open interval to the
// current interval, and updates the current interval to refer to the newly
// created child.
func (t *Timer) Push(name string) {
	t.depth++
	t.points[len(t.points)-1].nextStart = nowFunc().Sub(t.zero)
	t.points = append(t.points, point{
		name:      name,
		depth:     t.depth,
		nextStart: stillOpen,
	})
}

// Pop closes the current interval, and updates the current interval to refer
// to its parent.  Pop does nothing if the current interval is the root.
func (t *Timer) Pop() {
	if t.depth > 0 {
		t.depth--
	}
}

// Finish finishes all timing, closing all intervals including the root.
func (t *Timer) Finish() {
	t.depth = 0
	t.points[len(t.points)-1].nextStart = nowFunc().Sub(t.zero)
}

// Root returns the root interval.
func (t *Timer) Root() Interval {
	return Interval{
		points:   t.points,
		children: childIndexes(t.points),
		zero:     t.zero,
		start:    t.zero,
	}
}

// String returns a formatted string describing the tree of time intervals.
func (t *Timer) String() string {
	return t.Root().String()
}

// Interval is a named time interval with nested child intervals.  The
// children are non-overlapping and ordered from earliest to latest, and the
// start and end time of an interval always completely cover all of its
// children.
type Interval struct {
	points      []point
	children    []int
	zero, start time.Time
}

// childIndexes returns the indexes in points that are immediate children of
// the first point.  Points must be a subtree rooted at the first point; the
// depth of every point in points[1:] must be greater than the depth of the
// first point.
func childIndexes(points []point) (children []int) {
	if len(points) < 2 {
		return
	}
	target := points[0].depth + 1
	for index := 1; index < len(points); index++ {
		if points[index].depth == target {
			children = append(children, index)
		}
	}
	return
}

// Name returns the name of the interval.
func (i Interval) Name() string { return i.points[0].name }

// Start returns the start time of the interval.
func (i Interval) Start() time.Time { return i.start }

// End returns the end time of the interval, or zero if the interval hasn't
// ended yet (i.e. it's still open).
func (i Interval) End() time.Time {
	if next := i.points[len(i.points)-1].nextStart; next != stillOpen {
		return i.zero.Add(next)
	}
	return time.Time{}
}

// NumChild returns the number of children contained in this interval.
func (i Interval) NumChild() int { return len(i.children) }

// Child returns the child interval at the given index.  Valid children are in
// the range [0, NumChild).
func (i Interval) Child(index int) Interval {
	beg := i.children[index]
	end := len(i.points)
	if index+1 < len(i.children) {
		end = i.children[index+1]
	}
	points := i.points[beg:end]
	return Interval{
		points:   points,
		children: childIndexes(points),
		zero:     i.zero,
		start:    i.zero.Add(i.points[beg-1].nextStart),
	}
}

// Duration returns the elapsed time between the interval's start and end if
// the interval is closed, otherwise the elapsed time between its start and
// now.  Now is passed in explicitly so the caller can use the same now time
// for many intervals; e.g. the IntervalPrinter computes the duration of all
// intervals against a single now time, for consistent output.
func (i Interval) Duration(now time.Time) time.Duration {
	end := i.End()
	if end.IsZero() {
		return now.Sub(i.start)
	}
	return end.Sub(i.start)
}

// String returns a formatted string describing the tree starting with the
// given interval.
func (i Interval) String() string {
	var buf bytes.Buffer
	IntervalPrinter{}.Print(&buf, i)
	return buf.String()
}

// IntervalPrinter is a pretty-printer for Intervals.  Example output:
//
//    00:00:01.000 root       98.000s       00:01:39.000
//    00:00:01.000    *           9.000s    00:00:10.000
//    00:00:10.000    foo        45.000s    00:00:55.000
//    00:00:10.000       *           5.000s 00:00:15.000
//    00:00:15.000       foo1       22.000s 00:00:37.000
//    00:00:37.000       foo2       18.000s 00:00:55.000
//    00:00:55.000    bar        25.000s    00:01:20.000
//    00:01:20.000    baz        19.000s    00:01:39.000
type IntervalPrinter struct {
	// TimeFormat is passed to time.Format to format the start and end times.
	// Defaults to "15:04:05.000" if the value is empty.
	TimeFormat string
	// Indent is the number of spaces to indent each successive depth in the tree.
	// Defaults to 3 spaces if the value is 0; set to a negative value for no
	// indent.
	Indent int
	// MinGap is the minimum duration for gaps to be shown between successive
	// entries; only gaps that are larger than this threshold will be shown.
	// Defaults to 1 millisecond if the value is 0; set to a negative duration to
	// show all gaps.
	MinGap time.Duration
}

// Print writes formatted output to w representing the tree rooted at i.
func (p IntervalPrinter) Print(w io.Writer, i Interval) error {
	// Set default options for zero fields.
	if p.TimeFormat == "" {
		p.TimeFormat = "15:04:05.000"
	}
	switch {
	case p.Indent < 0:
		p.Indent = 0
	case p.Indent == 0:
		p.Indent = 3
	}
	switch {
	case p.MinGap < 0:
		p.MinGap = 0
	case p.MinGap == 0:
		p.MinGap = time.Millisecond
	}
	return p.print(w, i, p.collectPrintStats(i), i.Start(), 0)
}

func (p IntervalPrinter) print(w io.Writer, i Interval, stats *printStats, prevEnd time.Time, depth int) error {
	// Print gap before children, if a gap exists.
	if gap := i.Start().Sub(prevEnd); gap >= p.MinGap {
		if err := p.row(w, "*", prevEnd, i.Start(), gap, stats, depth); err != nil {
			return err
		}
	}
	// Print the current interval.
	if err := p.row(w, i.Name(), i.Start(), i.End(), i.Duration(stats.Now), stats, depth); err != nil {
		return err
	}
	// Print children recursively.
	for child := 0; child < i.NumChild(); child++ {
		prevEnd = i.Start()
		if child > 0 {
			prevEnd = i.Child(child - 1).End()
		}
		if err := p.print(w, i.Child(child), stats, prevEnd, depth+1); err != nil {
			return err
		}
	}
	// Print gap after children, if a gap exists.
	if last := i.NumChild() - 1; last >= 0 {
		lastChild := i.Child(last)
		if gap := i.End().Sub(lastChild.End()); gap >= p.MinGap {
			if err := p.row(w, "*", lastChild.End(), i.End(), gap, stats, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p IntervalPrinter) row(w io.Writer, name string, start, end time.Time, dur time.Duration, stats *printStats, depth int) error {
	pad := strings.Repeat(" ", p.Indent*depth)
	pad2 := strings.Repeat(" ", p.Indent*(stats.MaxDepth-depth))
	endStr := stats.NowLabel
	if !end.IsZero() {
		endStr = end.Format(p.TimeFormat)
	}
	_, err := fmt.Fprintf(w, "%s %-*s %s%*.3fs%s %s\n", start.Format(p.TimeFormat), stats.NameWidth, pad+name, pad, stats.DurationWidth, float64(dur)/float64(time.Second), pad2, endStr)
	return err
}

// collectPrintStats performs a walk through the tree rooted at i, collecting
// statistics along the way, to help align columns in the output.
func (p IntervalPrinter) collectPrintStats(i Interval) *printStats {
	stats := &printStats{
		Now:       nowFunc(),
		NameWidth: 1,
		NowLabel:  strings.Repeat("-", len(p.TimeFormat)-3) + "now",
	}
	stats.collect(i, p.Indent, i.Start(), 0)
	dur := fmt.Sprintf("%.3f", float64(stats.MaxDuration)/float64(time.Second))
	stats.DurationWidth = len(dur)
	return stats
}

type printStats struct {
	Now           time.Time
	NowLabel      string
	NameWidth     int
	MaxDuration   time.Duration
	DurationWidth int
	MaxDepth      int
}

func (s *printStats) collect(i Interval, indent int, prevEnd time.Time, depth int) {
	if x := len(i.Name()) + indent*depth; x > s.NameWidth {
		s.NameWidth = x
	}
	if x := i.Start().Sub(prevEnd); x > s.MaxDuration {
		s.MaxDuration = x
	}
	if x := i.Duration(s.Now); x > s.MaxDuration {
		s.MaxDuration = x
	}
	if x := depth; x > s.MaxDepth {
		s.MaxDepth = x
	}
	for child := 0; child < i.NumChild(); child++ {
		prevEnd = i.Start()
		if child > 0 {
			prevEnd = i.Child(child - 1).End()
		}
		s.collect(i.Child(child), indent, prevEnd, depth+1)
	}
}
