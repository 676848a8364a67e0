// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdline2

import (
	"fmt"
	"io"
	"os"
	"strconv"
)

// Env is the environment for command parsing and running.  Typically NewEnv is
// used to produce a default environment.  The environment may be explicitly set
// for finer control; e.g. in tests.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Vars   map[string]string // Environment variables
	Usage  func(io.Writer)
}

// NewEnv returns a new environment based on the underlying operating system.
func NewEnv() *Env {
	return &Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Vars:   envVarsFromOS(),
		Usage:  func(w io.Writer) { fmt.Fprintf(w, "usage error\n") },
	}
}

func envVarsFromOS() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		for ix := 0; ix < len(kv); ix++ {
			if kv[ix] == '=' {
				vars[kv[:ix]] = kv[ix+1:]
				break
			}
		}
	}
	return vars
}

// UsageErrorf prints the error message represented by the printf-style format
// and args, followed by the output of the env.Usage function.  Returns ErrUsage
// to make it easy to use from within the Runner.Run function.
func (e *Env) UsageErrorf(format string, args ...interface{}) error {
	return usageErrorf(e.Stderr, e.Usage, format, args...)
}

func usageErrorf(w io.Writer, usage func(io.Writer), format string, args ...interface{}) error {
	fmt.Fprint(w, "ERROR: ")
	fmt.Fprintf(w, format, args...)
	fmt.Fprint(w, "\n\n")
	if usage != nil {
		usage(w)
	}
	return ErrUsage
}

// defaultWidth is a reasonable default for the output width in runes, used
// when the terminal width is unknown.
const defaultWidth = 80

// width returns the output width to format usage text to.  The CMDLINE_WIDTH
// environment variable overrides the default; set it to a negative value for
// unlimited width.
func (e *Env) width() int {
	if width, err := strconv.Atoi(e.Vars["CMDLINE_WIDTH"]); err == nil && width != 0 {
		return width
	}
	if width, err := strconv.Atoi(e.Vars["COLUMNS"]); err == nil && width > 0 {
		return width
	}
	return defaultWidth
}

// style returns the help output style.  The CMDLINE_STYLE environment variable
// overrides the default of styleCompact.
func (e *Env) style() style {
	style := styleCompact
	style.Set(e.Vars["CMDLINE_STYLE"])
	return style
}

// style describes the formatting style for usage descriptions.
type style int

const (
	styleCompact style = iota // Default style, good for compact cmdline output.
	styleFull                 // Similar to compact but shows all global flags.
	styleGoDoc                // Style good for godoc processing.
)

// String returns the string representation of the style, implementing the
// flag.Value interface.
func (s *style) String() (str string) {
	switch *s {
	case styleCompact:
		str = "compact"
	case styleFull:
		str = "full"
	case styleGoDoc:
		str = "godoc"
	default:
		panic(fmt.Errorf("unhandled style %d", *s))
	}
	return
}

// Set implements the flag.Value interface method.
func (s *style) Set(value string) error {
	switch value {
	case "compact":
		*s = styleCompact
	case "full":
		*s = styleFull
	case "godoc":
		*s = styleGoDoc
	default:
		return fmt.Errorf("unknown style %q", value)
	}
	return nil
}
