// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cmdline2 implements data-driven command-line programs with
// built-in help.
//
// A program is described as a tree of Command values: the root names the
// program, leaves carry a Runner, and interior nodes carry Children.  The
// syntax for every program is then:
//
//	command [flags] [subcommand [flags]]* [args]
//
// Each sequence of flags binds to the command immediately preceding it.
// Flags registered on flag.CommandLine are treated as global flags and are
// accepted anywhere a command-specific flag is.
//
// Usage documentation is generated from the tree: it is reachable through
// the standard -h/-help flags, and through a "help" subcommand that is
// appended automatically to every command that has children and no "help"
// child of its own.
//
// Pitfalls
//
// This package must be in full control of flag parsing; calling cmdline2.Main
// from main takes care of it.  Calling flag.Parse before Main or Parse breaks
// the merging of command-specific and global flags: the root command's flags
// must be merged with the global set before the root can be parsed, so a
// prior flag.Parse fails on any root-command flag it doesn't know.  If
// initialization is needed between parsing and running, call Parse and then
// run the returned runner yourself.
package cmdline2

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// Command is one node of a command-line program.  Interior nodes set
// Children; leaves set Runner; setting both or neither is an error reported
// at parse time.
type Command struct {
	Name     string       // Name of the command.
	Short    string       // Short description, shown in help called on parent.
	Long     string       // Long description, shown in help called on itself.
	Flags    flag.FlagSet // Flags for the command.
	ArgsName string       // Name of the args, shown in usage line.
	ArgsLong string       // Long description of the args, shown in help.

	// Children of the command, for non-leaf commands.  The command graph
	// must be a tree: every command has at most one parent, and no cycles.
	Children []*Command

	// Runner for leaf commands.  Use RunnerFunc to adapt a plain function.
	Runner Runner

	// Topics are extra help-only entries reachable via the help command.
	Topics []Topic
}

// Runner is the interface for running a leaf command.  Returning ErrExitCode
// makes the program exit with that specific code.
type Runner interface {
	Run(env *Env, args []string) error
}

// RunnerFunc adapts a regular function into a Runner.
type RunnerFunc func(*Env, []string) error

// Run implements Runner by calling f(env, args).
func (f RunnerFunc) Run(env *Env, args []string) error {
	return f(env, args)
}

// Topic is a help topic accessed via the help command.
type Topic struct {
	Name  string // Name of the topic.
	Short string // Short description, shown in help for the command.
	Long  string // Long description, shown in help for this topic.
}

// Main parses os.Args[1:] against the command tree rooted at root, runs the
// resulting runner against an environment built from the operating system,
// and exits the process with 0 on success or non-zero on error.
//
// Most main packages reduce to:
//
//	func main() {
//		cmdline2.Main(root)
//	}
func Main(root *Command) {
	env := NewEnv()
	err := ParseAndRun(root, env, os.Args[1:])
	os.Exit(ExitCode(err, env.Stderr))
}

// Parse resolves args against the command tree rooted at root down to a leaf
// command, parsing each command's flags (merged with the global flags) as the
// tree is descended.  On success it returns the leaf's runner and the
// remaining positional args, and env.Usage is left producing the usage
// message for that leaf.
//
// Parse is only needed when something must happen between parsing and
// running; otherwise call Main.  Parse sets flag.CommandLine to the parsed
// root flag set, so flag.Parsed reports true afterwards.
func Parse(root *Command, env *Env, args []string) (Runner, []string, error) {
	// Until parsing reaches a leaf, usage errors report against the root.
	path := []*Command{root}
	env.Usage = makeHelpRunner(path, env, flag.CommandLine).usageFunc
	if err := cleanTree(path); err != nil {
		return nil, nil, err
	}
	cleanFlags(flag.CommandLine)
	runner, args, globals, err := root.parse(nil, env, args, flag.CommandLine)
	if err != nil {
		return nil, nil, err
	}
	flag.CommandLine = globals
	return runner, args, nil
}

// ParseAndRun calls Parse followed by Run on the returned runner.
func ParseAndRun(root *Command, env *Env, args []string) error {
	runner, args, err := Parse(root, env, args)
	if err != nil {
		return err
	}
	return runner.Run(env, args)
}

// cleanTree trims the whitespace that multi-line raw literals carry around
// every description in the tree, and verifies each command is either a leaf
// or an interior node.
func cleanTree(path []*Command) error {
	cmd, cmdPath := path[len(path)-1], pathName(path)
	for _, s := range []*string{
		&cmd.Name, &cmd.Short, &cmd.Long, &cmd.ArgsName, &cmd.ArgsLong,
	} {
		*s = strings.TrimSpace(*s)
	}
	for tx := range cmd.Topics {
		topic := &cmd.Topics[tx]
		topic.Name = strings.TrimSpace(topic.Name)
		topic.Short = strings.TrimSpace(topic.Short)
		topic.Long = strings.TrimSpace(topic.Long)
	}
	cleanFlags(&cmd.Flags)
	// Exactly one of Children and Runner must be set; the parse logic
	// relies on this invariant.
	switch hasC, hasR := len(cmd.Children) > 0, cmd.Runner != nil; {
	case hasC && hasR:
		return fmt.Errorf("%v: both Children and Runner specified", cmdPath)
	case !hasC && !hasR:
		return fmt.Errorf("%v: neither Children nor Runner specified", cmdPath)
	}
	for _, child := range cmd.Children {
		if err := cleanTree(append(path, child)); err != nil {
			return err
		}
	}
	return nil
}

func cleanFlags(flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		f.Usage = strings.TrimSpace(f.Usage)
	})
}

func pathName(path []*Command) string {
	name := path[0].Name
	for _, cmd := range path[1:] {
		name += " " + cmd.Name
	}
	return name
}

func (cmd *Command) parse(path []*Command, env *Env, args []string, globals *flag.FlagSet) (Runner, []string, *flag.FlagSet, error) {
	path = append(path, cmd)
	cmdPath := pathName(path)
	runHelp := makeHelpRunner(path, env, globals)
	env.Usage = runHelp.usageFunc

	// Parse the merged command-specific and global flags.
	flags := newSilentFlagSet(cmd.Name)
	mergeFlags(flags, &cmd.Flags)
	mergeFlags(flags, globals)
	switch err := flags.Parse(args); {
	case err == flag.ErrHelp:
		return runHelp, nil, flags, nil
	case err != nil:
		return nil, nil, nil, env.UsageErrorf("%s: %v", cmdPath, err)
	}
	args = flags.Args()

	if len(cmd.Children) > 0 {
		// Interior node: descend into the named child, or into the
		// implicit help command every interior node carries.
		if len(args) == 0 {
			return nil, nil, nil, env.UsageErrorf("%s: no command specified", cmdPath)
		}
		subName, subArgs := args[0], args[1:]
		for _, child := range cmd.Children {
			if child.Name == subName {
				runner, args, _, err := child.parse(path, env, subArgs, globals)
				return runner, args, flags, err
			}
		}
		if subName == helpName {
			runner, args, _, err := runHelp.newCommand().parse(path, env, subArgs, globals)
			return runner, args, flags, err
		}
		return nil, nil, nil, env.UsageErrorf("%s: unknown command %q", cmdPath, subName)
	}

	// Leaf command.
	if len(args) > 0 && cmd.ArgsName == "" {
		return nil, nil, nil, env.UsageErrorf("%s: doesn't take arguments", cmdPath)
	}
	return cmd.Runner, args, flags, nil
}

// newSilentFlagSet returns a flag set that reports errors only through its
// Parse return value: ContinueOnError stops Parse from exiting the process,
// and the discarded output and empty Usage suppress the package's own
// messages, which this package formats itself.
func newSilentFlagSet(name string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.Usage = func() {}
	return flags
}

// mergeFlags copies src's flags into dst.  On a name collision the flag
// already in dst wins; flag.Var panics on duplicate registration, so the
// collision must be filtered here.
func mergeFlags(dst, src *flag.FlagSet) {
	src.VisitAll(func(f *flag.Flag) {
		if dst.Lookup(f.Name) == nil {
			dst.Var(f.Value, f.Name, f.Usage)
		}
	})
}

// ErrExitCode may be returned by Runner.Run to exit the program with a
// specific code.
type ErrExitCode int

// Error implements the error interface method.
func (x ErrExitCode) Error() string {
	return fmt.Sprintf("exit code %d", x)
}

// ErrUsage indicates a command usage error: unknown flags, subcommands or
// args.  It corresponds to exit code 2.
const ErrUsage = ErrExitCode(2)

// ExitCode returns the exit code corresponding to err:
//
//	0:    err is nil
//	code: err is ErrExitCode(code)
//	1:    anything else
//
// For the "anything else" case the error message is written to w when w is
// non-nil.
func ExitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}
	if code, ok := err.(ErrExitCode); ok {
		return int(code)
	}
	if w != nil {
		// ErrExitCode errors are deliberately not printed; "exit code N"
		// would just clutter the output.
		fmt.Fprintf(w, "ERROR: %v\n", err)
	}
	return 1
}
