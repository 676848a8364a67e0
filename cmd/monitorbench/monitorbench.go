// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"sync"
	"time"

	"github.com/echa/log"
	"github.com/spf13/pflag"

	"github.com/luoyongjiee/Jamvm/cmd/pflagvar"
	"github.com/luoyongjiee/Jamvm/cmdline2"
	"github.com/luoyongjiee/Jamvm/monitor"
	"github.com/luoyongjiee/Jamvm/monitorpool"
	"github.com/luoyongjiee/Jamvm/timing"
	"github.com/luoyongjiee/Jamvm/vmsync"
)

func main() {
	cmdline2.Main(cmdRoot)
}

var cmdRoot = &cmdline2.Command{
	Name:  "monitorbench",
	Short: "stresses and measures the object synchronization core",
	Long: `
Command monitorbench drives the object synchronization core through its
thin-lock, inflation, deflation and wait/notify paths under configurable
load, and reports phase timings and monitor cache statistics.
`,
	Children: []*cmdline2.Command{cmdContend, cmdWaitNotify},
}

var cmdContend = &cmdline2.Command{
	Runner: cmdline2.RunnerFunc(runContend),
	Name:   "contend",
	Short:  "hammer lock/unlock pairs across threads and objects",
	Long: `
Contend spawns a set of threads that repeatedly lock and unlock a shared set
of objects.  A single thread on many objects exercises the thin fast path; a
few threads on one object drives inflation, the FLC hand-off and deflation.
Recursive depth greater than the thin count limit forces inflation by
saturation.
`,
}

var cmdWaitNotify = &cmdline2.Command{
	Runner: cmdline2.RunnerFunc(runWaitNotify),
	Name:   "waitnotify",
	Short:  "pass a token among waiting threads via wait/notifyAll",
	Long: `
Waitnotify parks a set of threads on one object and circulates a token among
them: each thread waits for its turn, takes it, and wakes the others.  Every
round trip is one wait plus one notifyAll per thread, all on an inflated
monitor.
`,
}

var contendFlags struct {
	Threads    int  `cmdline:"threads,8,number of locking threads"`
	Objects    int  `cmdline:"objects,64,number of distinct objects to lock"`
	Iterations int  `cmdline:"iterations,100000,lock/unlock pairs per thread"`
	Depth      int  `cmdline:"depth,1,recursive lock depth per pair"`
	CacheSize  int  `cmdline:"cache-size,32,'initial monitor cache size, a power of two'"`
	Verbose    bool `cmdline:"v,false,'trace inflation, deflation and cache activity'"`
}

var waitNotifyFlags struct {
	Waiters   int           `cmdline:"waiters,4,number of threads circulating the token"`
	Rounds    int           `cmdline:"rounds,1000,turns each thread takes"`
	Timeout   time.Duration `cmdline:"timeout,0s,'per-wait timeout; 0 waits for a notify'"`
	CacheSize int           `cmdline:"cache-size,32,'initial monitor cache size, a power of two'"`
	Verbose   bool          `cmdline:"v,false,'trace inflation, deflation and cache activity'"`
}

func init() {
	mustRegister(&cmdContend.Flags, &contendFlags)
	mustRegister(&cmdWaitNotify.Flags, &waitNotifyFlags)
}

// mustRegister binds a command's tagged flag struct to its flag set.  The
// struct registers through pflagvar onto a pflag set, which is then merged
// into the command's stdlib set, so the same struct also works for embedders
// that parse with pflag directly.
func mustRegister(fs *flag.FlagSet, flags interface{}) {
	pfs := pflag.NewFlagSet("", pflag.ContinueOnError)
	if err := pflagvar.RegisterFlagsInStruct(pfs, "cmdline", flags); err != nil {
		panic(err)
	}
	pfs.VisitAll(func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			fs.Var(boolFlagValue{f.Value}, f.Name, f.Usage)
		} else {
			fs.Var(f.Value, f.Name, f.Usage)
		}
	})
}

// boolFlagValue marks a merged pflag bool so the stdlib parser accepts it
// without an explicit value.
type boolFlagValue struct{ pflag.Value }

func (boolFlagValue) IsBoolFlag() bool { return true }

func setVerbose(verbose bool) {
	if !verbose {
		return
	}
	log.SetLevel(log.LevelTrace)
	vmsync.UseLogger(log.Log)
	monitorpool.UseLogger(log.Log)
}

func runContend(env *cmdline2.Env, args []string) error {
	setVerbose(contendFlags.Verbose)
	timer := timing.NewTimer("contend")

	core := vmsync.NewCore(contendFlags.CacheSize)
	objs := make([]*vmsync.Object, contendFlags.Objects)
	for i := range objs {
		objs[i] = &vmsync.Object{}
	}

	timer.Push("run")
	var wg sync.WaitGroup
	for i := 0; i < contendFlags.Threads; i++ {
		wg.Add(1)
		self := &monitor.Thread{ID: uint32(i + 1)}
		go func() {
			defer wg.Done()
			for n := 0; n < contendFlags.Iterations; n++ {
				obj := objs[n%len(objs)]
				for d := 0; d < contendFlags.Depth; d++ {
					core.Lock(obj, self)
				}
				for d := 0; d < contendFlags.Depth; d++ {
					core.Unlock(obj, self)
				}
			}
		}()
	}
	wg.Wait()
	timer.Pop()
	timer.Finish()

	elapsed := timer.Root().Child(0).Duration(time.Now())
	pairs := contendFlags.Threads * contendFlags.Iterations * contendFlags.Depth
	fmt.Fprintf(env.Stdout, "%d lock/unlock pairs in %v (%.0f pairs/s)\n",
		pairs, elapsed, float64(pairs)/elapsed.Seconds())
	fmt.Fprintf(env.Stdout, "monitor cache entries: %d\n", core.MonitorCount())
	fmt.Fprint(env.Stdout, timer)
	return nil
}

func runWaitNotify(env *cmdline2.Env, args []string) error {
	setVerbose(waitNotifyFlags.Verbose)
	timer := timing.NewTimer("waitnotify")

	core := vmsync.NewCore(waitNotifyFlags.CacheSize)
	obj := &vmsync.Object{}
	waiters := waitNotifyFlags.Waiters

	// turn is only read and written while obj's monitor is held.
	turn := 0

	timer.Push("run")
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		self := &monitor.Thread{ID: uint32(i + 1)}
		slot := i
		go func() {
			defer wg.Done()
			for taken := 0; taken < waitNotifyFlags.Rounds; {
				core.Lock(obj, self)
				for turn%waiters != slot {
					// A timeout is not an error; the turn is simply re-checked.
					if err := core.Wait(obj, self, waitNotifyFlags.Timeout); err != nil {
						core.Unlock(obj, self)
						log.Errorf("waiter %d: %v", slot, err)
						return
					}
				}
				turn++
				taken++
				core.NotifyAll(obj, self)
				core.Unlock(obj, self)
			}
		}()
	}
	wg.Wait()
	timer.Pop()
	timer.Finish()

	elapsed := timer.Root().Child(0).Duration(time.Now())
	turns := waiters * waitNotifyFlags.Rounds
	fmt.Fprintf(env.Stdout, "%d token passes in %v (%.0f passes/s)\n",
		turns, elapsed, float64(turns)/elapsed.Seconds())
	fmt.Fprintf(env.Stdout, "monitor cache entries: %d\n", core.MonitorCount())
	fmt.Fprint(env.Stdout, timer)
	return nil
}
