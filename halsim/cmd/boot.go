// Copyright 2026 The PolyHAL Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/subcommands"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/boot"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/ring0"
	"polyhal.dev/hal/pkg/trap"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	arch    string
	cores   int
	console bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "Boot every core and run a self-check on each."
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - Boot the configured machine. Every core checks its
per-CPU area, takes a timer interrupt and makes a system call from user mode;
the primary core also maps and translates a user page.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.arch, "arch", "", "architecture, overriding the configuration.")
	f.IntVar(&b.cores, "cores", 0, "number of cores, overriding the configuration.")
	f.BoolVar(&b.console, "console", false, "mirror boot logs to the primary core's UART and print what it received.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if err := b.execute(ctx, args); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}

// trapCounter counts handled traps by kind. System calls return their own
// number.
type trapCounter struct {
	mu     sync.Mutex
	counts map[trap.Kind]int
}

// HandleTrap implements trap.Handler.HandleTrap.
func (tc *trapCounter) HandleTrap(f trap.Frame, t trap.Type) {
	if t.Kind == trap.SysCall {
		f.Set(trap.Ret, f.Get(trap.Syscall))
		f.SyscallOK()
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.counts[t.Kind]++
}

func (b *Boot) execute(ctx context.Context, args []any) error {
	conf := configFrom(args)
	a, err := lookupArch(conf, b.arch)
	if err != nil {
		return err
	}
	cores := conf.Cores
	if b.cores > 0 {
		cores = b.cores
	}

	hooks := &trapCounter{counts: make(map[trap.Kind]int)}
	cfg, err := bootConfig(conf, a, cores, hooks)
	if err != nil {
		return err
	}
	tmpl := percpu.NewTemplate()
	self := percpu.Declare(tmpl, "core", int64(-1))
	cfg.PerCPU = tmpl
	if _, v := a.Trap().Synthesize(trap.Of(trap.Timer)); v >= 0 {
		cfg.IRQs = append(cfg.IRQs, v)
	}

	var uart *devices.BufferConsole
	if b.console {
		uart, err = consoleLog(&cfg, conf.TimerInterval)
		if err != nil {
			return err
		}
	}

	var (
		mu      sync.Mutex
		checked []int
	)
	check := func(c *ring0.CPU) error {
		if err := selfCheck(c, self); err != nil {
			return fmt.Errorf("core %d: %w", c.ID(), err)
		}
		mu.Lock()
		defer mu.Unlock()
		checked = append(checked, c.ID())
		return nil
	}
	cfg.Secondary = check
	cfg.Main = func(c *ring0.CPU) error {
		if err := check(c); err != nil {
			return err
		}
		return mapCheck(c)
	}

	m, err := bootMachine(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	sort.Ints(checked)
	fmt.Fprintf(Output, "%s: %d cores online, self-check passed on %v\n", a.Name(), m.Kernel.CPUs(), checked)
	for _, r := range m.Regions.Regions() {
		fmt.Fprintf(Output, "  memory %v\n", r)
	}
	if bm, ok := m.Frames.(*frame.Bitmap); ok {
		st := bm.Stats()
		fmt.Fprintf(Output, "  frames: %d of %d free\n", st.Free, st.Total)
	}
	kinds := make([]trap.Kind, 0, len(hooks.counts))
	for k := range hooks.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(Output, "  traps: %v x%d\n", k, hooks.counts[k])
	}
	if uart != nil {
		fmt.Fprintf(Output, "console:\n%s", strings.ReplaceAll(uart.Output(), "\r\n", "\n"))
	}
	return nil
}

// consoleLog makes the boot logger also write to core 0's UART, which it
// returns.
func consoleLog(cfg *boot.Config, interval uint64) (*devices.BufferConsole, error) {
	uart := &devices.BufferConsole{}
	e, err := log.NewEmitter("text", &log.Writer{Next: log.ConsoleWriter{Sink: uart}})
	if err != nil {
		return nil, err
	}
	global := log.Log()
	l := &log.BasicLogger{Emitter: &log.MultiEmitter{global.Emitter, e}}
	l.SetLevel(log.Info)
	if global.IsLogging(log.Debug) {
		l.SetLevel(log.Debug)
	}
	cfg.Log = l
	cfg.Devices = func(core int) *devices.Set {
		d := devices.NewSimSet(interval)
		if core == 0 {
			d.Console = uart
		}
		return d
	}
	return uart, nil
}

// selfCheck verifies the per-CPU binding, takes a timer interrupt and makes
// a system call from user mode.
func selfCheck(c *ring0.CPU, self percpu.Var[int64]) error {
	k := c.Kernel()
	local, err := k.PerCPU.Local(c.Core)
	if err != nil {
		return err
	}
	if local.Base() != c.Area.Base() {
		return fmt.Errorf("per-CPU register holds %v, want %v", local.Base(), c.Area.Base())
	}
	self.Set(local, int64(c.ID()))
	if got := self.Get(c.Area); got != int64(c.ID()) {
		return fmt.Errorf("per-CPU variable reads %d", got)
	}

	m := c.Trap
	if got := m.Inject(trap.Of(trap.Timer)); got.Kind != trap.Timer {
		return fmt.Errorf("timer decoded as %v", got)
	}

	f, err := m.NewUserFrame(0x40_0000, 0x7fff_0000)
	if err != nil {
		return err
	}
	defer m.FreeUserFrame(f)
	stub := m.Arch()
	const sysno = 64
	f.Set(trap.Syscall, sysno)
	reason := m.EnterUser(f, func(*cpu.Core) cpu.Event {
		ev, _ := stub.Synthesize(trap.Of(trap.SysCall))
		return ev
	})
	if reason != trap.EscapeSysCall {
		return fmt.Errorf("system call escaped with %v", reason)
	}
	if got := f.Get(trap.Ret); got != sysno {
		return fmt.Errorf("system call returned %d, want %d", got, sysno)
	}
	return nil
}

// mapCheck maps a user page in a fresh address space and translates it
// through the core's MMU.
func mapCheck(c *ring0.CPU) error {
	k := c.Kernel()
	pt, err := k.NewPageTables()
	if err != nil {
		return err
	}
	defer pt.Destroy()
	p, err := k.Frames.Alloc()
	if err != nil {
		return err
	}
	defer k.Frames.Dealloc(p)

	const v = addr.VirtAddr(0x1000)
	if err := pt.MapPage(v, p, pagetables.UserReadWrite); err != nil {
		return err
	}
	c.Activate(pt)
	defer c.Activate(k.PageTables)
	got, err := c.Core.Translate(v.Add(0x10), cpu.Store)
	if err != nil {
		return err
	}
	if got != p.Add(0x10) {
		return fmt.Errorf("MMU translated %v to %v, want %v", v, got, p.Add(0x10))
	}
	return nil
}
