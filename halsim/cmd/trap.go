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
	"strings"

	"github.com/google/subcommands"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/trap"
)

// defaultEvents are injected when no events are given.
const defaultEvents = "Breakpoint,SysCall,Timer,ExternalIRQ(5),StorePageFault(0x1000),LoadPageFault(0x2000),InstructionPageFault(0x3000)"

// Trap implements subcommands.Command for the "trap" command.
type Trap struct {
	arch   string
	events string
	user   bool
}

// Name implements subcommands.Command.Name.
func (*Trap) Name() string {
	return "trap"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Trap) Synopsis() string {
	return "Inject hardware events and print how they decode."
}

// Usage implements subcommands.Command.Usage.
func (*Trap) Usage() string {
	return `trap [flags] - Raise each event on a booted core, first in kernel mode and
then from user mode, and print the decoded trap and the escape reason.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Trap) SetFlags(f *flag.FlagSet) {
	f.StringVar(&t.arch, "arch", "", "architecture, overriding the configuration.")
	f.StringVar(&t.events, "events", defaultEvents, "comma separated trap types to raise.")
	f.BoolVar(&t.user, "user", true, "also raise each event from user mode.")
}

// Execute implements subcommands.Command.Execute.
func (t *Trap) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if err := t.execute(ctx, args); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}

func parseEvents(s string) ([]trap.Type, error) {
	var events []trap.Type
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		ev, err := trap.ParseType(name)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (t *Trap) execute(ctx context.Context, args []any) error {
	conf := configFrom(args)
	a, err := lookupArch(conf, t.arch)
	if err != nil {
		return err
	}
	events, err := parseEvents(t.events)
	if err != nil {
		return err
	}

	var irqs []int
	for _, ev := range events {
		if _, v := a.Trap().Synthesize(ev); v >= 0 {
			irqs = append(irqs, v)
		}
		if ev.Kind == trap.ExternalIRQ {
			irqs = append(irqs, ev.Vector)
		}
	}
	cfg, err := bootConfig(conf, a, 1, trap.HandlerFunc(func(f trap.Frame, ty trap.Type) {
		fmt.Fprintf(Output, "  handler: %v at pc %#x, user %t\n", ty, f.Get(trap.PC), f.IsUser())
		if ty.Kind == trap.SysCall {
			f.SyscallOK()
		}
	}))
	if err != nil {
		return err
	}
	cfg.IRQs = irqs
	m, err := bootMachine(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	c, _ := m.Kernel.CPU(0)
	machine := c.Trap

	fmt.Fprintf(Output, "%s: kernel mode\n", a.Name())
	for _, ev := range events {
		got := machine.Inject(ev)
		fmt.Fprintf(Output, "%v -> %v\n", ev, got)
	}
	if !t.user {
		return nil
	}

	const (
		entry = 0x40_0000
		usp   = 0x7fff_0000
	)
	f, err := machine.NewUserFrame(entry, usp)
	if err != nil {
		return err
	}
	defer machine.FreeUserFrame(f)
	fmt.Fprintf(Output, "%s: user mode\n", a.Name())
	stub := machine.Arch()
	for _, ev := range events {
		reason := machine.EnterUser(f, func(*cpu.Core) cpu.Event {
			e, v := stub.Synthesize(ev)
			if v >= 0 {
				if r, ok := c.Devices.IRQ.(interface{ Raise(int) bool }); ok {
					r.Raise(v)
				}
			}
			return e
		})
		fmt.Fprintf(Output, "%v -> escape %v\n", ev, reason)
	}
	return nil
}
