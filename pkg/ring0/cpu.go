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

package ring0

import (
	"fmt"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/kcontext"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/trap"
)

// CPU is the per-core kernel state.
type CPU struct {
	kernel *Kernel

	// Core is the hardware thread.
	Core *cpu.Core

	// Area is the core's per-CPU area.
	Area *percpu.Area

	// Trap runs the core's trap state machine.
	Trap *trap.Machine

	// Devices are the core's interrupt controller and timer.
	Devices *devices.Set

	log log.Logger

	stack      addr.PhysAddr
	stackPages uint64
}

// Init initializes a core: it is reset to the architecture's boot state,
// given the kernel page tables, its per-CPU area is created and bound, and
// its kernel stack and trap machine are set up.
func (c *CPU) Init(k *Kernel, id int, d *devices.Set) error {
	if d == nil {
		d = &devices.Set{}
	}
	c.kernel = k
	c.Devices = d
	c.log = log.CPULogger(k.Log, id)
	c.Core = &cpu.Core{ID: id}

	a := k.Arch
	a.ResetCore(c.Core)
	c.Core.MMU = a.MMU(k.alloc)
	a.SetKernelRoot(c.Core, k.PageTables.Root())
	c.Core.TLB.FlushAll()

	area, err := k.PerCPU.InitArea(id)
	if err != nil {
		return err
	}
	c.Area = area
	if err := k.PerCPU.Bind(c.Core); err != nil {
		return err
	}

	if err := c.allocStack(); err != nil {
		return err
	}
	a.Trap().SetSP(c.Core, uint64(c.StackTop()))

	c.Trap = trap.NewMachine(trap.Config{
		Core:      c.Core,
		Arch:      a.Trap(),
		Switcher:  a.Switcher(),
		Memory:    k.Memory,
		DirectMap: a.DirectMap(),
		PerCPU:    k.PerCPU,
		Devices:   d,
		Frames:    k.Frames,
		Handler:   k.Hooks,
		Log:       c.log,
	})
	if err := k.register(c); err != nil {
		return err
	}
	c.log.Infof("online: per-CPU area %v, stack top %v", area.Base(), c.StackTop())
	return nil
}

func (c *CPU) allocStack() error {
	k := c.kernel
	pages := uint64(k.StackPages)
	var (
		p   addr.PhysAddr
		err error
	)
	if ca, ok := k.Frames.(frame.ContiguousAllocator); ok && pages > 1 {
		p, err = ca.AllocContiguous(pages)
	} else {
		pages = 1
		p, err = k.Frames.Alloc()
	}
	if err != nil {
		return fmt.Errorf("core %d: allocating kernel stack: %w", c.Core.ID, err)
	}
	c.stack = p
	c.stackPages = pages
	return nil
}

// ID returns the core number.
func (c *CPU) ID() int {
	return c.Core.ID
}

// Kernel returns the kernel c belongs to.
func (c *CPU) Kernel() *Kernel {
	return c.kernel
}

// StackTop returns the kernel's virtual address of the top of the core's
// kernel stack.
func (c *CPU) StackTop() addr.VirtAddr {
	return c.kernel.Arch.DirectMap().Virt(c.stack.Add(c.stackPages << addr.PageShift))
}

// StackBottom returns the kernel's virtual address of the lowest byte of
// the core's kernel stack.
func (c *CPU) StackBottom() addr.VirtAddr {
	return c.kernel.Arch.DirectMap().Virt(c.stack)
}

// Switcher returns the architecture's context switch primitive.
func (c *CPU) Switcher() kcontext.Switcher {
	return c.kernel.Arch.Switcher()
}

// SwitchTo switches the core from one kernel context to another with local
// interrupts masked.
func (c *CPU) SwitchTo(from, to kcontext.Context) {
	kcontext.SwitchNoIRQ(c.Core, c.Switcher(), from, to)
}

// Activate makes pt the core's active address space.
func (c *CPU) Activate(pt *pagetables.PageTables) {
	kcontext.Activate(c.Core, c.Switcher(), pt)
}
