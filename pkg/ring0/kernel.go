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

// Package ring0 brings up the HAL's kernel state: the shared kernel page
// tables and per-CPU manager, and for each core its registers, per-CPU area,
// kernel stack and trap machine.
package ring0

import (
	"fmt"
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/physmem"
	"polyhal.dev/hal/pkg/trap"
)

// DefaultStackPages is the default kernel stack size of each core, in pages.
const DefaultStackPages = 4

// KernelOpts provides initialization options to Kernel.
type KernelOpts struct {
	// Arch is the architecture.
	Arch arch.Arch

	// Memory is physical memory.
	Memory *physmem.Arena

	// Frames allocates page tables, per-CPU areas, kernel stacks and user
	// trap frames.
	Frames frame.Allocator

	// PerCPU is the per-CPU template. Nil means an empty template.
	PerCPU *percpu.Template

	// StaticPerCPU is the boot core's reserved per-CPU region.
	StaticPerCPU addr.PhysAddr

	// StaticPerCPUSize is the size of the boot core's region.
	StaticPerCPUSize uint64

	// StackPages is the kernel stack size of each core. Zero means
	// DefaultStackPages.
	StackPages int

	// Hooks receive every decoded trap.
	Hooks trap.Handler

	// Log is the kernel logger. Nil means the global logger.
	Log log.Logger
}

// Kernel is the global kernel state.
type Kernel struct {
	KernelOpts

	// PageTables are the kernel page tables. Their global half is shared
	// by every address space created with NewPageTables.
	PageTables *pagetables.PageTables

	// PerCPU locates each core's per-CPU area.
	PerCPU *percpu.Manager

	alloc *pagetables.FrameAllocator

	mu   sync.Mutex
	cpus map[int]*CPU
}

// Init initializes a new kernel: the kernel page tables are built, with
// the linear map of all memory where the architecture requires it, and the
// per-CPU manager is created.
func (k *Kernel) Init(opts KernelOpts) error {
	if opts.Arch == nil || opts.Memory == nil || opts.Frames == nil || opts.Hooks == nil {
		panic("ring0.Kernel.Init: arch, memory, frames and hooks are required")
	}
	if opts.PerCPU == nil {
		opts.PerCPU = percpu.NewTemplate()
	}
	if opts.StackPages <= 0 {
		opts.StackPages = DefaultStackPages
	}
	if opts.Log == nil {
		opts.Log = log.Log()
	}
	k.KernelOpts = opts
	k.cpus = make(map[int]*CPU)
	k.alloc = pagetables.NewFrameAllocator(opts.Frames, opts.Memory)

	pt, err := pagetables.New(pagetables.Options{
		Format:    opts.Arch.Format(),
		Allocator: k.alloc,
	})
	if err != nil {
		return fmt.Errorf("allocating kernel page tables: %w", err)
	}
	k.PageTables = pt

	if opts.Arch.LinearMapInTables() {
		dm := opts.Arch.DirectMap()
		r := addr.VirtRange{
			Start: dm.Virt(opts.Memory.Base()),
			End:   dm.Virt(opts.Memory.End()),
		}
		if err := pt.MapRange(r, opts.Memory.Base(), pagetables.KernelRW); err != nil {
			pt.Destroy()
			return fmt.Errorf("mapping %v: %w", r, err)
		}
		opts.Log.Debugf("%s: linear map %v -> %v", opts.Arch.Name(), r, opts.Memory.Base())
	}

	k.PerCPU = percpu.NewManager(percpu.Config{
		Template:   opts.PerCPU,
		Memory:     opts.Memory,
		DirectMap:  opts.Arch.DirectMap(),
		Frames:     opts.Frames,
		Static:     opts.StaticPerCPU,
		StaticSize: opts.StaticPerCPUSize,
		Binder:     opts.Arch.Binder(),
	})
	opts.Log.Infof("%s: kernel page tables at %v", opts.Arch.Name(), pt.Root())
	return nil
}

// Allocator returns the table allocator shared by all page tables of k.
func (k *Kernel) Allocator() pagetables.Allocator {
	return k.alloc
}

// NewPageTables returns an address space sharing the kernel half.
func (k *Kernel) NewPageTables() (*pagetables.PageTables, error) {
	return pagetables.New(pagetables.Options{
		Format:    k.Arch.Format(),
		Allocator: k.alloc,
		Kernel:    k.PageTables,
	})
}

// CPU returns an initialized core.
func (k *Kernel) CPU(id int) (*CPU, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.cpus[id]
	return c, ok
}

// CPUs returns the number of initialized cores.
func (k *Kernel) CPUs() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.cpus)
}

func (k *Kernel) register(c *CPU) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.cpus[c.ID()]; ok {
		return fmt.Errorf("core %d is already initialized", c.ID())
	}
	k.cpus[c.ID()] = c
	return nil
}
