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

package ring0_test

import (
	"testing"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/arch/archs"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/frame/frametest"
	"polyhal.dev/hal/pkg/memregion"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/physmem"
	"polyhal.dev/hal/pkg/ring0"
	"polyhal.dev/hal/pkg/trap"
)

const (
	memBase = addr.PhysAddr(0x8000_0000)
	memSize = 512 * addr.PageSize

	kernelVA = addr.VirtAddr(0xffff_ffff_c000_0000)
)

var nopHooks = trap.HandlerFunc(func(trap.Frame, trap.Type) {})

func newArena(t *testing.T) *physmem.Arena {
	t.Helper()
	mem, err := physmem.New(memBase, memSize)
	if err != nil {
		t.Fatalf("physmem.New failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	return mem
}

// newBitmap returns a bitmap allocator over memory after the static per-CPU
// page.
func newBitmap(t *testing.T) *frame.Bitmap {
	t.Helper()
	set := memregion.NewSet()
	if err := set.Add(memregion.Region{Start: memBase.Add(addr.PageSize), End: memBase.Add(memSize), Kind: memregion.Usable}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return frame.NewBitmap(set)
}

func newKernel(t *testing.T, a arch.Arch, frames frame.Allocator, stackPages int) *ring0.Kernel {
	t.Helper()
	k := &ring0.Kernel{}
	if err := k.Init(ring0.KernelOpts{
		Arch:             a,
		Memory:           newArena(t),
		Frames:           frames,
		StaticPerCPU:     memBase,
		StaticPerCPUSize: addr.PageSize,
		StackPages:       stackPages,
		Hooks:            nopHooks,
	}); err != nil {
		t.Fatalf("Kernel.Init failed: %v", err)
	}
	return k
}

func TestInitDefaults(t *testing.T) {
	a, _ := arch.Lookup("riscv64")
	k := newKernel(t, a, newBitmap(t), 0)
	if k.StackPages != ring0.DefaultStackPages {
		t.Errorf("StackPages = %d, want %d", k.StackPages, ring0.DefaultStackPages)
	}
	if k.PerCPU == nil || k.PerCPU.Template() == nil || k.Log == nil {
		t.Errorf("Init left per-CPU manager, template or logger unset")
	}
	if k.CPUs() != 0 {
		t.Errorf("CPUs() = %d before any CPU.Init", k.CPUs())
	}
}

func TestInitRequiresHooks(t *testing.T) {
	a, _ := arch.Lookup("riscv64")
	defer func() {
		if recover() == nil {
			t.Errorf("Init without hooks did not panic")
		}
	}()
	k := &ring0.Kernel{}
	k.Init(ring0.KernelOpts{Arch: a, Memory: newArena(t), Frames: newBitmap(t)})
}

func TestLinearMap(t *testing.T) {
	for _, a := range archs.All() {
		t.Run(a.Name(), func(t *testing.T) {
			k := newKernel(t, a, newBitmap(t), 1)
			p := memBase.Add(0x3000)
			v := a.DirectMap().Virt(p)
			phys, flags, ok := k.PageTables.Translate(v.Add(0x18))
			if !a.LinearMapInTables() {
				if ok {
					t.Errorf("%s uses a hardware window but %v is in the tables", a.Name(), v)
				}
				return
			}
			if !ok || phys != p.Add(0x18) {
				t.Fatalf("Translate(%v) = %v, %t, want %v", v.Add(0x18), phys, ok, p.Add(0x18))
			}
			if !pagetables.Equivalent(flags, pagetables.KernelRW) {
				t.Errorf("linear map flags = %v, want %v", flags, pagetables.KernelRW)
			}
			last := a.DirectMap().Virt(memBase.Add(memSize - addr.PageSize))
			if _, _, ok := k.PageTables.Translate(last); !ok {
				t.Errorf("last page %v of memory is not mapped", last)
			}
		})
	}
}

func TestCPUInit(t *testing.T) {
	for _, a := range archs.All() {
		t.Run(a.Name(), func(t *testing.T) {
			k := newKernel(t, a, newBitmap(t), 4)
			c := &ring0.CPU{}
			if err := c.Init(k, 0, devices.NewSimSet(10)); err != nil {
				t.Fatalf("CPU.Init failed: %v", err)
			}
			if got, ok := k.CPU(0); !ok || got != c {
				t.Errorf("CPU(0) = %v, %t, want the initialized core", got, ok)
			}
			if got := uint64(c.StackTop() - c.StackBottom()); got != 4*addr.PageSize {
				t.Errorf("stack size = %#x, want 4 pages", got)
			}
			if got := c.Trap.Arch().SP(c.Core); got != uint64(c.StackTop()) {
				t.Errorf("sp = %#x, want stack top %v", got, c.StackTop())
			}
			if c.Area.Phys() != memBase {
				t.Errorf("boot core area at %v, want %v", c.Area.Phys(), memBase)
			}
			local, err := k.PerCPU.Local(c.Core)
			if err != nil || local.Base() != c.Area.Base() {
				t.Errorf("Local = %v, %v, want area at %v", local, err, c.Area.Base())
			}
			if c.Trap.State() != trap.KernelMode {
				t.Errorf("trap state = %v, want %v", c.Trap.State(), trap.KernelMode)
			}

			again := &ring0.CPU{}
			if err := again.Init(k, 0, nil); err == nil {
				t.Errorf("second CPU.Init of core 0 succeeded")
			}
			if k.CPUs() != 1 {
				t.Errorf("CPUs() = %d, want 1", k.CPUs())
			}
		})
	}
}

func TestSingleFrameStack(t *testing.T) {
	a, _ := arch.Lookup("aarch64")
	frames := frametest.New(frametest.NewBump(memBase.Add(addr.PageSize), memBase.Add(memSize)))
	k := newKernel(t, a, frames, 4)
	c := &ring0.CPU{}
	if err := c.Init(k, 0, nil); err != nil {
		t.Fatalf("CPU.Init failed: %v", err)
	}
	if got := uint64(c.StackTop() - c.StackBottom()); got != addr.PageSize {
		t.Errorf("stack size = %#x, want one page without a contiguous allocator", got)
	}
}

func TestNewPageTablesShareKernel(t *testing.T) {
	for _, a := range archs.All() {
		t.Run(a.Name(), func(t *testing.T) {
			k := newKernel(t, a, newBitmap(t), 1)
			if err := k.PageTables.MapKernel(kernelVA, memBase.Add(0x5000), pagetables.KernelRW); err != nil {
				t.Fatalf("MapKernel failed: %v", err)
			}
			pt, err := k.NewPageTables()
			if err != nil {
				t.Fatalf("NewPageTables failed: %v", err)
			}
			defer pt.Destroy()
			if pt.Kernel() != k.PageTables {
				t.Errorf("address space does not share the kernel tables")
			}
			if phys, _, ok := pt.Translate(kernelVA); !ok || phys != memBase.Add(0x5000) {
				t.Errorf("Translate(%v) = %v, %t, want %v", kernelVA, phys, ok, memBase.Add(0x5000))
			}
			if pt.Root() == k.PageTables.Root() {
				t.Errorf("address space reuses the kernel root %v", pt.Root())
			}
		})
	}
}
