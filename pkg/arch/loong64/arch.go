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

// Package loong64 implements the HAL for LoongArch64 with 3-level, 4KB
// paging.
package loong64

import (
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/trap"
)

// KernelOffset is the base of the cached direct mapping window (DMW1).
const KernelOffset = 0x9000_0000_0000_0000

// Direct mapping windows, selected by the top four address bits.
const (
	dmwUncached = 0x8
	dmwCached   = 0x9
	dmwSegShift = 60
	palenMask   = 1<<48 - 1
)

// window translates the direct mapping windows, which bypass the tables.
func window(v addr.VirtAddr) (addr.PhysAddr, bool) {
	switch uint64(v) >> dmwSegShift {
	case dmwUncached, dmwCached:
		return addr.PhysAddr(uint64(v) & palenMask), true
	}
	return 0, false
}

// Binder keeps the per-CPU base in r21.
type Binder struct{}

// Bind implements percpu.Binder.Bind.
func (Binder) Bind(c *cpu.Core, base addr.VirtAddr) { c.GPR[regU0] = uint64(base) }

// Bound implements percpu.Binder.Bound.
func (Binder) Bound(c *cpu.Core) addr.VirtAddr { return addr.VirtAddr(c.GPR[regU0]) }

// Arch is loongarch64.
type Arch struct{}

// Name implements arch.Arch.Name.
func (Arch) Name() string { return "loongarch64" }

// Format implements arch.Arch.Format.
func (Arch) Format() pagetables.Format { return Format{} }

// DirectMap implements arch.Arch.DirectMap.
func (Arch) DirectMap() addr.DirectMap { return addr.DirectMap{Offset: KernelOffset} }

// LinearMapInTables implements arch.Arch.LinearMapInTables. The linear map
// is a direct mapping window.
func (Arch) LinearMapInTables() bool { return false }

// Trap implements arch.Arch.Trap.
func (Arch) Trap() trap.Arch { return Stub{} }

// Switcher implements arch.Arch.Switcher.
func (Arch) Switcher() kcontext.Switcher { return Switcher{} }

// Binder implements arch.Arch.Binder.
func (Arch) Binder() percpu.Binder { return Binder{} }

// SetKernelRoot implements arch.Arch.SetKernelRoot by writing PGDH.
func (Arch) SetKernelRoot(c *cpu.Core, root addr.PhysAddr) {
	c.Sys.KernelRoot = uint64(root) & pteAddrMask
}

// MMU implements arch.Arch.MMU.
func (Arch) MMU(a pagetables.Allocator) cpu.MMU {
	return &arch.TableMMU{Format: Format{}, Allocator: a, Root: rootOf, Window: window}
}

// ResetCore implements arch.Arch.ResetCore. The core id is passed in a0.
func (Arch) ResetCore(c *cpu.Core) {
	c.Reset()
	c.GPR[regA0] = uint64(c.ID)
}

func init() {
	arch.Register(Arch{})
}
