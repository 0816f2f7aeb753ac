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

// Package amd64 implements the HAL for x86-64 with 4-level paging.
package amd64

import (
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/trap"
)

// KernelOffset is the virtual address of physical address zero in the
// kernel linear map.
const KernelOffset = 0xffff_8000_0000_0000

// Binder keeps the per-CPU base in GS_BASE.
type Binder struct{}

// Bind implements percpu.Binder.Bind.
func (Binder) Bind(c *cpu.Core, base addr.VirtAddr) { c.Sys.PerCPU = uint64(base) }

// Bound implements percpu.Binder.Bound.
func (Binder) Bound(c *cpu.Core) addr.VirtAddr { return addr.VirtAddr(c.Sys.PerCPU) }

// Arch is x86_64.
type Arch struct{}

// Name implements arch.Arch.Name.
func (Arch) Name() string { return "x86_64" }

// Format implements arch.Arch.Format.
func (Arch) Format() pagetables.Format { return Format{} }

// DirectMap implements arch.Arch.DirectMap.
func (Arch) DirectMap() addr.DirectMap { return addr.DirectMap{Offset: KernelOffset} }

// LinearMapInTables implements arch.Arch.LinearMapInTables.
func (Arch) LinearMapInTables() bool { return true }

// Trap implements arch.Arch.Trap.
func (Arch) Trap() trap.Arch { return Stub{} }

// Switcher implements arch.Arch.Switcher.
func (Arch) Switcher() kcontext.Switcher { return Switcher{} }

// Binder implements arch.Arch.Binder.
func (Arch) Binder() percpu.Binder { return Binder{} }

// SetKernelRoot implements arch.Arch.SetKernelRoot.
func (Arch) SetKernelRoot(c *cpu.Core, root addr.PhysAddr) {
	Switcher{}.ActivateRoot(c, root)
}

// MMU implements arch.Arch.MMU.
func (Arch) MMU(a pagetables.Allocator) cpu.MMU {
	return &arch.TableMMU{Format: Format{}, Allocator: a, Root: rootOf}
}

// ResetCore implements arch.Arch.ResetCore.
func (Arch) ResetCore(c *cpu.Core) {
	c.Reset()
	c.Sys.Segment = kernelCS
	c.Sys.Status = rflagsReserved
}

func init() {
	arch.Register(Arch{})
}
