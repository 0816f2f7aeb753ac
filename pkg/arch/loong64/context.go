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

package loong64

import (
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
)

// Context is a kernel context: sp, tp, fp, s0-s8 and ra.
type Context struct {
	SP uint64
	TP uint64

	// Regs are fp and s0-s8 (r22-r31).
	Regs [10]uint64
	RA   uint64
}

// Get implements kcontext.Context.Get.
func (k *Context) Get(i kcontext.Index) uint64 {
	switch i {
	case kcontext.KSP:
		return k.SP
	case kcontext.KTP:
		return k.TP
	default:
		return k.RA
	}
}

// Set implements kcontext.Context.Set.
func (k *Context) Set(i kcontext.Index, v uint64) {
	switch i {
	case kcontext.KSP:
		k.SP = v
	case kcontext.KTP:
		k.TP = v
	default:
		k.RA = v
	}
}

// Callee implements kcontext.Context.Callee.
func (k *Context) Callee() []uint64 {
	return k.Regs[:]
}

// Switcher switches kernel contexts.
type Switcher struct{}

// NewContext implements kcontext.Switcher.NewContext.
func (Switcher) NewContext() kcontext.Context {
	return &Context{}
}

// Save implements kcontext.Switcher.Save.
func (Switcher) Save(c *cpu.Core, ctx kcontext.Context) {
	k := ctx.(*Context)
	k.SP = c.GPR[regSP]
	k.TP = c.GPR[regTP]
	copy(k.Regs[:], c.GPR[regFP:])
	k.RA = c.PC
}

// Load implements kcontext.Switcher.Load.
func (Switcher) Load(c *cpu.Core, ctx kcontext.Context) {
	k := ctx.(*Context)
	c.GPR[regSP] = k.SP
	c.GPR[regTP] = k.TP
	copy(c.GPR[regFP:], k.Regs[:])
	c.GPR[regRA] = k.RA
	c.PC = k.RA
}

// ActivateRoot implements kcontext.Switcher.ActivateRoot by writing PGDL.
func (Switcher) ActivateRoot(c *cpu.Core, root addr.PhysAddr) {
	c.Sys.Root = uint64(root) & pteAddrMask
}

// rootOf selects PGDL or PGDH by the top address bit.
func rootOf(c *cpu.Core, v addr.VirtAddr) (addr.PhysAddr, bool) {
	if c.Sys.Root == 0 && c.Sys.KernelRoot == 0 {
		return 0, false
	}
	if v >= upperHalf {
		return addr.PhysAddr(c.Sys.KernelRoot & pteAddrMask), true
	}
	return addr.PhysAddr(c.Sys.Root & pteAddrMask), true
}
