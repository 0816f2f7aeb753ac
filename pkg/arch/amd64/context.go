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

package amd64

import (
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
)

// calleeSaved are rbx, rbp and r12-r15.
var calleeSaved = [6]int{regRBX, regRBP, regR12, regR13, regR14, regR15}

// Context is a kernel context.
type Context struct {
	Rsp    uint64
	FsBase uint64
	Regs   [6]uint64
	Rip    uint64
}

// Get implements kcontext.Context.Get.
func (k *Context) Get(i kcontext.Index) uint64 {
	switch i {
	case kcontext.KSP:
		return k.Rsp
	case kcontext.KTP:
		return k.FsBase
	default:
		return k.Rip
	}
}

// Set implements kcontext.Context.Set.
func (k *Context) Set(i kcontext.Index, v uint64) {
	switch i {
	case kcontext.KSP:
		k.Rsp = v
	case kcontext.KTP:
		k.FsBase = v
	default:
		k.Rip = v
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
	k.Rsp = c.GPR[regRSP]
	k.FsBase = c.Sys.ThreadPointer
	for i, r := range calleeSaved {
		k.Regs[i] = c.GPR[r]
	}
	k.Rip = c.PC
}

// Load implements kcontext.Switcher.Load.
func (Switcher) Load(c *cpu.Core, ctx kcontext.Context) {
	k := ctx.(*Context)
	c.GPR[regRSP] = k.Rsp
	c.Sys.ThreadPointer = k.FsBase
	for i, r := range calleeSaved {
		c.GPR[r] = k.Regs[i]
	}
	c.PC = k.Rip
}

// ActivateRoot implements kcontext.Switcher.ActivateRoot by writing CR3.
func (Switcher) ActivateRoot(c *cpu.Core, root addr.PhysAddr) {
	c.Sys.Root = uint64(root) & pteAddrMask
}

// rootOf decodes CR3. A zero CR3 means the boot identity mapping.
func rootOf(c *cpu.Core, _ addr.VirtAddr) (addr.PhysAddr, bool) {
	if c.Sys.Root == 0 {
		return 0, false
	}
	return addr.PhysAddr(c.Sys.Root & pteAddrMask), true
}
