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

// Package kcontext switches between kernel execution contexts.
//
// A Context holds the state a kernel thread keeps across a voluntary
// switch: stack pointer, thread pointer, the callee-saved registers of the
// architecture's calling convention and the address to resume at.
// Caller-saved registers are not preserved.
package kcontext

import (
	"fmt"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/pagetables"
)

// Index names a portable Context slot.
type Index int

// Context slots.
const (
	KSP Index = iota
	KTP
	KPC
)

// String implements fmt.Stringer.String.
func (i Index) String() string {
	switch i {
	case KSP:
		return "KSP"
	case KTP:
		return "KTP"
	case KPC:
		return "KPC"
	default:
		return fmt.Sprintf("Index(%d)", int(i))
	}
}

// Context is one architecture's saved kernel context.
type Context interface {
	// Get returns a slot.
	Get(i Index) uint64

	// Set changes a slot.
	Set(i Index, v uint64)

	// Callee returns the saved callee-saved registers, in register order.
	// The slice aliases the context.
	Callee() []uint64
}

// Switcher is one architecture's context switch primitive.
type Switcher interface {
	// NewContext returns a zeroed context.
	NewContext() Context

	// Save stores the current kernel context of c into ctx. The resume
	// address is the current PC.
	Save(c *cpu.Core, ctx Context)

	// Load makes ctx the current kernel context of c and resumes at its
	// KPC.
	Load(c *cpu.Core, ctx Context)

	// ActivateRoot writes the page table root register of c.
	ActivateRoot(c *cpu.Core, root addr.PhysAddr)
}

// Init prepares ctx to start at entry on the given stack.
func Init(ctx Context, entry, sp, tp uint64) {
	ctx.Set(KPC, entry)
	ctx.Set(KSP, sp)
	ctx.Set(KTP, tp)
}

// Switch saves the current context of c into from and continues with to.
// It does not mask interrupts; see SwitchNoIRQ.
func Switch(c *cpu.Core, s Switcher, from, to Context) {
	s.Save(c, from)
	s.Load(c, to)
}

// SwitchPT is Switch with an address-space change: between saving from and
// loading to, pt becomes the active page table of c.
func SwitchPT(c *cpu.Core, s Switcher, from, to Context, pt *pagetables.PageTables) {
	s.Save(c, from)
	Activate(c, s, pt)
	s.Load(c, to)
}

// SwitchNoIRQ is Switch with local interrupts masked for its duration.
func SwitchNoIRQ(c *cpu.Core, s Switcher, from, to Context) {
	was := c.DisableIRQ()
	Switch(c, s, from, to)
	c.RestoreIRQ(was)
}

// Activate makes pt the active page table of c: the root register is
// written and every cached translation is flushed. Later changes to pt
// flush c's TLB.
func Activate(c *cpu.Core, s Switcher, pt *pagetables.PageTables) {
	s.ActivateRoot(c, pt.Root())
	c.TLB.FlushAll()
	pt.SetTLB(c.TLB)
}
