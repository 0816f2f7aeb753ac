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

// Package cpu models a processor core for the HAL.
//
// A Core holds the architectural state the HAL manipulates: general purpose
// registers, the program counter, a floating point block, the privileged
// system registers and a translation cache. Architecture packages assign
// meaning to the generic fields (for example which GPR is the stack pointer
// or which system register holds the per-CPU base).
package cpu

import (
	"fmt"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

// Mode is the privilege level the core executes at.
type Mode int

const (
	// Kernel is the supervisor privilege level.
	Kernel Mode = iota

	// User is the unprivileged level.
	User
)

// String implements fmt.Stringer.String.
func (m Mode) String() string {
	switch m {
	case Kernel:
		return "kernel"
	case User:
		return "user"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Event is a synchronous exception or asynchronous interrupt as the hardware
// presents it, before any decoding.
type Event struct {
	// Cause is the architecture's cause code or vector number.
	Cause uint64

	// Value is the trap value: a fault address or instruction bits.
	Value uint64

	// ErrorCode is the error code pushed by hardware (x86 only).
	ErrorCode uint64

	// Interrupt is true for asynchronous events.
	Interrupt bool
}

// SysRegs are the privileged registers the HAL touches. Each architecture
// maps its own registers onto these fields.
type SysRegs struct {
	// Cause holds the latched cause (scause, ESR_EL1, vector, ESTAT).
	Cause uint64

	// Vector is the exception vector table offset taken (aarch64).
	Vector uint64

	// Segment is the interrupted code segment selector (x86 CS).
	Segment uint64

	// ErrorCode holds the latched hardware error code.
	ErrorCode uint64

	// FaultAddr holds the faulting address (stval, FAR_EL1, CR2, BADV).
	FaultAddr uint64

	// EPC is the exception return address (sepc, ELR_EL1, ERA).
	EPC uint64

	// Status is the saved processor status (sstatus, SPSR_EL1, RFLAGS,
	// PRMD).
	Status uint64

	// Scratch is a kernel scratch register (sscratch, KS0).
	Scratch uint64

	// PerCPU is the per-CPU base register where the architecture provides
	// a system register for it (GS_BASE, TPIDR_EL1).
	PerCPU uint64

	// ShadowPerCPU is the inactive per-CPU base swapped by swapgs.
	ShadowPerCPU uint64

	// ThreadPointer is the user thread pointer system register (FS_BASE,
	// TPIDR_EL0).
	ThreadPointer uint64

	// Root is the page table root register (CR3, satp, TTBR0_EL1, PGDL).
	Root uint64

	// KernelRoot is the kernel half root register (TTBR1_EL1, PGDH).
	KernelRoot uint64

	// UserSP is the banked user stack pointer (SP_EL0).
	UserSP uint64
}

// MMU translates virtual addresses for a core using its root registers.
type MMU interface {
	Walk(c *Core, v addr.VirtAddr) (addr.PhysAddr, pagetables.MappingFlags, bool)
}

// Core is one hardware thread.
type Core struct {
	// ID is the core number; core 0 boots first.
	ID int

	// GPR are the general purpose registers.
	GPR [32]uint64

	// PC is the program counter.
	PC uint64

	// FP is the floating point and SIMD register file.
	FP [64]uint64

	// FCSR is the floating point control and status register.
	FCSR uint64

	// Sys are the privileged registers.
	Sys SysRegs

	// Mode is the current privilege level.
	Mode Mode

	// IRQEnabled is the local interrupt enable.
	IRQEnabled bool

	// TLB caches translations for this core.
	TLB *TLB

	// MMU walks page tables on TLB misses. It may be nil before paging is
	// enabled.
	MMU MMU
}

// New returns a core in kernel mode with interrupts disabled.
func New(id int) *Core {
	return &Core{
		ID:   id,
		Mode: Kernel,
		TLB:  NewTLB(),
	}
}

// Reset returns c to its power-on state: kernel mode, interrupts masked,
// translation off and every register cleared. The TLB is flushed.
func (c *Core) Reset() {
	tlb := c.TLB
	if tlb == nil {
		tlb = NewTLB()
	}
	tlb.FlushAll()
	*c = Core{ID: c.ID, Mode: Kernel, TLB: tlb}
}

// Access is a kind of memory access.
type Access int

const (
	// Load is a data read.
	Load Access = iota

	// Store is a data write.
	Store

	// Fetch is an instruction fetch.
	Fetch
)

// String implements fmt.Stringer.String.
func (a Access) String() string {
	switch a {
	case Load:
		return "load"
	case Store:
		return "store"
	case Fetch:
		return "fetch"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// Fault describes a failed translation.
type Fault struct {
	Addr   addr.VirtAddr
	Access Access
	Mode   Mode

	// Present is true if a mapping exists but does not permit the
	// access.
	Present bool
}

// Error implements error.Error.
func (f *Fault) Error() string {
	what := "not mapped"
	if f.Present {
		what = "protection violation"
	}
	return fmt.Sprintf("%s %s fault at %v: %s", f.Mode, f.Access, f.Addr, what)
}

// Translate translates v for the given access at the current privilege
// level, consulting the TLB first and filling it from the MMU on a miss.
func (c *Core) Translate(v addr.VirtAddr, acc Access) (addr.PhysAddr, error) {
	phys, flags, ok := c.TLB.Lookup(v)
	if !ok {
		if c.MMU == nil {
			return addr.PhysAddr(v), nil
		}
		phys, flags, ok = c.MMU.Walk(c, v.RoundDown())
		if !ok {
			return 0, &Fault{Addr: v, Access: acc, Mode: c.Mode}
		}
		c.TLB.Insert(v, phys, flags)
		phys = phys.Add(v.PageOffset())
	}
	if !permits(flags, acc, c.Mode) {
		return 0, &Fault{Addr: v, Access: acc, Mode: c.Mode, Present: true}
	}
	return phys, nil
}

func permits(f pagetables.MappingFlags, acc Access, mode Mode) bool {
	f = f.Normalize()
	if mode == User && f&pagetables.User == 0 {
		return false
	}
	switch acc {
	case Store:
		return f&pagetables.Write != 0
	case Fetch:
		return f&pagetables.Execute != 0
	default:
		return f&pagetables.Read != 0
	}
}

// DisableIRQ disables local interrupts and returns the previous state.
func (c *Core) DisableIRQ() bool {
	was := c.IRQEnabled
	c.IRQEnabled = false
	return was
}

// RestoreIRQ restores a state returned by DisableIRQ.
func (c *Core) RestoreIRQ(was bool) {
	c.IRQEnabled = was
}
