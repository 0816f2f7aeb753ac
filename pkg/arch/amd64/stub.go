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
	"fmt"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/trap"
)

// Vectors.
const (
	vectorBreakpoint        = 3
	vectorInvalidOpcode     = 6
	vectorGeneralProtection = 13
	vectorPageFault         = 14

	vectorIRQBase  = 0x20
	vectorIRQLast  = 0x2f
	vectorTimer    = 0xf0
	vectorSpurious = 0xff

	// vectorSyscall marks entry through the syscall instruction, which
	// does not go through the IDT.
	vectorSyscall = 0x33445566
)

// Page fault error code bits.
const (
	pfPresent = 1 << 0
	pfWrite   = 1 << 1
	pfUser    = 1 << 2
	pfFetch   = 1 << 4
)

// Instruction lengths.
const (
	int3Length    = 1
	syscallLength = 2
)

// Stub is the IDT and syscall entry.
type Stub struct{}

// Name implements trap.Arch.Name.
func (Stub) Name() string { return "x86_64" }

// Latch implements trap.Arch.Latch.
func (Stub) Latch(c *cpu.Core, ev cpu.Event) {
	rflags := c.Sys.Status&^rflagsIF | rflagsReserved
	if c.IRQEnabled {
		rflags |= rflagsIF
	}
	rip := c.PC
	switch {
	case ev.Interrupt:
	case ev.Cause == vectorBreakpoint:
		rip += int3Length
	case ev.Cause == vectorSyscall:
		rip += syscallLength
		c.GPR[regRCX] = rip
		c.GPR[regR11] = rflags
	}
	c.Sys.Segment = kernelCS
	if c.Mode == cpu.User {
		c.Sys.Segment = userCS
	}
	c.Sys.Status = rflags
	c.Sys.EPC = rip
	c.Sys.Cause = ev.Cause
	c.Sys.ErrorCode = ev.ErrorCode
	if ev.Cause == vectorPageFault {
		c.Sys.FaultAddr = ev.Value
	}
	c.Mode = cpu.Kernel
	c.IRQEnabled = false
}

// FromUser implements trap.Arch.FromUser.
func (Stub) FromUser(c *cpu.Core) bool {
	return c.Sys.Segment&3 == 3
}

// SwapPerCPU implements trap.Arch.SwapPerCPU as swapgs.
func (Stub) SwapPerCPU(c *cpu.Core) {
	c.Sys.PerCPU, c.Sys.ShadowPerCPU = c.Sys.ShadowPerCPU, c.Sys.PerCPU
}

// Save implements trap.Arch.Save.
func (s Stub) Save(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	copy(f.Regs[:], c.GPR[:len(f.Regs)])
	f.Regs[regRSP] = 0
	f.Vector = c.Sys.Cause
	f.ErrorCode = c.Sys.ErrorCode
	f.Rip = c.Sys.EPC
	f.Cs = c.Sys.Segment
	f.Rflags = c.Sys.Status
	f.Rsp = c.GPR[regRSP]
	f.Ss = kernelSS
	f.FsBase = c.Sys.ThreadPointer
	f.GsBase = c.Sys.PerCPU
	if s.FromUser(c) {
		f.Ss = userSS
		f.GsBase = c.Sys.ShadowPerCPU
	}
}

// Restore implements trap.Arch.Restore.
func (s Stub) Restore(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	copy(c.GPR[:len(f.Regs)], f.Regs[:])
	c.GPR[regRSP] = f.Rsp
	c.Sys.ThreadPointer = f.FsBase
	c.Sys.Segment = f.Cs
	c.Sys.Status = f.Rflags
	c.PC = f.Rip
	c.Mode = cpu.Kernel
	if f.IsUser() {
		c.Sys.ShadowPerCPU = f.GsBase
		s.SwapPerCPU(c)
		c.Mode = cpu.User
	}
	c.IRQEnabled = f.Rflags&rflagsIF != 0
}

// Decode implements trap.Arch.Decode.
func (Stub) Decode(c *cpu.Core, tf trap.Frame, d *devices.Set) (trap.Type, error) {
	f := tf.(*Frame)
	switch v := f.Vector; {
	case v == vectorBreakpoint:
		return trap.Of(trap.Breakpoint), nil
	case v == vectorSyscall:
		return trap.Of(trap.SysCall), nil
	case v == vectorPageFault:
		switch {
		case f.ErrorCode&pfFetch != 0:
			return trap.Fault(trap.InstructionPageFault, c.Sys.FaultAddr), nil
		case f.ErrorCode&pfWrite != 0:
			return trap.Fault(trap.StorePageFault, c.Sys.FaultAddr), nil
		default:
			return trap.Fault(trap.LoadPageFault, c.Sys.FaultAddr), nil
		}
	case v == vectorInvalidOpcode:
		return trap.Fault(trap.IllegalInstruction, f.Rip), nil
	case v == vectorGeneralProtection:
		return trap.Type{}, fmt.Errorf("general protection fault, error code %#x: %w", f.ErrorCode, trap.ErrUnknownCause)
	case v == vectorTimer:
		d.RearmTimer()
		return trap.Of(trap.Timer), nil
	case v >= vectorIRQBase && v <= vectorIRQLast:
		return trap.IRQ(int(v - vectorIRQBase)), nil
	case v == vectorSpurious:
		return trap.Type{}, trap.ErrSpurious
	}
	return trap.Type{}, fmt.Errorf("vector %#x: %w", f.Vector, trap.ErrUnknownCause)
}

// InitUserFrame implements trap.Arch.InitUserFrame.
func (Stub) InitUserFrame(tf trap.Frame, entry, sp uint64) {
	f := tf.(*Frame)
	*f = Frame{}
	f.Rip = entry
	f.Rsp = sp
	f.Cs = userCS
	f.Ss = userSS
	f.Rflags = rflagsIF | rflagsReserved
}

// SP implements trap.Arch.SP.
func (Stub) SP(c *cpu.Core) uint64 { return c.GPR[regRSP] }

// SetSP implements trap.Arch.SetSP.
func (Stub) SetSP(c *cpu.Core, sp uint64) { c.GPR[regRSP] = sp }

// Synthesize implements trap.Arch.Synthesize. External interrupts arrive
// through their IDT vector. An illegal instruction is reported at the PC.
func (Stub) Synthesize(t trap.Type) (cpu.Event, int) {
	switch t.Kind {
	case trap.Breakpoint:
		return cpu.Event{Cause: vectorBreakpoint}, -1
	case trap.SysCall:
		return cpu.Event{Cause: vectorSyscall}, -1
	case trap.Timer:
		return cpu.Event{Cause: vectorTimer, Interrupt: true}, -1
	case trap.ExternalIRQ:
		return cpu.Event{Cause: vectorIRQBase + uint64(t.Vector), Interrupt: true}, -1
	case trap.StorePageFault:
		return cpu.Event{Cause: vectorPageFault, Value: uint64(t.Addr), ErrorCode: pfWrite}, -1
	case trap.LoadPageFault:
		return cpu.Event{Cause: vectorPageFault, Value: uint64(t.Addr)}, -1
	case trap.InstructionPageFault:
		return cpu.Event{Cause: vectorPageFault, Value: uint64(t.Addr), ErrorCode: pfFetch}, -1
	case trap.IllegalInstruction:
		return cpu.Event{Cause: vectorInvalidOpcode}, -1
	default:
		return cpu.Event{Cause: vectorGeneralProtection}, -1
	}
}
