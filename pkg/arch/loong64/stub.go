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
	"fmt"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/trap"
)

// Exception codes (ESTAT.Ecode).
const (
	ecodeINT = 0x0
	ecodePIL = 0x1
	ecodePIS = 0x2
	ecodePIF = 0x3
	ecodePME = 0x4
	ecodePNR = 0x5
	ecodePNX = 0x6
	ecodePPI = 0x7
	ecodeADE = 0x8
	ecodeALE = 0x9
	ecodeSYS = 0xb
	ecodeBRK = 0xc
	ecodeINE = 0xd
)

// ESTAT fields.
const (
	ecodeShift = 16
	ecodeMask  = 0x3f
	isMask     = 0x1fff
	isHWI0     = 1 << 2
	isHWIMask  = 0xff << 2
	isTI       = 1 << 11
)

const instructionLength = 4

// Stub is the general exception entry.
type Stub struct{}

// Name implements trap.Arch.Name.
func (Stub) Name() string { return "loongarch64" }

// Latch implements trap.Arch.Latch. For interrupts ev.Cause holds the
// pending interrupt status bits; otherwise it is the exception code.
func (Stub) Latch(c *cpu.Core, ev cpu.Event) {
	var prmd uint64
	if c.Mode == cpu.User {
		prmd = plvUser
	}
	if c.IRQEnabled {
		prmd |= ie
	}
	c.Sys.Status = prmd
	c.Sys.EPC = c.PC
	if ev.Interrupt {
		c.Sys.Cause = ev.Cause & isMask
	} else {
		c.Sys.Cause = (ev.Cause & ecodeMask) << ecodeShift
		c.Sys.FaultAddr = ev.Value
	}
	c.Mode = cpu.Kernel
	c.IRQEnabled = false
}

// FromUser implements trap.Arch.FromUser.
func (Stub) FromUser(c *cpu.Core) bool {
	return c.Sys.Status&plvMask == plvUser
}

// SwapPerCPU implements trap.Arch.SwapPerCPU. While in user mode the
// kernel's r21 is kept in a KS save register.
func (Stub) SwapPerCPU(c *cpu.Core) {
	c.GPR[regU0], c.Sys.Scratch = c.Sys.Scratch, c.GPR[regU0]
}

// Save implements trap.Arch.Save.
func (s Stub) Save(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	f.Regs = c.GPR
	f.Regs[0] = 0
	if s.FromUser(c) {
		f.Regs[regU0] = c.Sys.Scratch
	}
	f.Prmd = c.Sys.Status
	f.Era = c.Sys.EPC
}

// Restore implements trap.Arch.Restore.
func (Stub) Restore(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	if f.IsUser() {
		c.Sys.Scratch = c.GPR[regU0]
	}
	c.GPR = f.Regs
	c.GPR[0] = 0
	c.Sys.Status = f.Prmd
	c.Sys.EPC = f.Era
	c.PC = f.Era
	c.Mode = cpu.Kernel
	if f.IsUser() {
		c.Mode = cpu.User
	}
	c.IRQEnabled = f.Prmd&ie != 0
}

// Decode implements trap.Arch.Decode.
func (Stub) Decode(c *cpu.Core, tf trap.Frame, d *devices.Set) (trap.Type, error) {
	f := tf.(*Frame)
	estat := c.Sys.Cause
	ecode := estat >> ecodeShift & ecodeMask
	if ecode == ecodeINT {
		is := estat & isMask
		switch {
		case is&isTI != 0:
			// TICLR.
			c.Sys.Cause &^= isTI
			d.RearmTimer()
			return trap.Of(trap.Timer), nil
		case is&isHWIMask != 0:
			if d.IRQ == nil {
				return trap.Type{}, trap.ErrSpurious
			}
			v, ok := d.IRQ.Pending()
			if !ok {
				return trap.Type{}, trap.ErrSpurious
			}
			return trap.IRQ(v), nil
		}
		return trap.Type{}, fmt.Errorf("interrupt status %#x: %w", is, trap.ErrUnknownCause)
	}
	switch ecode {
	case ecodeBRK:
		f.Era += instructionLength
		return trap.Of(trap.Breakpoint), nil
	case ecodeSYS:
		return trap.Of(trap.SysCall), nil
	case ecodePIS, ecodePME:
		return trap.Fault(trap.StorePageFault, c.Sys.FaultAddr), nil
	case ecodePIF, ecodePNX:
		return trap.Fault(trap.InstructionPageFault, c.Sys.FaultAddr), nil
	case ecodePIL, ecodePNR:
		return trap.Fault(trap.LoadPageFault, c.Sys.FaultAddr), nil
	case ecodeINE:
		return trap.Fault(trap.IllegalInstruction, f.Era), nil
	default:
		return trap.Type{}, fmt.Errorf("exception code %#x: %w", ecode, trap.ErrUnknownCause)
	}
}

// InitUserFrame implements trap.Arch.InitUserFrame.
func (Stub) InitUserFrame(tf trap.Frame, entry, sp uint64) {
	f := tf.(*Frame)
	*f = Frame{}
	f.Era = entry
	f.Regs[regSP] = sp
	f.Prmd = plvUser | ie
}

// SP implements trap.Arch.SP.
func (Stub) SP(c *cpu.Core) uint64 { return c.GPR[regSP] }

// SetSP implements trap.Arch.SetSP.
func (Stub) SetSP(c *cpu.Core, sp uint64) { c.GPR[regSP] = sp }

// Synthesize implements trap.Arch.Synthesize. Device interrupts arrive on
// HWI0 from the extended interrupt controller. An illegal instruction is
// reported at the PC.
func (Stub) Synthesize(t trap.Type) (cpu.Event, int) {
	switch t.Kind {
	case trap.Breakpoint:
		return cpu.Event{Cause: ecodeBRK}, -1
	case trap.SysCall:
		return cpu.Event{Cause: ecodeSYS}, -1
	case trap.Timer:
		return cpu.Event{Cause: isTI, Interrupt: true}, -1
	case trap.ExternalIRQ:
		return cpu.Event{Cause: isHWI0, Interrupt: true}, t.Vector
	case trap.StorePageFault:
		return cpu.Event{Cause: ecodePIS, Value: uint64(t.Addr)}, -1
	case trap.LoadPageFault:
		return cpu.Event{Cause: ecodePIL, Value: uint64(t.Addr)}, -1
	case trap.InstructionPageFault:
		return cpu.Event{Cause: ecodePIF, Value: uint64(t.Addr)}, -1
	case trap.IllegalInstruction:
		return cpu.Event{Cause: ecodeINE}, -1
	default:
		return cpu.Event{Cause: ecodeADE}, -1
	}
}
