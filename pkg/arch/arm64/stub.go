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

package arm64

import (
	"fmt"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/trap"
)

// Exception classes (ESR_EL1.EC).
const (
	ecUnknown         = 0x00
	ecIllegalState    = 0x0e
	ecSVC64           = 0x15
	ecInstrAbortLower = 0x20
	ecInstrAbortSame  = 0x21
	ecDataAbortLower  = 0x24
	ecDataAbortSame   = 0x25
	ecSError          = 0x2f
	ecBRK64           = 0x3c
)

// Syndrome fields.
const (
	ecShift = 26
	ecMask  = 0x3f
	esrIL   = 1 << 25
	issWnR  = 1 << 6
)

const (
	instructionLength = 4

	// timerPPI is the EL1 physical timer interrupt.
	timerPPI = 30
)

// Vector table offsets.
const (
	vectorSyncSame  = 0x200
	vectorIRQSame   = 0x280
	vectorSyncLower = 0x400
	vectorIRQLower  = 0x480
	vectorIRQBit    = 0x80
)

// Stub is the EL1 exception vector table.
type Stub struct{}

// Name implements trap.Arch.Name.
func (Stub) Name() string { return "aarch64" }

// Latch implements trap.Arch.Latch. For synchronous exceptions ev.Cause is
// the syndrome.
func (Stub) Latch(c *cpu.Core, ev cpu.Event) {
	spsr := uint64(spsrEL1h)
	if c.Mode == cpu.User {
		spsr = spsrEL0t
	}
	if !c.IRQEnabled {
		spsr |= spsrI
	}
	elr := c.PC
	vector := uint64(vectorSyncSame)
	if ev.Interrupt {
		vector = vectorIRQSame
	} else {
		c.Sys.Cause = ev.Cause
		c.Sys.FaultAddr = ev.Value
		if ev.Cause>>ecShift&ecMask == ecSVC64 {
			elr += instructionLength
		}
	}
	if c.Mode == cpu.User {
		vector += vectorSyncLower - vectorSyncSame
	}
	c.Sys.Vector = vector
	c.Sys.Status = spsr
	c.Sys.EPC = elr
	c.Mode = cpu.Kernel
	c.IRQEnabled = false
}

// FromUser implements trap.Arch.FromUser.
func (Stub) FromUser(c *cpu.Core) bool {
	return c.Sys.Status&spsrModeMask == spsrEL0t
}

// SwapPerCPU implements trap.Arch.SwapPerCPU. TPIDR_EL1 is not accessible
// from EL0, so there is nothing to swap.
func (Stub) SwapPerCPU(*cpu.Core) {}

// Save implements trap.Arch.Save.
func (Stub) Save(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	copy(f.Regs[:], c.GPR[:len(f.Regs)])
	f.SP = c.GPR[regSP]
	f.Elr = c.Sys.EPC
	f.Spsr = c.Sys.Status
	f.Tpidr = c.Sys.ThreadPointer
}

// Restore implements trap.Arch.Restore.
func (Stub) Restore(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	copy(c.GPR[:len(f.Regs)], f.Regs[:])
	c.GPR[regSP] = f.SP
	c.Sys.ThreadPointer = f.Tpidr
	c.Sys.Status = f.Spsr
	c.Sys.EPC = f.Elr
	c.PC = f.Elr
	c.Mode = cpu.Kernel
	if f.IsUser() {
		c.Mode = cpu.User
	}
	c.IRQEnabled = f.Spsr&spsrI == 0
}

// Decode implements trap.Arch.Decode.
func (Stub) Decode(c *cpu.Core, tf trap.Frame, d *devices.Set) (trap.Type, error) {
	f := tf.(*Frame)
	if c.Sys.Vector&vectorIRQBit != 0 {
		if d.IRQ == nil {
			return trap.Type{}, trap.ErrSpurious
		}
		id, ok := d.IRQ.Pending()
		if !ok {
			return trap.Type{}, trap.ErrSpurious
		}
		if id == timerPPI {
			d.IRQ.Complete(id)
			d.RearmTimer()
			return trap.Of(trap.Timer), nil
		}
		return trap.IRQ(id), nil
	}
	esr := c.Sys.Cause
	switch ec := esr >> ecShift & ecMask; ec {
	case ecSVC64:
		return trap.Of(trap.SysCall), nil
	case ecBRK64:
		f.Elr += instructionLength
		return trap.Of(trap.Breakpoint), nil
	case ecDataAbortLower, ecDataAbortSame:
		if esr&issWnR != 0 {
			return trap.Fault(trap.StorePageFault, c.Sys.FaultAddr), nil
		}
		return trap.Fault(trap.LoadPageFault, c.Sys.FaultAddr), nil
	case ecInstrAbortLower, ecInstrAbortSame:
		return trap.Fault(trap.InstructionPageFault, c.Sys.FaultAddr), nil
	case ecUnknown, ecIllegalState:
		return trap.Fault(trap.IllegalInstruction, f.Elr), nil
	default:
		return trap.Type{}, fmt.Errorf("ESR %#x (EC %#x): %w", esr, ec, trap.ErrUnknownCause)
	}
}

// InitUserFrame implements trap.Arch.InitUserFrame.
func (Stub) InitUserFrame(tf trap.Frame, entry, sp uint64) {
	f := tf.(*Frame)
	*f = Frame{}
	f.Elr = entry
	f.SP = sp
	f.Spsr = spsrEL0t
}

// SP implements trap.Arch.SP.
func (Stub) SP(c *cpu.Core) uint64 { return c.GPR[regSP] }

// SetSP implements trap.Arch.SetSP.
func (Stub) SetSP(c *cpu.Core, sp uint64) { c.GPR[regSP] = sp }

func syndrome(ec uint64, iss uint64) uint64 {
	return ec<<ecShift | esrIL | iss
}

// Synthesize implements trap.Arch.Synthesize. Interrupts, the timer
// included, are claimed from the GIC. An illegal instruction is reported at
// the PC.
func (Stub) Synthesize(t trap.Type) (cpu.Event, int) {
	switch t.Kind {
	case trap.Breakpoint:
		return cpu.Event{Cause: syndrome(ecBRK64, 0)}, -1
	case trap.SysCall:
		return cpu.Event{Cause: syndrome(ecSVC64, 0)}, -1
	case trap.Timer:
		return cpu.Event{Interrupt: true}, timerPPI
	case trap.ExternalIRQ:
		return cpu.Event{Interrupt: true}, t.Vector
	case trap.StorePageFault:
		return cpu.Event{Cause: syndrome(ecDataAbortLower, issWnR), Value: uint64(t.Addr)}, -1
	case trap.LoadPageFault:
		return cpu.Event{Cause: syndrome(ecDataAbortLower, 0), Value: uint64(t.Addr)}, -1
	case trap.InstructionPageFault:
		return cpu.Event{Cause: syndrome(ecInstrAbortLower, 0), Value: uint64(t.Addr)}, -1
	case trap.IllegalInstruction:
		return cpu.Event{Cause: syndrome(ecUnknown, 0)}, -1
	default:
		return cpu.Event{Cause: syndrome(ecSError, 0)}, -1
	}
}
