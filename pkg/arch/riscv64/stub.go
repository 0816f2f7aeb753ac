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

package riscv64

import (
	"fmt"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/trap"
)

// scause values.
const (
	causeInterrupt = 1 << 63

	causeIllegalInstruction   = 2
	causeBreakpoint           = 3
	causeLoadFault            = 5
	causeStoreFault           = 7
	causeUserEnvCall          = 8
	causeInstructionPageFault = 12
	causeLoadPageFault        = 13
	causeStorePageFault       = 15

	// causeReserved is not assigned by the privileged architecture.
	causeReserved = 24

	irqSupervisorTimer    = 5
	irqSupervisorExternal = 9
)

// Stub is the supervisor trap vector.
type Stub struct{}

// Name implements trap.Arch.Name.
func (Stub) Name() string { return "riscv64" }

// Latch implements trap.Arch.Latch.
func (Stub) Latch(c *cpu.Core, ev cpu.Event) {
	status := c.Sys.Status &^ (sstatusSIE | sstatusSPIE | sstatusSPP)
	if c.Mode == cpu.Kernel {
		status |= sstatusSPP
	}
	if c.IRQEnabled {
		status |= sstatusSPIE
	}
	c.Sys.Status = status
	c.Sys.EPC = c.PC
	c.Sys.Cause = ev.Cause
	if ev.Interrupt {
		c.Sys.Cause |= causeInterrupt
	}
	c.Sys.FaultAddr = ev.Value
	c.Mode = cpu.Kernel
	c.IRQEnabled = false
}

// FromUser implements trap.Arch.FromUser.
func (Stub) FromUser(c *cpu.Core) bool {
	return c.Sys.Status&sstatusSPP == 0
}

// SwapPerCPU implements trap.Arch.SwapPerCPU. While in user mode sscratch
// holds the kernel gp.
func (Stub) SwapPerCPU(c *cpu.Core) {
	c.GPR[regGP], c.Sys.Scratch = c.Sys.Scratch, c.GPR[regGP]
}

// Save implements trap.Arch.Save.
func (s Stub) Save(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	f.X = c.GPR
	f.X[0] = 0
	if s.FromUser(c) {
		f.X[regGP] = c.Sys.Scratch
	}
	f.Sstatus = c.Sys.Status
	f.Sepc = c.Sys.EPC
	copy(f.F[:], c.FP[:len(f.F)])
	f.FCSR = c.FCSR
}

// Restore implements trap.Arch.Restore.
func (Stub) Restore(c *cpu.Core, tf trap.Frame) {
	f := tf.(*Frame)
	if f.IsUser() {
		c.Sys.Scratch = c.GPR[regGP]
	}
	c.GPR = f.X
	c.GPR[0] = 0
	copy(c.FP[:len(f.F)], f.F[:])
	c.FCSR = f.FCSR
	c.Sys.Status = f.Sstatus
	c.Sys.EPC = f.Sepc
	c.PC = f.Sepc
	c.Mode = cpu.Kernel
	if f.IsUser() {
		c.Mode = cpu.User
	}
	c.IRQEnabled = f.Sstatus&sstatusSPIE != 0
}

// Decode implements trap.Arch.Decode.
func (Stub) Decode(c *cpu.Core, tf trap.Frame, d *devices.Set) (trap.Type, error) {
	f := tf.(*Frame)
	cause := c.Sys.Cause
	if cause&causeInterrupt != 0 {
		switch cause &^ causeInterrupt {
		case irqSupervisorTimer:
			d.RearmTimer()
			return trap.Of(trap.Timer), nil
		case irqSupervisorExternal:
			if d.IRQ == nil {
				return trap.Type{}, trap.ErrSpurious
			}
			v, ok := d.IRQ.Pending()
			if !ok {
				return trap.Type{}, trap.ErrSpurious
			}
			return trap.IRQ(v), nil
		}
		return trap.Type{}, fmt.Errorf("interrupt %d: %w", cause&^causeInterrupt, trap.ErrUnknownCause)
	}
	switch cause {
	case causeBreakpoint:
		f.Sepc += 2
		return trap.Of(trap.Breakpoint), nil
	case causeUserEnvCall:
		return trap.Of(trap.SysCall), nil
	case causeStorePageFault, causeStoreFault:
		return trap.Fault(trap.StorePageFault, c.Sys.FaultAddr), nil
	case causeInstructionPageFault:
		return trap.Fault(trap.InstructionPageFault, c.Sys.FaultAddr), nil
	case causeIllegalInstruction:
		return trap.Fault(trap.IllegalInstruction, c.Sys.FaultAddr), nil
	case causeLoadPageFault, causeLoadFault:
		return trap.Fault(trap.LoadPageFault, c.Sys.FaultAddr), nil
	}
	return trap.Type{}, fmt.Errorf("exception %d: %w", cause, trap.ErrUnknownCause)
}

// InitUserFrame implements trap.Arch.InitUserFrame.
func (Stub) InitUserFrame(tf trap.Frame, entry, sp uint64) {
	f := tf.(*Frame)
	*f = Frame{}
	f.Sepc = entry
	f.X[regSP] = sp
	f.Sstatus = sstatusSPIE
}

// SP implements trap.Arch.SP.
func (Stub) SP(c *cpu.Core) uint64 { return c.GPR[regSP] }

// SetSP implements trap.Arch.SetSP.
func (Stub) SetSP(c *cpu.Core, sp uint64) { c.GPR[regSP] = sp }

// Synthesize implements trap.Arch.Synthesize.
func (Stub) Synthesize(t trap.Type) (cpu.Event, int) {
	switch t.Kind {
	case trap.Breakpoint:
		return cpu.Event{Cause: causeBreakpoint}, -1
	case trap.SysCall:
		return cpu.Event{Cause: causeUserEnvCall}, -1
	case trap.Timer:
		return cpu.Event{Cause: irqSupervisorTimer, Interrupt: true}, -1
	case trap.ExternalIRQ:
		return cpu.Event{Cause: irqSupervisorExternal, Interrupt: true}, t.Vector
	case trap.StorePageFault:
		return cpu.Event{Cause: causeStorePageFault, Value: uint64(t.Addr)}, -1
	case trap.LoadPageFault:
		return cpu.Event{Cause: causeLoadPageFault, Value: uint64(t.Addr)}, -1
	case trap.InstructionPageFault:
		return cpu.Event{Cause: causeInstructionPageFault, Value: uint64(t.Addr)}, -1
	case trap.IllegalInstruction:
		return cpu.Event{Cause: causeIllegalInstruction, Value: uint64(t.Addr)}, -1
	default:
		return cpu.Event{Cause: causeReserved}, -1
	}
}
