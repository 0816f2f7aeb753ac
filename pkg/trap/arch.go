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

package trap

import (
	"errors"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/physmem"
)

// ErrUnknownCause is returned by Arch.Decode for a cause the HAL does not
// handle.
var ErrUnknownCause = errors.New("unrecognized trap cause")

// ErrSpurious is returned by Arch.Decode when an external interrupt was
// signalled but the controller has nothing pending.
var ErrSpurious = errors.New("spurious interrupt")

// Arch is one architecture's trap entry and exit stub.
type Arch interface {
	// Name returns the architecture name.
	Name() string

	// FrameSize returns the size of a saved frame in bytes.
	FrameSize() uint64

	// FrameAt returns the frame stored at p.
	FrameAt(mem *physmem.Arena, p addr.PhysAddr) Frame

	// Latch performs the hardware side of taking ev: it records the cause
	// and return state in the system registers, raises the privilege
	// level and masks interrupts.
	Latch(c *cpu.Core, ev cpu.Event)

	// FromUser returns true if the latched trap interrupted user mode.
	FromUser(c *cpu.Core) bool

	// SwapPerCPU exchanges the user and kernel values of the per-CPU
	// register. It is the first step of a trap from user mode.
	SwapPerCPU(c *cpu.Core)

	// Save stores the interrupted register state into f. For traps from
	// user mode it runs after SwapPerCPU.
	Save(c *cpu.Core, f Frame)

	// Restore loads f into c and returns to the mode f describes. Returning
	// to user mode swaps the per-CPU register back.
	Restore(c *cpu.Core, f Frame)

	// Decode classifies the latched trap. It applies the side effects of
	// the cause: advancing past breakpoints, rearming the timer and
	// claiming interrupt vectors from d.
	Decode(c *cpu.Core, f Frame, d *devices.Set) (Type, error)

	// InitUserFrame prepares f to enter user mode at entry with the given
	// stack.
	InitUserFrame(f Frame, entry, sp uint64)

	// SP returns the stack pointer of c.
	SP(c *cpu.Core) uint64

	// SetSP sets the stack pointer of c.
	SetSP(c *cpu.Core, sp uint64)

	// Synthesize returns the hardware event that decodes to t. If vector
	// is not negative, the interrupt controller must also have it pending.
	Synthesize(t Type) (ev cpu.Event, vector int)
}

// FaultType returns the page fault Type for a failed translation.
func FaultType(f *cpu.Fault) Type {
	switch f.Access {
	case cpu.Store:
		return Type{Kind: StorePageFault, Addr: f.Addr}
	case cpu.Fetch:
		return Type{Kind: InstructionPageFault, Addr: f.Addr}
	default:
		return Type{Kind: LoadPageFault, Addr: f.Addr}
	}
}
