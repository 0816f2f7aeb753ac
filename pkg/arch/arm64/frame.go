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
	"io"

	"polyhal.dev/hal/pkg/trap"
)

// Register numbers.
const (
	regX0 = 0
	regX8 = 8
	regLR = 30
	regSP = 31
)

// SPSR bits.
const (
	spsrModeMask = 0xf
	spsrEL0t     = 0x0
	spsrEL1h     = 0x5
	spsrI        = 1 << 7
)

// Frame is the saved state of an exception.
type Frame struct {
	// Regs are x0-x30.
	Regs [31]uint64

	// SP is the interrupted stack pointer: SP_EL0 for exceptions from
	// EL0.
	SP   uint64
	Elr  uint64
	Spsr uint64

	// Tpidr is TPIDR_EL0.
	Tpidr uint64
}

// Get implements trap.Frame.Get.
func (f *Frame) Get(a trap.Arg) uint64 {
	return *f.slot(a)
}

// Set implements trap.Frame.Set.
func (f *Frame) Set(a trap.Arg, v uint64) {
	*f.slot(a) = v
}

func (f *Frame) slot(a trap.Arg) *uint64 {
	switch a {
	case trap.PC:
		return &f.Elr
	case trap.RA:
		return &f.Regs[regLR]
	case trap.SP:
		return &f.SP
	case trap.Ret:
		return &f.Regs[regX0]
	case trap.Arg0, trap.Arg1, trap.Arg2, trap.Arg3, trap.Arg4, trap.Arg5:
		return &f.Regs[regX0+int(a-trap.Arg0)]
	case trap.TLS:
		return &f.Tpidr
	case trap.Syscall:
		return &f.Regs[regX8]
	default:
		panic(fmt.Sprintf("arm64: bad frame argument %d", a))
	}
}

// SyscallOK implements trap.Frame.SyscallOK. ELR_EL1 already points past
// the svc.
func (f *Frame) SyscallOK() {}

// IsUser implements trap.Frame.IsUser.
func (f *Frame) IsUser() bool {
	return f.Spsr&spsrModeMask == spsrEL0t
}

// Dump implements trap.Frame.Dump.
func (f *Frame) Dump(w io.Writer) {
	for i, v := range f.Regs {
		fmt.Fprintf(w, "x%-3d %#016x\n", i, v)
	}
	fmt.Fprintf(w, "sp   %#016x\nelr  %#016x\nspsr %#016x\ntpidr_el0 %#016x\n", f.SP, f.Elr, f.Spsr, f.Tpidr)
}
