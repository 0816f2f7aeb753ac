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
	"io"

	"polyhal.dev/hal/pkg/trap"
)

// General purpose register numbers, in encoding order.
const (
	regRAX = iota
	regRCX
	regRDX
	regRBX
	regRSP
	regRBP
	regRSI
	regRDI
	regR8
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
)

var regNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// Segment selectors.
const (
	kernelCS = 0x08
	kernelSS = 0x10
	userSS   = 0x2b
	userCS   = 0x33
)

// rflags bits.
const (
	rflagsReserved = 1 << 1
	rflagsIF       = 1 << 9
)

// argRegs are the system call argument registers.
var argRegs = [6]int{regRDI, regRSI, regRDX, regR10, regR8, regR9}

// Frame is the saved state of a trap: the general purpose registers pushed
// by the entry stub followed by the hardware interrupt frame.
type Frame struct {
	// Regs are indexed by register number. Regs[regRSP] is unused; the
	// interrupted stack pointer is Rsp.
	Regs [16]uint64

	Vector    uint64
	ErrorCode uint64
	Rip       uint64
	Cs        uint64
	Rflags    uint64
	Rsp       uint64
	Ss        uint64

	FsBase uint64
	GsBase uint64
}

// Get implements trap.Frame.Get. RA reads as zero; the return address is on
// the stack.
func (f *Frame) Get(a trap.Arg) uint64 {
	if a == trap.RA {
		return 0
	}
	return *f.slot(a)
}

// Set implements trap.Frame.Set. Setting RA has no effect.
func (f *Frame) Set(a trap.Arg, v uint64) {
	if a == trap.RA {
		return
	}
	*f.slot(a) = v
}

func (f *Frame) slot(a trap.Arg) *uint64 {
	switch a {
	case trap.PC:
		return &f.Rip
	case trap.SP:
		return &f.Rsp
	case trap.Ret, trap.Syscall:
		return &f.Regs[regRAX]
	case trap.Arg0, trap.Arg1, trap.Arg2, trap.Arg3, trap.Arg4, trap.Arg5:
		return &f.Regs[argRegs[a-trap.Arg0]]
	case trap.TLS:
		return &f.FsBase
	default:
		panic(fmt.Sprintf("amd64: bad frame argument %d", a))
	}
}

// SyscallOK implements trap.Frame.SyscallOK. The syscall instruction
// already saved the address after it.
func (f *Frame) SyscallOK() {}

// IsUser implements trap.Frame.IsUser.
func (f *Frame) IsUser() bool {
	return f.Cs&3 == 3
}

// Dump implements trap.Frame.Dump.
func (f *Frame) Dump(w io.Writer) {
	for i, v := range f.Regs {
		if i == regRSP {
			continue
		}
		fmt.Fprintf(w, "%-6s %#016x\n", regNames[i], v)
	}
	fmt.Fprintf(w, "vector %#x error %#x\n", f.Vector, f.ErrorCode)
	fmt.Fprintf(w, "rip    %#016x cs %#x rflags %#x\n", f.Rip, f.Cs, f.Rflags)
	fmt.Fprintf(w, "rsp    %#016x ss %#x\n", f.Rsp, f.Ss)
	fmt.Fprintf(w, "fs     %#016x gs %#016x\n", f.FsBase, f.GsBase)
}
