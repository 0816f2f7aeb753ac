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
	"io"

	"polyhal.dev/hal/pkg/trap"
)

// Integer register numbers.
const (
	regRA = 1
	regSP = 2
	regGP = 3
	regTP = 4
	regA0 = 10
	regA7 = 17
)

// sstatus bits.
const (
	sstatusSIE  = 1 << 1
	sstatusSPIE = 1 << 5
	sstatusSPP  = 1 << 8
)

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// Frame is the saved state of a trap.
type Frame struct {
	// X are the integer registers; X[0] is unused.
	X       [32]uint64
	Sstatus uint64
	Sepc    uint64

	// F are the floating point registers.
	F    [32]uint64
	FCSR uint64
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
		return &f.Sepc
	case trap.RA:
		return &f.X[regRA]
	case trap.SP:
		return &f.X[regSP]
	case trap.Ret, trap.Arg0:
		return &f.X[regA0]
	case trap.Arg1, trap.Arg2, trap.Arg3, trap.Arg4, trap.Arg5:
		return &f.X[regA0+int(a-trap.Arg0)]
	case trap.TLS:
		return &f.X[regTP]
	case trap.Syscall:
		return &f.X[regA7]
	default:
		panic(fmt.Sprintf("riscv64: bad frame argument %d", a))
	}
}

// SyscallOK implements trap.Frame.SyscallOK. sepc points at the ecall.
func (f *Frame) SyscallOK() {
	f.Sepc += 4
}

// IsUser implements trap.Frame.IsUser.
func (f *Frame) IsUser() bool {
	return f.Sstatus&sstatusSPP == 0
}

// Dump implements trap.Frame.Dump.
func (f *Frame) Dump(w io.Writer) {
	for i := 1; i < len(f.X); i++ {
		fmt.Fprintf(w, "%-4s %#016x\n", regNames[i], f.X[i])
	}
	fmt.Fprintf(w, "sstatus %#016x\nsepc %#016x\n", f.Sstatus, f.Sepc)
}
