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
	"io"

	"polyhal.dev/hal/pkg/trap"
)

// Register numbers.
const (
	regRA = 1
	regTP = 2
	regSP = 3
	regA0 = 4
	regA7 = 11
	regU0 = 21
	regFP = 22
)

// PRMD and CRMD bits.
const (
	plvMask = 3
	plvUser = 3
	ie      = 1 << 2
)

// Frame is the saved state of an exception.
type Frame struct {
	Regs [32]uint64
	Prmd uint64
	Era  uint64
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
		return &f.Era
	case trap.RA:
		return &f.Regs[regRA]
	case trap.SP:
		return &f.Regs[regSP]
	case trap.Ret:
		return &f.Regs[regA0]
	case trap.Arg0, trap.Arg1, trap.Arg2, trap.Arg3, trap.Arg4, trap.Arg5:
		return &f.Regs[regA0+int(a-trap.Arg0)]
	case trap.TLS:
		return &f.Regs[regTP]
	case trap.Syscall:
		return &f.Regs[regA7]
	default:
		panic(fmt.Sprintf("loong64: bad frame argument %d", a))
	}
}

// SyscallOK implements trap.Frame.SyscallOK. ERA points at the syscall.
func (f *Frame) SyscallOK() {
	f.Era += 4
}

// IsUser implements trap.Frame.IsUser.
func (f *Frame) IsUser() bool {
	return f.Prmd&plvMask == plvUser
}

// Dump implements trap.Frame.Dump.
func (f *Frame) Dump(w io.Writer) {
	for i := 1; i < len(f.Regs); i++ {
		fmt.Fprintf(w, "r%-3d %#016x\n", i, f.Regs[i])
	}
	fmt.Fprintf(w, "prmd %#x\nera  %#016x\n", f.Prmd, f.Era)
}
