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

// Package trap normalizes hardware exceptions and interrupts into a
// portable trap taxonomy and drives the per-core trap state machine.
package trap

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"polyhal.dev/hal/pkg/addr"
)

// Kind classifies a trap.
type Kind int

const (
	// Unknown is a cause the HAL does not recognize. It is never passed to
	// a Handler; decoding it is fatal.
	Unknown Kind = iota

	// Breakpoint is a software breakpoint instruction.
	Breakpoint

	// SysCall is a system call from user mode.
	SysCall

	// Timer is the local timer interrupt.
	Timer

	// StorePageFault is a faulting store; Addr is the faulting address.
	StorePageFault

	// LoadPageFault is a faulting load; Addr is the faulting address.
	LoadPageFault

	// InstructionPageFault is a faulting fetch; Addr is the faulting
	// address.
	InstructionPageFault

	// IllegalInstruction is an undefined instruction; Addr holds the trap
	// value reported by hardware.
	IllegalInstruction

	// ExternalIRQ is a device interrupt; Vector is the claimed vector.
	ExternalIRQ
)

var kindNames = map[Kind]string{
	Unknown:              "Unknown",
	Breakpoint:           "Breakpoint",
	SysCall:              "SysCall",
	Timer:                "Timer",
	StorePageFault:       "StorePageFault",
	LoadPageFault:        "LoadPageFault",
	InstructionPageFault: "InstructionPageFault",
	IllegalInstruction:   "IllegalInstruction",
	ExternalIRQ:          "ExternalIRQ",
}

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Type is a decoded trap.
type Type struct {
	Kind Kind

	// Addr is set for page faults and illegal instructions.
	Addr addr.VirtAddr

	// Vector is set for external interrupts.
	Vector int
}

// String implements fmt.Stringer.String.
func (t Type) String() string {
	switch t.Kind {
	case StorePageFault, LoadPageFault, InstructionPageFault, IllegalInstruction:
		return fmt.Sprintf("%s(%v)", t.Kind, t.Addr)
	case ExternalIRQ:
		return fmt.Sprintf("%s(%d)", t.Kind, t.Vector)
	default:
		return t.Kind.String()
	}
}

// Fault returns a fault Type of kind k at v.
func Fault(k Kind, v uint64) Type {
	return Type{Kind: k, Addr: addr.VirtAddr(v)}
}

// IRQ returns an ExternalIRQ Type for vector.
func IRQ(vector int) Type {
	return Type{Kind: ExternalIRQ, Vector: vector}
}

// Of returns a Type of kind k without operands.
func Of(k Kind) Type {
	return Type{Kind: k}
}

// ParseType parses the form produced by Type.String, e.g. "Timer",
// "ExternalIRQ(5)" or "LoadPageFault(0x1000)". Kind names are case
// insensitive. Unknown is rejected.
func ParseType(s string) (Type, error) {
	name, arg, hasArg := strings.Cut(s, "(")
	if hasArg {
		var ok bool
		if arg, ok = strings.CutSuffix(arg, ")"); !ok {
			return Type{}, fmt.Errorf("trap type %q: missing )", s)
		}
	}
	k := Unknown
	for kind, n := range kindNames {
		if strings.EqualFold(name, n) {
			k = kind
		}
	}
	switch k {
	case Unknown:
		return Type{}, fmt.Errorf("unknown trap type %q", s)
	case ExternalIRQ:
		if !hasArg {
			return Type{}, fmt.Errorf("trap type %q: missing vector", s)
		}
		v, err := strconv.Atoi(arg)
		if err != nil {
			return Type{}, fmt.Errorf("trap type %q: %w", s, err)
		}
		return IRQ(v), nil
	case StorePageFault, LoadPageFault, InstructionPageFault, IllegalInstruction:
		var v uint64
		if hasArg {
			var err error
			if v, err = strconv.ParseUint(arg, 0, 64); err != nil {
				return Type{}, fmt.Errorf("trap type %q: %w", s, err)
			}
		}
		return Fault(k, v), nil
	default:
		if hasArg {
			return Type{}, fmt.Errorf("trap type %q takes no argument", s)
		}
		return Of(k), nil
	}
}

// EscapeReason tells the kernel why control came back from user mode.
type EscapeReason int

// Escape reasons. EscapeNone covers faults and breakpoints, for which the
// handler has already run.
const (
	EscapeNone EscapeReason = iota
	EscapeIRQ
	EscapeTimer
	EscapeSysCall
)

// String implements fmt.Stringer.String.
func (r EscapeReason) String() string {
	switch r {
	case EscapeNone:
		return "NoReason"
	case EscapeIRQ:
		return "IRQ"
	case EscapeTimer:
		return "Timer"
	case EscapeSysCall:
		return "SysCall"
	default:
		return fmt.Sprintf("EscapeReason(%d)", int(r))
	}
}

// Escape returns the reason a user-mode trap of type t returns to the
// kernel.
func (t Type) Escape() EscapeReason {
	switch t.Kind {
	case SysCall:
		return EscapeSysCall
	case Timer:
		return EscapeTimer
	case ExternalIRQ:
		return EscapeIRQ
	default:
		return EscapeNone
	}
}

// Arg names a trap frame slot independently of the architecture.
type Arg int

// Frame slots.
const (
	PC Arg = iota
	RA
	SP
	Ret
	Arg0
	Arg1
	Arg2
	Arg3
	Arg4
	Arg5
	TLS
	Syscall
)

// Frame is one architecture's saved register state at a trap.
type Frame interface {
	// Get returns the value of a slot.
	Get(a Arg) uint64

	// Set changes the value of a slot, to take effect on return.
	Set(a Arg, v uint64)

	// SyscallOK advances the saved PC past the system call instruction
	// where the architecture requires it.
	SyscallOK()

	// IsUser returns true if the frame returns to user mode.
	IsUser() bool

	// Dump writes every saved register.
	Dump(w io.Writer)
}

// Handler is the kernel's trap callback. It runs synchronously in kernel
// mode and may modify the frame.
type Handler interface {
	HandleTrap(f Frame, t Type)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(f Frame, t Type)

// HandleTrap implements Handler.HandleTrap.
func (fn HandlerFunc) HandleTrap(f Frame, t Type) {
	fn(f, t)
}
