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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/trap"
)

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		ev      cpu.Event
		pending []int
		want    trap.Type
		advance uint64
		err     error
	}{
		{name: "breakpoint", ev: cpu.Event{Cause: causeBreakpoint}, want: trap.Of(trap.Breakpoint), advance: 2},
		{name: "ecall", ev: cpu.Event{Cause: causeUserEnvCall}, want: trap.Of(trap.SysCall)},
		{name: "store page fault", ev: cpu.Event{Cause: causeStorePageFault, Value: 0x4000}, want: trap.Fault(trap.StorePageFault, 0x4000)},
		{name: "store access fault", ev: cpu.Event{Cause: causeStoreFault, Value: 0x4008}, want: trap.Fault(trap.StorePageFault, 0x4008)},
		{name: "load page fault", ev: cpu.Event{Cause: causeLoadPageFault, Value: 0x5000}, want: trap.Fault(trap.LoadPageFault, 0x5000)},
		{name: "load access fault", ev: cpu.Event{Cause: causeLoadFault, Value: 0x5008}, want: trap.Fault(trap.LoadPageFault, 0x5008)},
		{name: "fetch page fault", ev: cpu.Event{Cause: causeInstructionPageFault, Value: 0x6000}, want: trap.Fault(trap.InstructionPageFault, 0x6000)},
		{name: "illegal", ev: cpu.Event{Cause: causeIllegalInstruction, Value: 0x73}, want: trap.Fault(trap.IllegalInstruction, 0x73)},
		{name: "timer", ev: cpu.Event{Cause: irqSupervisorTimer, Interrupt: true}, want: trap.Of(trap.Timer)},
		{name: "external", ev: cpu.Event{Cause: irqSupervisorExternal, Interrupt: true}, pending: []int{10}, want: trap.IRQ(10)},
		{name: "spurious", ev: cpu.Event{Cause: irqSupervisorExternal, Interrupt: true}, err: trap.ErrSpurious},
		{name: "misaligned store", ev: cpu.Event{Cause: 6}, err: trap.ErrUnknownCause},
		{name: "software interrupt", ev: cpu.Event{Cause: 1, Interrupt: true}, err: trap.ErrUnknownCause},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var s Stub
			c := cpu.New(0)
			c.PC = 0x1000
			d := devices.NewSimSet(100)
			irq := d.IRQ.(*devices.SimIRQ)
			for _, v := range tc.pending {
				irq.Enable(v)
				irq.Raise(v)
			}
			s.Latch(c, tc.ev)
			f := &Frame{}
			s.Save(c, f)
			got, err := s.Decode(c, f, d)
			if !errors.Is(err, tc.err) {
				t.Fatalf("Decode error = %v, want %v", err, tc.err)
			}
			if tc.err != nil {
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
			if f.Sepc != 0x1000+tc.advance {
				t.Errorf("sepc = %#x, want %#x", f.Sepc, 0x1000+tc.advance)
			}
		})
	}
}

func TestSynthesizeDecodes(t *testing.T) {
	var s Stub
	for _, want := range []trap.Type{
		trap.Of(trap.Breakpoint),
		trap.Of(trap.SysCall),
		trap.Of(trap.Timer),
		trap.IRQ(3),
		trap.Fault(trap.StorePageFault, 0x1000),
		trap.Fault(trap.LoadPageFault, 0x2000),
		trap.Fault(trap.InstructionPageFault, 0x3000),
		trap.Fault(trap.IllegalInstruction, 0xdead),
	} {
		ev, vector := s.Synthesize(want)
		c := cpu.New(0)
		d := devices.NewSimSet(10)
		if vector >= 0 {
			d.IRQ.Enable(vector)
			d.IRQ.(*devices.SimIRQ).Raise(vector)
		}
		s.Latch(c, ev)
		f := &Frame{}
		s.Save(c, f)
		got, err := s.Decode(c, f, d)
		if err != nil {
			t.Errorf("Decode(Synthesize(%v)): %v", want, err)
			continue
		}
		if got != want {
			t.Errorf("Decode(Synthesize(%v)) = %v", want, got)
		}
	}
}

func TestTimerRearm(t *testing.T) {
	var s Stub
	c := cpu.New(0)
	d := devices.NewSimSet(250)
	timer := d.Timer.(*devices.SimTimer)
	timer.Advance(1000)
	s.Latch(c, cpu.Event{Cause: irqSupervisorTimer, Interrupt: true})
	if _, err := s.Decode(c, &Frame{}, d); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if deadline, ok := timer.Deadline(); !ok || deadline != 1250 {
		t.Errorf("Deadline = %d, %t, want 1250, true", deadline, ok)
	}
}

func TestUserRoundTrip(t *testing.T) {
	var s Stub
	c := cpu.New(0)
	c.GPR[regGP] = 0xffff_ffc0_8000_0000
	c.IRQEnabled = true

	f := &Frame{}
	s.InitUserFrame(f, 0x10000, 0x7fff0000)
	f.X[regGP] = 0x1234
	s.Restore(c, f)
	if c.Mode != cpu.User || c.PC != 0x10000 || c.GPR[regSP] != 0x7fff0000 || !c.IRQEnabled {
		t.Fatalf("after Restore: mode %v pc %#x sp %#x irq %t", c.Mode, c.PC, c.GPR[regSP], c.IRQEnabled)
	}
	if c.GPR[regGP] != 0x1234 || c.Sys.Scratch != 0xffff_ffc0_8000_0000 {
		t.Fatalf("gp %#x sscratch %#x", c.GPR[regGP], c.Sys.Scratch)
	}

	c.GPR[regA7] = 64
	c.PC = 0x10040
	s.Latch(c, cpu.Event{Cause: causeUserEnvCall})
	if !s.FromUser(c) || c.Mode != cpu.Kernel || c.IRQEnabled {
		t.Fatalf("after Latch: from user %t mode %v irq %t", s.FromUser(c), c.Mode, c.IRQEnabled)
	}
	s.SwapPerCPU(c)
	if c.GPR[regGP] != 0xffff_ffc0_8000_0000 {
		t.Errorf("kernel gp = %#x after swap", c.GPR[regGP])
	}
	s.Save(c, f)
	if f.X[regGP] != 0x1234 {
		t.Errorf("saved user gp = %#x, want 0x1234", f.X[regGP])
	}
	if !f.IsUser() || f.Get(trap.Syscall) != 64 || f.Get(trap.PC) != 0x10040 {
		t.Errorf("frame: user %t syscall %d pc %#x", f.IsUser(), f.Get(trap.Syscall), f.Get(trap.PC))
	}
	f.SyscallOK()
	if f.Get(trap.PC) != 0x10044 {
		t.Errorf("SyscallOK: pc = %#x, want 0x10044", f.Get(trap.PC))
	}
}

func TestFrameArgs(t *testing.T) {
	f := &Frame{}
	for i, a := range []trap.Arg{trap.Arg0, trap.Arg1, trap.Arg2, trap.Arg3, trap.Arg4, trap.Arg5} {
		f.Set(a, uint64(100+i))
		if f.X[regA0+i] != uint64(100+i) {
			t.Errorf("%d: a%d = %d", a, i, f.X[regA0+i])
		}
	}
	f.Set(trap.Ret, 7)
	if f.Get(trap.Arg0) != 7 {
		t.Errorf("Ret and Arg0 are not both a0")
	}
	f.Set(trap.TLS, 0x99)
	if f.X[regTP] != 0x99 {
		t.Errorf("TLS is not tp")
	}
}
