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
		elr     uint64
		err     error
	}{
		{name: "svc", ev: cpu.Event{Cause: syndrome(ecSVC64, 0)}, want: trap.Of(trap.SysCall), elr: 0x1004},
		{name: "brk", ev: cpu.Event{Cause: syndrome(ecBRK64, 0)}, want: trap.Of(trap.Breakpoint), elr: 0x1004},
		{name: "data abort read", ev: cpu.Event{Cause: syndrome(ecDataAbortLower, 0x7), Value: 0x8000}, want: trap.Fault(trap.LoadPageFault, 0x8000), elr: 0x1000},
		{name: "data abort write", ev: cpu.Event{Cause: syndrome(ecDataAbortSame, issWnR|0x7), Value: 0x8000}, want: trap.Fault(trap.StorePageFault, 0x8000), elr: 0x1000},
		{name: "instruction abort", ev: cpu.Event{Cause: syndrome(ecInstrAbortSame, 0), Value: 0x1000}, want: trap.Fault(trap.InstructionPageFault, 0x1000), elr: 0x1000},
		{name: "undefined", ev: cpu.Event{Cause: syndrome(ecUnknown, 0)}, want: trap.Fault(trap.IllegalInstruction, 0x1000), elr: 0x1000},
		{name: "illegal state", ev: cpu.Event{Cause: syndrome(ecIllegalState, 0)}, want: trap.Fault(trap.IllegalInstruction, 0x1000), elr: 0x1000},
		{name: "timer", ev: cpu.Event{Interrupt: true}, pending: []int{timerPPI}, want: trap.Of(trap.Timer), elr: 0x1000},
		{name: "spi", ev: cpu.Event{Interrupt: true}, pending: []int{33}, want: trap.IRQ(33), elr: 0x1000},
		{name: "spurious", ev: cpu.Event{Interrupt: true}, err: trap.ErrSpurious},
		{name: "serror", ev: cpu.Event{Cause: syndrome(ecSError, 0)}, err: trap.ErrUnknownCause},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var s Stub
			c := cpu.New(0)
			c.PC = 0x1000
			d := devices.NewSimSet(100)
			for _, v := range tc.pending {
				d.IRQ.Enable(v)
				d.IRQ.(*devices.SimIRQ).Raise(v)
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
			if f.Elr != tc.elr {
				t.Errorf("elr = %#x, want %#x", f.Elr, tc.elr)
			}
		})
	}
}

func TestTimerCompletesAtGIC(t *testing.T) {
	var s Stub
	c := cpu.New(0)
	d := devices.NewSimSet(100)
	irq := d.IRQ.(*devices.SimIRQ)
	irq.Enable(timerPPI)
	irq.Raise(timerPPI)
	s.Latch(c, cpu.Event{Interrupt: true})
	if _, err := s.Decode(c, &Frame{}, d); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]int{timerPPI}, irq.Completed()); diff != "" {
		t.Errorf("Completed mismatch (-want +got):\n%s", diff)
	}
}

func TestUserVectors(t *testing.T) {
	var s Stub
	c := cpu.New(0)
	c.Sys.PerCPU = 0xffff_0000_4010_0000
	f := &Frame{}
	s.InitUserFrame(f, 0x40_0000, 0x7fff_f000)
	f.Tpidr = 0x77
	s.Restore(c, f)
	if c.Mode != cpu.User || !c.IRQEnabled || c.PC != 0x40_0000 || c.GPR[regSP] != 0x7fff_f000 {
		t.Fatalf("after Restore: mode %v irq %t pc %#x sp %#x", c.Mode, c.IRQEnabled, c.PC, c.GPR[regSP])
	}
	c.GPR[regX8] = 93
	c.PC = 0x40_0010
	s.Latch(c, cpu.Event{Cause: syndrome(ecSVC64, 0)})
	if c.Sys.Vector != vectorSyncLower || !s.FromUser(c) {
		t.Errorf("vector %#x from user %t", c.Sys.Vector, s.FromUser(c))
	}
	s.SwapPerCPU(c)
	if c.Sys.PerCPU != 0xffff_0000_4010_0000 {
		t.Errorf("TPIDR_EL1 changed to %#x", c.Sys.PerCPU)
	}
	s.Save(c, f)
	if f.Get(trap.Syscall) != 93 || f.Get(trap.PC) != 0x40_0014 || f.Get(trap.TLS) != 0x77 || !f.IsUser() {
		t.Errorf("syscall %d pc %#x tls %#x user %t", f.Get(trap.Syscall), f.Get(trap.PC), f.Get(trap.TLS), f.IsUser())
	}

	s.Latch(c, cpu.Event{Interrupt: true})
	if c.Sys.Vector != vectorIRQSame {
		t.Errorf("vector %#x, want IRQ from EL1", c.Sys.Vector)
	}
}
