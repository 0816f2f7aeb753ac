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
	"testing"

	"github.com/google/go-cmp/cmp"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
)

func TestSwitchRoundTrip(t *testing.T) {
	var s Switcher
	c := cpu.New(0)
	for i := range c.GPR {
		c.GPR[i] = uint64(0xa000 + i)
	}
	c.PC = 0xffff_ffc0_8020_0000
	before := *c

	a := s.NewContext()
	b := s.NewContext()
	kcontext.Init(b, 0xffff_ffc0_8030_0000, 0xffff_ffc0_8100_0000, 0xb0)
	for i := range b.Callee() {
		b.Callee()[i] = uint64(0xb000 + i)
	}

	kcontext.Switch(c, s, a, b)
	if c.PC != 0xffff_ffc0_8030_0000 || c.GPR[regSP] != 0xffff_ffc0_8100_0000 || c.GPR[regTP] != 0xb0 {
		t.Fatalf("in B: pc %#x sp %#x tp %#x", c.PC, c.GPR[regSP], c.GPR[regTP])
	}
	if c.GPR[8] != 0xb000 || c.GPR[27] != 0xb00b {
		t.Errorf("in B: s0 %#x s11 %#x", c.GPR[8], c.GPR[27])
	}

	kcontext.Switch(c, s, b, a)
	for _, r := range append([]int{regSP, regTP}, calleeSaved[:]...) {
		if c.GPR[r] != before.GPR[r] {
			t.Errorf("x%d = %#x after A->B->A, want %#x", r, c.GPR[r], before.GPR[r])
		}
	}
	if c.PC != before.PC {
		t.Errorf("pc = %#x, want %#x", c.PC, before.PC)
	}
	if diff := cmp.Diff(b.Callee(), a.Callee()); diff == "" {
		t.Errorf("contexts share callee-saved state")
	}
}

func TestActivateRoot(t *testing.T) {
	var s Switcher
	c := cpu.New(0)
	if _, ok := rootOf(c, 0); ok {
		t.Errorf("translation enabled after reset")
	}
	s.ActivateRoot(c, 0x80205000)
	if c.Sys.Root != 8<<60|0x80205 {
		t.Errorf("satp = %#x", c.Sys.Root)
	}
	if root, ok := rootOf(c, 0); !ok || root != 0x80205000 {
		t.Errorf("rootOf = %v, %t", root, ok)
	}
}
