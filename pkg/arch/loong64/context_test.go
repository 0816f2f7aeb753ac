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
	"testing"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
)

func TestSwitchRoundTrip(t *testing.T) {
	var s Switcher
	c := cpu.New(0)
	for i := range c.GPR {
		c.GPR[i] = uint64(0xa000 + i)
	}
	c.PC = KernelOffset + 0x20_0000
	before := *c

	a := s.NewContext()
	b := s.NewContext()
	kcontext.Init(b, KernelOffset+0x30_0000, KernelOffset+0x100_0000, 0xb0)
	for i := range b.Callee() {
		b.Callee()[i] = uint64(0xb000 + i)
	}

	kcontext.Switch(c, s, a, b)
	if c.PC != KernelOffset+0x30_0000 || c.GPR[regSP] != KernelOffset+0x100_0000 || c.GPR[regTP] != 0xb0 {
		t.Fatalf("in B: pc %#x sp %#x tp %#x", c.PC, c.GPR[regSP], c.GPR[regTP])
	}
	if c.GPR[regFP] != 0xb000 || c.GPR[31] != 0xb009 {
		t.Errorf("in B: fp %#x s8 %#x", c.GPR[regFP], c.GPR[31])
	}

	kcontext.Switch(c, s, b, a)
	for r := regFP; r < 32; r++ {
		if c.GPR[r] != before.GPR[r] {
			t.Errorf("r%d = %#x after A->B->A, want %#x", r, c.GPR[r], before.GPR[r])
		}
	}
	if c.GPR[regSP] != before.GPR[regSP] || c.GPR[regTP] != before.GPR[regTP] || c.PC != before.PC {
		t.Errorf("sp %#x tp %#x pc %#x after A->B->A", c.GPR[regSP], c.GPR[regTP], c.PC)
	}
}

func TestRootSelection(t *testing.T) {
	var s Switcher
	c := cpu.New(0)
	if _, ok := rootOf(c, 0); ok {
		t.Errorf("translation enabled after reset")
	}
	s.ActivateRoot(c, 0x20_5000)
	Arch{}.SetKernelRoot(c, 0x20_1000)
	if root, ok := rootOf(c, 0x1000); !ok || root != 0x20_5000 {
		t.Errorf("rootOf(user) = %v, %t, want PGDL", root, ok)
	}
	if root, ok := rootOf(c, 0xffff_ffc0_0000_1000); !ok || root != 0x20_1000 {
		t.Errorf("rootOf(kernel) = %v, %t, want PGDH", root, ok)
	}
}
