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
	"testing"

	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
)

func TestSwitchRoundTrip(t *testing.T) {
	var s Switcher
	c := cpu.New(0)
	for i := range c.GPR {
		c.GPR[i] = uint64(0x100 + i)
	}
	c.Sys.ThreadPointer = 0xfa
	c.PC = 0xffff_8000_0020_0000
	before := *c

	a, b := s.NewContext(), s.NewContext()
	kcontext.Init(b, 0xffff_8000_0030_0000, 0xffff_8000_0100_0000, 0xfb)
	copy(b.Callee(), []uint64{1, 2, 3, 4, 5, 6})

	kcontext.SwitchNoIRQ(c, s, a, b)
	if c.PC != 0xffff_8000_0030_0000 || c.GPR[regRSP] != 0xffff_8000_0100_0000 || c.Sys.ThreadPointer != 0xfb {
		t.Fatalf("in B: rip %#x rsp %#x fs %#x", c.PC, c.GPR[regRSP], c.Sys.ThreadPointer)
	}
	if c.GPR[regRBX] != 1 || c.GPR[regR15] != 6 {
		t.Errorf("in B: rbx %d r15 %d", c.GPR[regRBX], c.GPR[regR15])
	}

	kcontext.Switch(c, s, b, a)
	for _, r := range append([]int{regRSP}, calleeSaved[:]...) {
		if c.GPR[r] != before.GPR[r] {
			t.Errorf("%s = %#x after A->B->A, want %#x", regNames[r], c.GPR[r], before.GPR[r])
		}
	}
	if c.PC != before.PC || c.Sys.ThreadPointer != before.Sys.ThreadPointer {
		t.Errorf("rip %#x fs %#x", c.PC, c.Sys.ThreadPointer)
	}
}
