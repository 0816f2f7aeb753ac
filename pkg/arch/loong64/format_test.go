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

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

func TestNewPageBits(t *testing.T) {
	var f Format
	const low = 0x1ff
	for _, tc := range []struct {
		name  string
		flags pagetables.MappingFlags
		want  pagetables.PTE
		nx    bool
	}{
		{"present", pagetables.Present, pteValid | ptePresent | pteMATCC, true},
		{"rw", pagetables.ReadWrite, pteValid | ptePresent | pteMATCC | pteWrite | pteDirty, true},
		{"user-rx", pagetables.UserReadExec, pteValid | ptePresent | pteMATCC | ptePLVUser, false},
		{"global", pagetables.KernelRW, pteValid | ptePresent | pteMATCC | pteWrite | pteDirty | pteGlobal, true},
		{"device", pagetables.ReadWrite | pagetables.Device, pteValid | ptePresent | pteWrite | pteDirty, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pte := f.NewPage(0x1_2000_0000, tc.flags)
			if got := pte & low; got != tc.want {
				t.Errorf("NewPage(%v) low bits = %#x, want %#x", tc.flags, uint64(got), uint64(tc.want))
			}
			if got := pte&pteNoExec != 0; got != tc.nx {
				t.Errorf("NewPage(%v) NX = %t, want %t", tc.flags, got, tc.nx)
			}
			if got := f.Address(pte); got != 0x1_2000_0000 {
				t.Errorf("Address = %v, want 0x120000000", got)
			}
			if got := f.Flags(pte); !pagetables.Equivalent(got, tc.flags) {
				t.Errorf("Flags = %v, not equivalent to %v", got, tc.flags)
			}
		})
	}
}

func TestTableEntry(t *testing.T) {
	var f Format
	pte := f.NewTable(0x9000)
	if uint64(pte) != 0x9000 {
		t.Errorf("NewTable = %#x, want the bare address", uint64(pte))
	}
	if !f.IsTable(pte) || f.Address(pte) != 0x9000 {
		t.Errorf("table entry not recognized")
	}
	if f.IsValid(0) {
		t.Errorf("zero entry is valid")
	}
}

func TestWindow(t *testing.T) {
	for _, tc := range []struct {
		v    addr.VirtAddr
		want addr.PhysAddr
		ok   bool
	}{
		{v: KernelOffset + 0x9000_0000, want: 0x9000_0000, ok: true},
		{v: 0x8000_0000_1fe0_01e0, want: 0x1fe0_01e0, ok: true},
		{v: 0x1000},
		{v: 0xffff_ffc0_0000_0000},
	} {
		got, ok := window(tc.v)
		if got != tc.want || ok != tc.ok {
			t.Errorf("window(%v) = %v, %t, want %v, %t", tc.v, got, ok, tc.want, tc.ok)
		}
	}
}

func TestUpperHalf(t *testing.T) {
	var f Format
	for v, want := range map[addr.VirtAddr]bool{
		0:                     false,
		0x3f_ffff_f000:        false,
		0xffff_ffc0_0000_0000: true,
		0xffff_ffff_ffff_f000: true,
	} {
		if got := f.UpperHalf(v); got != want {
			t.Errorf("UpperHalf(%v) = %t, want %t", v, got, want)
		}
		if got := v.Index(2) >= f.GlobalRootIndex(); got != want {
			t.Errorf("root index of %v in global range = %t, want %t", v, got, want)
		}
	}
}
