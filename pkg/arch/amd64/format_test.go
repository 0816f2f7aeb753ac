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

	"polyhal.dev/hal/pkg/pagetables"
)

func TestNewPageBits(t *testing.T) {
	var f Format
	for _, tc := range []struct {
		name  string
		flags pagetables.MappingFlags
		want  pagetables.PTE
	}{
		{"read-only", pagetables.ReadOnly, ptePresent | pteNoExecute},
		{"read-write", pagetables.ReadWrite, ptePresent | pteWrite | pteNoExecute},
		{"user-exec", pagetables.UserReadExec, ptePresent | pteUser},
		{"kernel-global", pagetables.KernelRWX, ptePresent | pteWrite | pteGlobal},
		{"device", pagetables.ReadWrite | pagetables.Device, ptePresent | pteWrite | pteNoExecute | pteCacheDisable | pteWriteThrough},
		{"accessed-dirty", pagetables.ReadWrite | pagetables.Accessed | pagetables.Dirty, ptePresent | pteWrite | pteNoExecute | pteAccessed | pteDirty},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pte := f.NewPage(0x80000, tc.flags)
			if got := pte &^ pteAddrMask; got != tc.want {
				t.Errorf("NewPage(%v) = %#x, want %#x", tc.flags, uint64(got), uint64(tc.want))
			}
			if got := f.Flags(pte); !pagetables.Equivalent(got, tc.flags) {
				t.Errorf("Flags = %v, not equivalent to %v", got, tc.flags)
			}
		})
	}
}

func TestExactRoundTrip(t *testing.T) {
	var f Format
	want := pagetables.Present | pagetables.Read | pagetables.Write
	pte := f.NewPage(0x80000, want)
	if got := f.Flags(pte); got != want {
		t.Errorf("Flags(NewPage(%v)) = %v", want, got)
	}
	if got := f.Address(pte); got != 0x80000 {
		t.Errorf("Address = %v, want 0x80000", got)
	}
}

func TestTableEntry(t *testing.T) {
	var f Format
	pte := f.NewTable(0x1234000)
	if !f.IsTable(pte) || f.Address(pte) != 0x1234000 {
		t.Errorf("NewTable = %#x", uint64(pte))
	}
	if f.IsTable(pte | pteHuge) {
		t.Errorf("huge entry is a table")
	}
	if f.IsValid(0) {
		t.Errorf("zero entry is valid")
	}
}
