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
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

// Sv39 entry bits.
const (
	pteValid    = 1 << 0
	pteRead     = 1 << 1
	pteWrite    = 1 << 2
	pteExecute  = 1 << 3
	pteUser     = 1 << 4
	pteGlobal   = 1 << 5
	pteAccessed = 1 << 6
	pteDirty    = 1 << 7

	ppnShift = 10
	ppnMask  = 1<<44 - 1
)

// upperHalf is the first address of the kernel half.
const upperHalf = 0xffff_ffc0_0000_0000

// Format is the Sv39 page table format.
type Format struct{}

// Name implements pagetables.Format.Name.
func (Format) Name() string { return "riscv64" }

// Levels implements pagetables.Format.Levels.
func (Format) Levels() int { return 3 }

// GlobalRootIndex implements pagetables.Format.GlobalRootIndex.
func (Format) GlobalRootIndex() int { return 256 }

// SplitRoot implements pagetables.Format.SplitRoot.
func (Format) SplitRoot() bool { return false }

// UpperHalf implements pagetables.Format.UpperHalf.
func (Format) UpperHalf(v addr.VirtAddr) bool { return v >= upperHalf }

// IsValid implements pagetables.Format.IsValid. An entry naming physical
// frame 0 is never valid, so frame 0 cannot be mapped.
func (Format) IsValid(pte pagetables.PTE) bool {
	return pte&pteValid != 0 && pte > 0xff
}

// IsTable implements pagetables.Format.IsTable.
func (Format) IsTable(pte pagetables.PTE) bool {
	return pte&pteValid != 0 && pte&(pteRead|pteWrite|pteExecute) == 0
}

// Address implements pagetables.Format.Address.
func (Format) Address(pte pagetables.PTE) addr.PhysAddr {
	return addr.PhysAddr((uint64(pte) >> ppnShift & ppnMask) << addr.PageShift)
}

// NewTable implements pagetables.Format.NewTable.
func (Format) NewTable(p addr.PhysAddr) pagetables.PTE {
	return pagetables.PTE(uint64(p)>>2) | pteValid
}

// NewPage implements pagetables.Format.NewPage.
func (Format) NewPage(p addr.PhysAddr, flags pagetables.MappingFlags) pagetables.PTE {
	pte := pagetables.PTE(uint64(p) >> 2)
	if flags&pagetables.Present != 0 {
		pte |= pteValid | pteRead | pteAccessed
	}
	if flags&pagetables.Read != 0 {
		pte |= pteRead | pteAccessed
	}
	if flags&pagetables.Write != 0 {
		pte |= pteRead | pteWrite | pteDirty | pteAccessed
	}
	if flags&pagetables.Execute != 0 {
		pte |= pteExecute | pteAccessed
	}
	if flags&pagetables.User != 0 {
		pte |= pteUser
	}
	if flags&pagetables.Global != 0 {
		pte |= pteGlobal
	}
	return pte
}

// Flags implements pagetables.Format.Flags.
func (Format) Flags(pte pagetables.PTE) pagetables.MappingFlags {
	var f pagetables.MappingFlags
	for _, b := range []struct {
		bit  pagetables.PTE
		flag pagetables.MappingFlags
	}{
		{pteValid, pagetables.Present},
		{pteRead, pagetables.Read},
		{pteWrite, pagetables.Write},
		{pteExecute, pagetables.Execute},
		{pteUser, pagetables.User},
		{pteGlobal, pagetables.Global},
		{pteAccessed, pagetables.Accessed},
		{pteDirty, pagetables.Dirty},
	} {
		if pte&b.bit != 0 {
			f |= b.flag
		}
	}
	return f
}
