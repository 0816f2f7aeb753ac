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
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

// Entry bits.
const (
	ptePresent      = 1 << 0
	pteWrite        = 1 << 1
	pteUser         = 1 << 2
	pteWriteThrough = 1 << 3
	pteCacheDisable = 1 << 4
	pteAccessed     = 1 << 5
	pteDirty        = 1 << 6
	pteHuge         = 1 << 7
	pteGlobal       = 1 << 8
	pteNoExecute    = 1 << 63

	pteAddrMask = 0x000f_ffff_ffff_f000
)

// upperHalf is the first canonical address of the kernel half.
const upperHalf = 0xffff_8000_0000_0000

// Format is the 4-level long mode page table format.
type Format struct{}

// Name implements pagetables.Format.Name.
func (Format) Name() string { return "x86_64" }

// Levels implements pagetables.Format.Levels.
func (Format) Levels() int { return 4 }

// GlobalRootIndex implements pagetables.Format.GlobalRootIndex.
func (Format) GlobalRootIndex() int { return 256 }

// SplitRoot implements pagetables.Format.SplitRoot.
func (Format) SplitRoot() bool { return false }

// UpperHalf implements pagetables.Format.UpperHalf.
func (Format) UpperHalf(v addr.VirtAddr) bool { return v >= upperHalf }

// IsValid implements pagetables.Format.IsValid.
func (Format) IsValid(pte pagetables.PTE) bool {
	return pte&ptePresent != 0
}

// IsTable implements pagetables.Format.IsTable.
func (Format) IsTable(pte pagetables.PTE) bool {
	return pte&ptePresent != 0 && pte&pteHuge == 0
}

// Address implements pagetables.Format.Address.
func (Format) Address(pte pagetables.PTE) addr.PhysAddr {
	return addr.PhysAddr(pte & pteAddrMask)
}

// NewTable implements pagetables.Format.NewTable. Intermediate entries grant
// everything; the leaf decides.
func (Format) NewTable(p addr.PhysAddr) pagetables.PTE {
	return pagetables.PTE(p)&pteAddrMask | ptePresent | pteWrite | pteUser
}

// NewPage implements pagetables.Format.NewPage.
func (Format) NewPage(p addr.PhysAddr, flags pagetables.MappingFlags) pagetables.PTE {
	pte := pagetables.PTE(p)&pteAddrMask | ptePresent
	if flags&pagetables.Write != 0 {
		pte |= pteWrite
	}
	if flags&pagetables.User != 0 {
		pte |= pteUser
	}
	if flags&pagetables.Accessed != 0 {
		pte |= pteAccessed
	}
	if flags&pagetables.Dirty != 0 {
		pte |= pteDirty
	}
	if flags&pagetables.Global != 0 {
		pte |= pteGlobal
	}
	if flags&pagetables.Execute == 0 {
		pte |= pteNoExecute
	}
	if flags&pagetables.Device != 0 {
		pte |= pteCacheDisable | pteWriteThrough
	}
	return pte
}

// Flags implements pagetables.Format.Flags.
func (Format) Flags(pte pagetables.PTE) pagetables.MappingFlags {
	var f pagetables.MappingFlags
	if pte&ptePresent != 0 {
		f |= pagetables.Present | pagetables.Read
	}
	if pte&pteWrite != 0 {
		f |= pagetables.Write
	}
	if pte&pteUser != 0 {
		f |= pagetables.User
	}
	if pte&pteNoExecute == 0 {
		f |= pagetables.Execute
	}
	if pte&pteAccessed != 0 {
		f |= pagetables.Accessed
	}
	if pte&pteDirty != 0 {
		f |= pagetables.Dirty
	}
	if pte&pteGlobal != 0 {
		f |= pagetables.Global
	}
	if pte&pteCacheDisable != 0 {
		f |= pagetables.Device
	}
	return f
}
