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
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

// Basic page entry bits.
const (
	pteValid    = 1 << 0
	pteDirty    = 1 << 1
	ptePLVUser  = 3 << 2
	pteMATMask  = 3 << 4
	pteMATCC    = 1 << 4
	pteGlobal   = 1 << 6
	ptePresent  = 1 << 7
	pteWrite    = 1 << 8
	pteNoRead   = 1 << 61
	pteNoExec   = 1 << 62
	pteRPLV     = 1 << 63
	pteAddrMask = 0x0000_ffff_ffff_f000
)

// upperHalf is the first address of the kernel half.
const upperHalf = 0xffff_ffc0_0000_0000

// Format is the LoongArch64 3-level, 4KB page table format. Directory
// entries hold the bare address of the next level.
type Format struct{}

// Name implements pagetables.Format.Name.
func (Format) Name() string { return "loongarch64" }

// Levels implements pagetables.Format.Levels.
func (Format) Levels() int { return 3 }

// GlobalRootIndex implements pagetables.Format.GlobalRootIndex.
func (Format) GlobalRootIndex() int { return 256 }

// SplitRoot implements pagetables.Format.SplitRoot.
func (Format) SplitRoot() bool { return false }

// UpperHalf implements pagetables.Format.UpperHalf.
func (Format) UpperHalf(v addr.VirtAddr) bool { return v >= upperHalf }

// IsValid implements pagetables.Format.IsValid.
func (Format) IsValid(pte pagetables.PTE) bool {
	return pte != 0
}

// IsTable implements pagetables.Format.IsTable.
func (Format) IsTable(pte pagetables.PTE) bool {
	return pte != 0
}

// Address implements pagetables.Format.Address.
func (Format) Address(pte pagetables.PTE) addr.PhysAddr {
	return addr.PhysAddr(pte & pteAddrMask)
}

// NewTable implements pagetables.Format.NewTable.
func (Format) NewTable(p addr.PhysAddr) pagetables.PTE {
	return pagetables.PTE(p) & pteAddrMask
}

// NewPage implements pagetables.Format.NewPage.
func (Format) NewPage(p addr.PhysAddr, flags pagetables.MappingFlags) pagetables.PTE {
	pte := pagetables.PTE(p)&pteAddrMask | pteValid | ptePresent
	if flags&pagetables.Device == 0 {
		pte |= pteMATCC
	}
	if flags&pagetables.Write != 0 {
		pte |= pteWrite | pteDirty
	}
	if flags&pagetables.User != 0 {
		pte |= ptePLVUser
	}
	if flags&pagetables.Execute == 0 {
		pte |= pteNoExec
	}
	if flags&pagetables.Global != 0 {
		pte |= pteGlobal
	}
	return pte
}

// Flags implements pagetables.Format.Flags.
func (Format) Flags(pte pagetables.PTE) pagetables.MappingFlags {
	var f pagetables.MappingFlags
	if pte&pteValid != 0 {
		f |= pagetables.Present | pagetables.Read
	}
	if pte&pteWrite != 0 {
		f |= pagetables.Write
	}
	if pte&pteDirty != 0 {
		f |= pagetables.Dirty
	}
	if pte&ptePLVUser == ptePLVUser {
		f |= pagetables.User
	}
	if pte&pteNoExec == 0 {
		f |= pagetables.Execute
	}
	if pte&pteGlobal != 0 {
		f |= pagetables.Global
	}
	if pte&pteMATMask == 0 {
		f |= pagetables.Device
	}
	return f
}
