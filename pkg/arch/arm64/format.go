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
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

// Descriptor bits, with 4KB granule and 48-bit addresses.
const (
	pteValid    = 1 << 0
	pteNonBlock = 1 << 1
	pteAttrMask = 7 << 2
	pteUser     = 1 << 6
	pteReadOnly = 1 << 7
	pteInner    = 3 << 8
	pteAccessed = 1 << 10
	pteNotGlbl  = 1 << 11
	ptePXN      = 1 << 53
	pteUXN      = 1 << 54

	pteAddrMask = 0x0000_ffff_ffff_f000
)

// MAIR attribute indexes.
const (
	attrDevice = 0 << 2
	attrNormal = 1 << 2
)

// upperHalf is the first address translated through TTBR1_EL1.
const upperHalf = 0xffff_0000_0000_0000

// Format is the VMSAv8-64 stage 1 format.
type Format struct{}

// Name implements pagetables.Format.Name.
func (Format) Name() string { return "aarch64" }

// Levels implements pagetables.Format.Levels.
func (Format) Levels() int { return 4 }

// GlobalRootIndex implements pagetables.Format.GlobalRootIndex. User tables
// own every root slot; the kernel half has its own root.
func (Format) GlobalRootIndex() int { return addr.EntriesPerTable }

// SplitRoot implements pagetables.Format.SplitRoot.
func (Format) SplitRoot() bool { return true }

// UpperHalf implements pagetables.Format.UpperHalf.
func (Format) UpperHalf(v addr.VirtAddr) bool { return v >= upperHalf }

// IsValid implements pagetables.Format.IsValid.
func (Format) IsValid(pte pagetables.PTE) bool {
	return pte&pteValid != 0
}

// IsTable implements pagetables.Format.IsTable.
func (Format) IsTable(pte pagetables.PTE) bool {
	return pte&(pteValid|pteNonBlock) == pteValid|pteNonBlock
}

// Address implements pagetables.Format.Address.
func (Format) Address(pte pagetables.PTE) addr.PhysAddr {
	return addr.PhysAddr(pte & pteAddrMask)
}

// NewTable implements pagetables.Format.NewTable.
func (Format) NewTable(p addr.PhysAddr) pagetables.PTE {
	return pagetables.PTE(p)&pteAddrMask | pteValid | pteNonBlock
}

// NewPage implements pagetables.Format.NewPage.
func (Format) NewPage(p addr.PhysAddr, flags pagetables.MappingFlags) pagetables.PTE {
	pte := pagetables.PTE(p)&pteAddrMask | pteValid | pteNonBlock | pteAccessed
	if flags&pagetables.Device != 0 {
		pte |= attrDevice
	} else {
		pte |= attrNormal | pteInner
	}
	if flags&pagetables.Write == 0 {
		pte |= pteReadOnly
	}
	user := flags&pagetables.User != 0
	if user {
		pte |= pteUser
	}
	switch {
	case flags&pagetables.Execute == 0:
		pte |= ptePXN | pteUXN
	case user:
		pte |= ptePXN
	default:
		pte |= pteUXN
	}
	if flags&pagetables.Global == 0 {
		pte |= pteNotGlbl
	}
	return pte
}

// Flags implements pagetables.Format.Flags.
func (Format) Flags(pte pagetables.PTE) pagetables.MappingFlags {
	f := pagetables.Present | pagetables.Read
	if pte&pteReadOnly == 0 {
		f |= pagetables.Write
	}
	if pte&pteUser != 0 {
		f |= pagetables.User
	}
	if pte&(ptePXN|pteUXN) != ptePXN|pteUXN {
		f |= pagetables.Execute
	}
	if pte&pteAccessed != 0 {
		f |= pagetables.Accessed
	}
	if pte&pteNotGlbl == 0 {
		f |= pagetables.Global
	}
	if pte&pteAttrMask == attrDevice {
		f |= pagetables.Device
	}
	return f
}
