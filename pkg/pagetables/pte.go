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

package pagetables

import (
	"polyhal.dev/hal/pkg/addr"
)

// PTE is a page table entry in its hardware encoding.
type PTE uint64

// PTEs is a collection of entries: one table frame.
type PTEs [addr.EntriesPerTable]PTE

// Format describes one architecture's page table layout. The walk, map and
// release algorithms are shared; only entry encodings, depth and the
// placement of the kernel half differ.
type Format interface {
	// Name returns the architecture name.
	Name() string

	// Levels returns the number of table levels (3 or 4).
	Levels() int

	// GlobalRootIndex is the first root slot owned by the kernel-global
	// mapping. Slots [0, GlobalRootIndex) belong to each table instance.
	GlobalRootIndex() int

	// SplitRoot is true if kernel-half addresses are translated through a
	// separate root register rather than the upper root slots.
	SplitRoot() bool

	// UpperHalf returns true for addresses in the kernel-global half.
	UpperHalf(v addr.VirtAddr) bool

	// IsValid returns true if the entry is populated.
	IsValid(pte PTE) bool

	// IsTable returns true if a non-leaf entry points to another table.
	IsTable(pte PTE) bool

	// Address returns the frame the entry points to.
	Address(pte PTE) addr.PhysAddr

	// NewTable returns an entry pointing to the table at p.
	NewTable(p addr.PhysAddr) PTE

	// NewPage returns a leaf entry mapping p with the given flags.
	NewPage(p addr.PhysAddr, flags MappingFlags) PTE

	// Flags returns the portable flags of a leaf entry.
	Flags(pte PTE) MappingFlags
}

// TLB invalidates cached translations on the current core. There is no
// cross-core invalidation.
type TLB interface {
	// FlushVAddr invalidates the translation of one page.
	FlushVAddr(v addr.VirtAddr)

	// FlushAll invalidates every translation.
	FlushAll()
}

// NoFlush is a TLB for tables that are not active on any core.
type NoFlush struct{}

// FlushVAddr implements TLB.FlushVAddr.
func (NoFlush) FlushVAddr(addr.VirtAddr) {}

// FlushAll implements TLB.FlushAll.
func (NoFlush) FlushAll() {}
