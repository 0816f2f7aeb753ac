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

// Package addr provides typed physical and virtual addresses.
package addr

import (
	"fmt"
)

const (
	// PageShift is the binary log of the base page size.
	PageShift = 12

	// PageSize is the base page size.
	PageSize = 1 << PageShift

	// PageMask masks the offset within a page.
	PageMask = PageSize - 1

	// EntryShift is the number of virtual address bits resolved per table
	// level.
	EntryShift = 9

	// EntriesPerTable is the number of entries in one table frame.
	EntriesPerTable = 1 << EntryShift
)

// PhysAddr is a physical address.
type PhysAddr uint64

// VirtAddr is a virtual address.
type VirtAddr uint64

// PhysPage is a physical frame number.
type PhysPage uint64

// VirtPage is a virtual page number.
type VirtPage uint64

// RoundDown returns the address rounded down to the nearest page boundary.
func (p PhysAddr) RoundDown() PhysAddr {
	return p &^ PageMask
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (p PhysAddr) RoundUp() (addr PhysAddr, ok bool) {
	addr = PhysAddr(uint64(p+PageMask) &^ PageMask)
	ok = addr >= p
	return
}

// IsPageAligned returns true if p is a multiple of PageSize.
func (p PhysAddr) IsPageAligned() bool {
	return p&PageMask == 0
}

// PageOffset returns the offset of p into its page.
func (p PhysAddr) PageOffset() uint64 {
	return uint64(p & PageMask)
}

// Add returns p advanced by n bytes.
func (p PhysAddr) Add(n uint64) PhysAddr {
	return p + PhysAddr(n)
}

// Page returns the frame containing p.
func (p PhysAddr) Page() PhysPage {
	return PhysPage(p >> PageShift)
}

// String implements fmt.Stringer.String.
func (p PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(p))
}

// Addr returns the first address of the frame.
func (pp PhysPage) Addr() PhysAddr {
	return PhysAddr(pp << PageShift)
}

// RoundDown returns the address rounded down to the nearest page boundary.
func (v VirtAddr) RoundDown() VirtAddr {
	return v &^ PageMask
}

// RoundUp returns the address rounded up to the nearest page boundary. ok is
// true iff rounding up did not wrap around.
func (v VirtAddr) RoundUp() (addr VirtAddr, ok bool) {
	addr = VirtAddr(uint64(v+PageMask) &^ PageMask)
	ok = addr >= v
	return
}

// IsPageAligned returns true if v is a multiple of PageSize.
func (v VirtAddr) IsPageAligned() bool {
	return v&PageMask == 0
}

// PageOffset returns the offset of v into its page.
func (v VirtAddr) PageOffset() uint64 {
	return uint64(v & PageMask)
}

// Add returns v advanced by n bytes.
func (v VirtAddr) Add(n uint64) VirtAddr {
	return v + VirtAddr(n)
}

// Page returns the page containing v.
func (v VirtAddr) Page() VirtPage {
	return VirtPage(v >> PageShift)
}

// Index returns the table index selected by v at the given level, where
// level 0 is the last (leaf) table.
func (v VirtAddr) Index(level int) int {
	return int((uint64(v) >> (PageShift + EntryShift*uint(level))) & (EntriesPerTable - 1))
}

// String implements fmt.Stringer.String.
func (v VirtAddr) String() string {
	return fmt.Sprintf("%#x", uint64(v))
}

// Addr returns the first address of the page.
func (vp VirtPage) Addr() VirtAddr {
	return VirtAddr(vp << PageShift)
}

// DirectMap is the fixed linear mapping of all physical memory into the
// kernel half of the address space.
type DirectMap struct {
	// Offset is the virtual address at which physical address zero
	// appears.
	Offset uint64
}

// Virt returns the linear alias of p.
func (d DirectMap) Virt(p PhysAddr) VirtAddr {
	return VirtAddr(uint64(p) + d.Offset)
}

// Phys returns the physical address aliased by v. ok is false if v lies below
// the linear map.
func (d DirectMap) Phys(v VirtAddr) (p PhysAddr, ok bool) {
	if uint64(v) < d.Offset {
		return 0, false
	}
	return PhysAddr(uint64(v) - d.Offset), true
}

// VirtRange is a half-open range of virtual addresses.
type VirtRange struct {
	Start VirtAddr
	End   VirtAddr
}

// Length returns the length of the range in bytes.
func (r VirtRange) Length() uint64 {
	return uint64(r.End - r.Start)
}

// Contains returns true if v is in the range.
func (r VirtRange) Contains(v VirtAddr) bool {
	return r.Start <= v && v < r.End
}

// WellFormed returns true if Start <= End.
func (r VirtRange) WellFormed() bool {
	return r.Start <= r.End
}

// IsPageAligned returns true if both bounds are page aligned.
func (r VirtRange) IsPageAligned() bool {
	return r.Start.IsPageAligned() && r.End.IsPageAligned()
}

// Pages returns the number of pages in a page-aligned range.
func (r VirtRange) Pages() uint64 {
	return r.Length() >> PageShift
}

// String implements fmt.Stringer.String.
func (r VirtRange) String() string {
	return fmt.Sprintf("[%#x, %#x)", uint64(r.Start), uint64(r.End))
}
