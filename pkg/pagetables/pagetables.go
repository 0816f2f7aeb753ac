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

// Package pagetables provides a generic implementation of multi-level
// hardware page tables.
//
// A single walk, map and release algorithm drives every architecture; each
// architecture supplies a Format describing its entry encoding. Tables live
// in simulated physical memory in exactly the layout the MMU reads.
//
// PageTables provides no internal locking. Mutations of the shared kernel
// half must be serialized by the caller.
package pagetables

import (
	"fmt"

	"polyhal.dev/hal/pkg/addr"
)

// Options configure a new set of page tables.
type Options struct {
	// Format is the architecture's entry format.
	Format Format

	// Allocator provides table frames.
	Allocator Allocator

	// TLB is flushed after every change. Nil means NoFlush.
	TLB TLB

	// Kernel, if set, provides the kernel-global half shared by the new
	// tables.
	Kernel *PageTables
}

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate nodes.
	Allocator Allocator

	format Format
	tlb    TLB

	// kernel provides the shared global half, if any.
	kernel *PageTables

	// root is the pagetable root.
	//
	// For same context switching reasons as amd64, the root is kept in a
	// frame from the allocator.
	root *PTEs

	// rootPhysical is the cached physical address of the root.
	rootPhysical addr.PhysAddr
}

// New returns new PageTables.
func New(opts Options) (*PageTables, error) {
	if opts.Format == nil || opts.Allocator == nil {
		panic("pagetables.New: format and allocator are required")
	}
	if opts.Kernel != nil && opts.Kernel.format.Name() != opts.Format.Name() {
		panic(fmt.Sprintf("pagetables.New: %s tables cannot share a %s kernel half", opts.Format.Name(), opts.Kernel.format.Name()))
	}
	p := &PageTables{
		Allocator: opts.Allocator,
		format:    opts.Format,
		tlb:       opts.TLB,
		kernel:    opts.Kernel,
	}
	if p.tlb == nil {
		p.tlb = NoFlush{}
	}
	root, err := p.Allocator.NewPTEs()
	if err != nil {
		return nil, err
	}
	p.root = root
	p.rootPhysical = p.Allocator.PhysicalFor(root)
	p.Restore()
	return p, nil
}

// Root returns the physical address of the root table.
func (p *PageTables) Root() addr.PhysAddr {
	return p.rootPhysical
}

// Format returns the entry format.
func (p *PageTables) Format() Format {
	return p.format
}

// Kernel returns the tables providing the global half, or nil.
func (p *PageTables) Kernel() *PageTables {
	return p.kernel
}

// SetTLB changes the TLB flushed by subsequent operations, typically when
// the tables are activated on a different core.
func (p *PageTables) SetTLB(t TLB) {
	if t == nil {
		t = NoFlush{}
	}
	p.tlb = t
}

// Restore copies the kernel-global root slots from the kernel tables, so
// that this instance observes every kernel mapping. It is a no-op for
// architectures with a split root and for tables without a kernel half.
func (p *PageTables) Restore() {
	if p.kernel == nil || p.format.SplitRoot() {
		return
	}
	g := p.format.GlobalRootIndex()
	copy(p.root[g:], p.kernel.root[g:])
}

func checkAligned(op string, v addr.VirtAddr, phys addr.PhysAddr) {
	if !v.IsPageAligned() || !phys.IsPageAligned() {
		panic(fmt.Sprintf("pagetables.%s: unaligned mapping %v -> %v", op, v, phys))
	}
}

// MapPage installs a leaf mapping v -> phys, allocating any missing
// intermediate tables. An existing mapping for v is overwritten.
//
// If a table allocation fails, the tables allocated by this call are freed
// again and the error is returned; the tables are left unchanged.
//
// Addresses in the global half are mapped as by MapKernel.
//
// Precondition: v and phys must be page aligned.
func (p *PageTables) MapPage(v addr.VirtAddr, phys addr.PhysAddr, flags MappingFlags) error {
	checkAligned("MapPage", v, phys)
	if p.format.UpperHalf(v) {
		return p.MapKernel(v, phys, flags)
	}
	return p.mapLeaf(v, phys, flags)
}

// MapKernel installs a mapping in the kernel-global half. When these tables
// share the half of a kernel instance, the mapping is made there and becomes
// visible to every table sharing it.
//
// Precondition: v and phys must be page aligned and v must be in the global
// half.
func (p *PageTables) MapKernel(v addr.VirtAddr, phys addr.PhysAddr, flags MappingFlags) error {
	checkAligned("MapKernel", v, phys)
	if !p.format.UpperHalf(v) {
		panic(fmt.Sprintf("pagetables.MapKernel: %v is not a kernel address", v))
	}
	if p.kernel == nil {
		return p.mapLeaf(v, phys, flags)
	}
	if err := p.kernel.MapKernel(v, phys, flags); err != nil {
		return err
	}
	if !p.format.SplitRoot() {
		// The kernel may have created the root slot just now.
		i := v.Index(p.format.Levels() - 1)
		p.root[i] = p.kernel.root[i]
	}
	p.tlb.FlushVAddr(v)
	return nil
}

func (p *PageTables) mapLeaf(v addr.VirtAddr, phys addr.PhysAddr, flags MappingFlags) error {
	pte, err := p.walkAlloc(v)
	if err != nil {
		return fmt.Errorf("mapping %v: %w", v, err)
	}
	*pte = p.format.NewPage(phys, flags)
	p.tlb.FlushVAddr(v)
	return nil
}

// MapRange maps every page of r to consecutive frames starting at phys. On
// failure, pages mapped by this call are unmapped again.
func (p *PageTables) MapRange(r addr.VirtRange, phys addr.PhysAddr, flags MappingFlags) error {
	if !r.WellFormed() || !r.IsPageAligned() {
		panic(fmt.Sprintf("pagetables.MapRange: bad range %v", r))
	}
	for i := uint64(0); i < r.Pages(); i++ {
		off := i << addr.PageShift
		if err := p.MapPage(r.Start.Add(off), phys.Add(off), flags); err != nil {
			for j := uint64(0); j < i; j++ {
				p.UnmapPage(r.Start.Add(j << addr.PageShift))
			}
			return err
		}
	}
	return nil
}

// UnmapPage removes the mapping for v. Unmapping an address that is not
// mapped is a no-op.
//
// Precondition: v must be page aligned.
func (p *PageTables) UnmapPage(v addr.VirtAddr) {
	if !v.IsPageAligned() {
		panic(fmt.Sprintf("pagetables.UnmapPage: unaligned address %v", v))
	}
	pte, _ := p.resolve(v).lookup(v)
	if pte == nil {
		return
	}
	*pte = 0
	p.tlb.FlushVAddr(v)
}

// Translate returns the physical address and flags that v maps to. ok is
// false if v is not mapped.
func (p *PageTables) Translate(v addr.VirtAddr) (phys addr.PhysAddr, flags MappingFlags, ok bool) {
	pte, _ := p.resolve(v).lookup(v)
	if pte == nil || !p.format.IsValid(*pte) {
		return 0, 0, false
	}
	return p.format.Address(*pte).Add(v.PageOffset()), p.format.Flags(*pte), true
}

// Release frees every table reachable from the instance-owned root slots,
// children before parents, and clears those slots. The kernel-global slots
// are never touched. Leaf frames are owned by the caller and are not freed.
func (p *PageTables) Release() {
	for i := 0; i < p.format.GlobalRootIndex(); i++ {
		pte := p.root[i]
		if p.format.IsTable(pte) {
			child := p.Allocator.LookupPTEs(p.format.Address(pte))
			p.freeTable(child, p.format.Levels()-2)
		}
		p.root[i] = 0
	}
}

// freeTable frees t, a table at the given level, after its children.
func (p *PageTables) freeTable(t *PTEs, level int) {
	if level > 0 {
		for i := range t {
			if p.format.IsTable(t[i]) {
				p.freeTable(p.Allocator.LookupPTEs(p.format.Address(t[i])), level-1)
			}
		}
	}
	p.Allocator.FreePTEs(t)
}

// Destroy releases the tables and frees the root. p must not be used
// afterwards.
func (p *PageTables) Destroy() {
	p.Release()
	p.Allocator.FreePTEs(p.root)
	p.root = nil
	p.rootPhysical = 0
}
