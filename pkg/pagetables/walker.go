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
	"fmt"

	"polyhal.dev/hal/pkg/addr"
)

// created records a table allocated by a walk, for rollback.
type created struct {
	slot  *PTE
	table *PTEs
}

// resolve returns the instance whose root translates v.
func (p *PageTables) resolve(v addr.VirtAddr) *PageTables {
	if p.kernel != nil && p.format.SplitRoot() && p.format.UpperHalf(v) {
		return p.kernel
	}
	return p
}

// lookup walks to the leaf slot for v without allocating. If a level is
// absent it returns nil and the level at which the walk stopped.
func (p *PageTables) lookup(v addr.VirtAddr) (*PTE, int) {
	return lookupFrom(p.format, p.Allocator, p.root, v)
}

func lookupFrom(f Format, a Allocator, table *PTEs, v addr.VirtAddr) (*PTE, int) {
	for level := f.Levels() - 1; level > 0; level-- {
		pte := table[v.Index(level)]
		if !f.IsTable(pte) {
			return nil, level
		}
		table = a.LookupPTEs(f.Address(pte))
	}
	return &table[v.Index(0)], 0
}

// walkAlloc walks to the leaf slot for v, allocating missing tables from the
// root towards the leaf. On allocation failure every table allocated by this
// walk is unlinked and freed, leaf side first.
func (p *PageTables) walkAlloc(v addr.VirtAddr) (*PTE, error) {
	var made []created
	table := p.root
	for level := p.format.Levels() - 1; level > 0; level-- {
		slot := &table[v.Index(level)]
		if p.format.IsTable(*slot) {
			table = p.Allocator.LookupPTEs(p.format.Address(*slot))
			continue
		}
		if p.format.IsValid(*slot) {
			panic(fmt.Sprintf("pagetables: %v is covered by a level %d block mapping", v, level))
		}
		child, err := p.Allocator.NewPTEs()
		if err != nil {
			for i := len(made) - 1; i >= 0; i-- {
				*made[i].slot = 0
				p.Allocator.FreePTEs(made[i].table)
			}
			return nil, err
		}
		*slot = p.format.NewTable(p.Allocator.PhysicalFor(child))
		made = append(made, created{slot: slot, table: child})
		table = child
	}
	return &table[v.Index(0)], nil
}

// Walk translates v starting from the table at root, as the MMU does. It
// reads the tables only through a.
func Walk(f Format, a Allocator, root addr.PhysAddr, v addr.VirtAddr) (phys addr.PhysAddr, flags MappingFlags, ok bool) {
	pte, _ := lookupFrom(f, a, a.LookupPTEs(root), v)
	if pte == nil || !f.IsValid(*pte) {
		return 0, 0, false
	}
	return f.Address(*pte).Add(v.PageOffset()), f.Flags(*pte), true
}

// Mappings calls fn for every valid leaf mapping with a virtual address in
// r, in address order, until fn returns false. Absent tables are skipped
// whole.
func (p *PageTables) Mappings(r addr.VirtRange, fn func(v addr.VirtAddr, phys addr.PhysAddr, flags MappingFlags) bool) {
	v := uint64(r.Start.RoundDown())
	for v < uint64(r.End) {
		va := addr.VirtAddr(v)
		pte, level := p.resolve(va).lookup(va)
		span := uint64(addr.PageSize)
		if pte == nil {
			span = uint64(1) << (addr.PageShift + addr.EntryShift*uint(level))
		} else if p.format.IsValid(*pte) {
			if !fn(va, p.format.Address(*pte), p.format.Flags(*pte)) {
				return
			}
		}
		next := (v &^ (span - 1)) + span
		if next <= v {
			return
		}
		v = next
	}
}
