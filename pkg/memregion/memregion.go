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

// Package memregion tracks the machine's physical memory map.
package memregion

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"polyhal.dev/hal/pkg/addr"
)

// Kind classifies a region.
type Kind int

const (
	// Usable memory may be handed to the frame allocator.
	Usable Kind = iota

	// Reserved memory holds firmware, the kernel image or boot structures.
	Reserved

	// Device memory is MMIO space.
	Device
)

// String implements fmt.Stringer.String.
func (k Kind) String() string {
	switch k {
	case Usable:
		return "usable"
	case Reserved:
		return "reserved"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "usable", "memory", "ram":
		return Usable, nil
	case "reserved":
		return Reserved, nil
	case "device", "mmio":
		return Device, nil
	default:
		return 0, fmt.Errorf("unknown region kind %q", s)
	}
}

// Region is a half-open physical range [Start, End).
type Region struct {
	Start addr.PhysAddr
	End   addr.PhysAddr
	Kind  Kind
	Name  string
}

// Length returns the region length in bytes.
func (r Region) Length() uint64 {
	return uint64(r.End - r.Start)
}

// Contains returns true if p lies within the region.
func (r Region) Contains(p addr.PhysAddr) bool {
	return r.Start <= p && p < r.End
}

// String implements fmt.Stringer.String.
func (r Region) String() string {
	return fmt.Sprintf("[%v, %v) %s %q", r.Start, r.End, r.Kind, r.Name)
}

// ErrOverlap is returned when a region intersects an existing one.
var ErrOverlap = errors.New("region overlaps an existing region")

func less(a, b Region) bool {
	return a.Start < b.Start
}

// Set is an ordered set of non-overlapping regions.
//
// Set is not safe for concurrent mutation; the memory map is built during
// boot on the primary core.
type Set struct {
	tree *btree.BTreeG[Region]
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{tree: btree.NewG(8, less)}
}

// Len returns the number of regions.
func (s *Set) Len() int {
	return s.tree.Len()
}

// Add inserts r. Empty regions are ignored.
func (s *Set) Add(r Region) error {
	if r.End < r.Start {
		return fmt.Errorf("region %v: end before start", r)
	}
	if r.End == r.Start {
		return nil
	}
	if s.overlaps(r.Start, r.End) {
		return fmt.Errorf("adding %v: %w", r, ErrOverlap)
	}
	s.tree.ReplaceOrInsert(r)
	return nil
}

func (s *Set) overlaps(start, end addr.PhysAddr) bool {
	found := false
	// The predecessor may extend into [start, end).
	s.tree.DescendLessOrEqual(Region{Start: start}, func(r Region) bool {
		found = r.End > start
		return false
	})
	if found {
		return true
	}
	s.tree.AscendGreaterOrEqual(Region{Start: start}, func(r Region) bool {
		found = r.Start < end
		return false
	})
	return found
}

// Find returns the region containing p.
func (s *Set) Find(p addr.PhysAddr) (Region, bool) {
	var (
		out   Region
		found bool
	)
	s.tree.DescendLessOrEqual(Region{Start: p}, func(r Region) bool {
		if r.Contains(p) {
			out, found = r, true
		}
		return false
	})
	return out, found
}

// Reserve carves [start, end) out of the usable regions that contain it and
// records it with the given name as Reserved. The range must lie entirely
// within one usable region.
func (s *Set) Reserve(start, end addr.PhysAddr, name string) error {
	r, ok := s.Find(start)
	if !ok || r.Kind != Usable || end > r.End || end <= start {
		return fmt.Errorf("reserving [%v, %v) %q: not within a usable region", start, end, name)
	}
	s.tree.Delete(r)
	for _, piece := range []Region{
		{Start: r.Start, End: start, Kind: Usable, Name: r.Name},
		{Start: start, End: end, Kind: Reserved, Name: name},
		{Start: end, End: r.End, Kind: Usable, Name: r.Name},
	} {
		if piece.End > piece.Start {
			s.tree.ReplaceOrInsert(piece)
		}
	}
	return nil
}

// Ascend calls fn for each region in address order until fn returns false.
func (s *Set) Ascend(fn func(Region) bool) {
	s.tree.Ascend(fn)
}

// Regions returns all regions in address order.
func (s *Set) Regions() []Region {
	out := make([]Region, 0, s.tree.Len())
	s.tree.Ascend(func(r Region) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Usable returns the usable regions in address order.
func (s *Set) Usable() []Region {
	var out []Region
	s.tree.Ascend(func(r Region) bool {
		if r.Kind == Usable {
			out = append(out, r)
		}
		return true
	})
	return out
}

// Span returns the lowest start and highest end over all regions of the
// given kinds.
func (s *Set) Span(kinds ...Kind) (start, end addr.PhysAddr, ok bool) {
	s.tree.Ascend(func(r Region) bool {
		for _, k := range kinds {
			if r.Kind != k {
				continue
			}
			if !ok || r.Start < start {
				start = r.Start
			}
			if !ok || r.End > end {
				end = r.End
			}
			ok = true
		}
		return true
	})
	return
}
