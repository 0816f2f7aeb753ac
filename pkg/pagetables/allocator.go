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
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/physmem"
)

// Allocator is used to allocate and map PTEs.
//
// Note that allocators may be called concurrently.
type Allocator interface {
	// NewPTEs returns a new set of zeroed PTEs and its physical address.
	NewPTEs() (*PTEs, error)

	// PhysicalFor gives the physical address for a set of PTEs.
	PhysicalFor(ptes *PTEs) addr.PhysAddr

	// LookupPTEs looks up PTEs by physical address.
	LookupPTEs(physical addr.PhysAddr) *PTEs

	// FreePTEs marks a set of PTEs a freed.
	FreePTEs(ptes *PTEs)
}

// FrameAllocator allocates table frames from a frame.Allocator and accesses
// them through the physical memory arena.
type FrameAllocator struct {
	frames frame.Allocator
	mem    *physmem.Arena
}

// NewFrameAllocator returns an allocator backed by frames and mem.
func NewFrameAllocator(frames frame.Allocator, mem *physmem.Arena) *FrameAllocator {
	return &FrameAllocator{frames: frames, mem: mem}
}

// NewPTEs implements Allocator.NewPTEs.
func (a *FrameAllocator) NewPTEs() (*PTEs, error) {
	p, err := a.frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("allocating table frame: %w", err)
	}
	if err := a.mem.Zero(p, addr.PageSize); err != nil {
		a.frames.Dealloc(p)
		return nil, err
	}
	return a.LookupPTEs(p), nil
}

// FreePTEs implements Allocator.FreePTEs.
func (a *FrameAllocator) FreePTEs(ptes *PTEs) {
	a.frames.Dealloc(a.PhysicalFor(ptes))
}

// Memory returns the arena holding the tables.
func (a *FrameAllocator) Memory() *physmem.Arena {
	return a.mem
}
