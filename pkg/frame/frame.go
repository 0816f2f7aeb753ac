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

// Package frame defines the physical frame allocator capability consumed by
// the HAL, and a bitmap allocator over the machine's usable memory.
package frame

import (
	"errors"

	"polyhal.dev/hal/pkg/addr"
)

// ErrNoMemory is returned when no frame is available.
var ErrNoMemory = errors.New("out of physical memory")

// Allocator hands out single physical frames. Frames need not be zeroed.
type Allocator interface {
	// Alloc returns the address of a free frame.
	Alloc() (addr.PhysAddr, error)

	// Dealloc returns a frame obtained from Alloc.
	Dealloc(p addr.PhysAddr)
}

// ContiguousAllocator is implemented by allocators able to return runs of
// physically contiguous frames.
type ContiguousAllocator interface {
	Allocator

	// AllocContiguous returns the first of n contiguous free frames.
	AllocContiguous(n uint64) (addr.PhysAddr, error)

	// DeallocContiguous returns n frames starting at p.
	DeallocContiguous(p addr.PhysAddr, n uint64)
}

// Funcs adapts a pair of client functions to Allocator. AllocFunc reports
// exhaustion by returning false.
type Funcs struct {
	AllocFunc   func() (addr.PhysAddr, bool)
	DeallocFunc func(addr.PhysAddr)
}

// Alloc implements Allocator.Alloc.
func (f Funcs) Alloc() (addr.PhysAddr, error) {
	p, ok := f.AllocFunc()
	if !ok {
		return 0, ErrNoMemory
	}
	return p, nil
}

// Dealloc implements Allocator.Dealloc.
func (f Funcs) Dealloc(p addr.PhysAddr) {
	f.DeallocFunc(p)
}
