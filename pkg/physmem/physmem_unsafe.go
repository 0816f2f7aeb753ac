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

package physmem

import (
	"unsafe"

	"polyhal.dev/hal/pkg/addr"
)

// Pointer returns a host pointer to the size bytes at p. It panics with a
// *BusError if the range is outside the arena or p is not 8-byte aligned.
func (a *Arena) Pointer(p addr.PhysAddr, size uintptr) unsafe.Pointer {
	if p&7 != 0 {
		panic(&BusError{Addr: p, Length: uint64(size)})
	}
	b := a.MustBytes(p, uint64(size))
	return unsafe.Pointer(&b[0])
}

// PhysFor returns the physical address of a host pointer into the arena.
func (a *Arena) PhysFor(ptr unsafe.Pointer) (addr.PhysAddr, bool) {
	if len(a.mem) == 0 {
		return 0, false
	}
	start := uintptr(unsafe.Pointer(&a.mem[0]))
	off := uintptr(ptr) - start
	if uintptr(ptr) < start || off >= uintptr(len(a.mem)) {
		return 0, false
	}
	return a.base.Add(uint64(off)), true
}

// Load64 reads the aligned word at p.
func (a *Arena) Load64(p addr.PhysAddr) uint64 {
	return *(*uint64)(a.Pointer(p, 8))
}

// Store64 writes the aligned word at p.
func (a *Arena) Store64(p addr.PhysAddr, v uint64) {
	*(*uint64)(a.Pointer(p, 8)) = v
}
