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
	"unsafe"

	"polyhal.dev/hal/pkg/addr"
)

// PhysicalFor implements Allocator.PhysicalFor.
func (a *FrameAllocator) PhysicalFor(ptes *PTEs) addr.PhysAddr {
	p, ok := a.mem.PhysFor(unsafe.Pointer(ptes))
	if !ok {
		panic(fmt.Sprintf("table %p is not in physical memory", ptes))
	}
	return p
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *FrameAllocator) LookupPTEs(physical addr.PhysAddr) *PTEs {
	return (*PTEs)(a.mem.Pointer(physical, unsafe.Sizeof(PTEs{})))
}
