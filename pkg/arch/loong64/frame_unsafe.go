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

package loong64

import (
	"unsafe"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/physmem"
	"polyhal.dev/hal/pkg/trap"
)

// FrameSize implements trap.Arch.FrameSize.
func (Stub) FrameSize() uint64 {
	return uint64(unsafe.Sizeof(Frame{}))
}

// FrameAt implements trap.Arch.FrameAt.
func (Stub) FrameAt(mem *physmem.Arena, p addr.PhysAddr) trap.Frame {
	return (*Frame)(mem.Pointer(p, unsafe.Sizeof(Frame{})))
}
