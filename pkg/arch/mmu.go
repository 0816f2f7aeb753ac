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

package arch

import (
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/pagetables"
)

// TableMMU is a cpu.MMU walking tables in a pagetables.Format.
type TableMMU struct {
	Format    pagetables.Format
	Allocator pagetables.Allocator

	// Root returns the root table translating v on c. ok is false if
	// translation is disabled, in which case addresses are physical.
	Root func(c *cpu.Core, v addr.VirtAddr) (root addr.PhysAddr, ok bool)

	// Window, if set, translates addresses that bypass the tables.
	Window func(v addr.VirtAddr) (addr.PhysAddr, bool)
}

// windowFlags are the rights of a direct window: kernel only, all access.
const windowFlags = pagetables.KernelRWX

// Walk implements cpu.MMU.Walk.
func (m *TableMMU) Walk(c *cpu.Core, v addr.VirtAddr) (addr.PhysAddr, pagetables.MappingFlags, bool) {
	if m.Window != nil {
		if p, ok := m.Window(v); ok {
			return p, windowFlags, true
		}
	}
	root, ok := m.Root(c, v)
	if !ok {
		return addr.PhysAddr(v), windowFlags, true
	}
	if root == 0 {
		return 0, 0, false
	}
	return pagetables.Walk(m.Format, m.Allocator, root, v)
}
