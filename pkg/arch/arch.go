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

// Package arch binds the per-architecture pieces of the HAL together and
// provides a registry of supported architectures.
//
// Architecture packages register themselves from init; import
// polyhal.dev/hal/pkg/arch/archs to link all of them.
package arch

import (
	"fmt"
	"sort"
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/kcontext"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/trap"
)

// Arch is one instruction set architecture.
type Arch interface {
	// Name returns the canonical name, e.g. "riscv64".
	Name() string

	// Format returns the page table format.
	Format() pagetables.Format

	// DirectMap returns the kernel's linear mapping of physical memory.
	DirectMap() addr.DirectMap

	// LinearMapInTables returns true if the linear mapping must be
	// installed in the kernel page tables. Architectures with a hardware
	// direct window return false.
	LinearMapInTables() bool

	// Trap returns the trap stub.
	Trap() trap.Arch

	// Switcher returns the kernel context switch primitive.
	Switcher() kcontext.Switcher

	// Binder returns the per-CPU register accessor.
	Binder() percpu.Binder

	// SetKernelRoot installs the kernel page table on c. Architectures
	// without a separate kernel root register make it the active table.
	SetKernelRoot(c *cpu.Core, root addr.PhysAddr)

	// MMU returns a translation unit reading tables through a.
	MMU(a pagetables.Allocator) cpu.MMU

	// ResetCore puts c in the architecture's boot state.
	ResetCore(c *cpu.Core)
}

var (
	mu    sync.RWMutex
	archs = make(map[string]Arch)
)

// Register makes an architecture available by name. It panics if the name
// is taken.
func Register(a Arch) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := archs[a.Name()]; ok {
		panic(fmt.Sprintf("arch %q registered twice", a.Name()))
	}
	archs[a.Name()] = a
}

// Lookup returns the named architecture.
func Lookup(name string) (Arch, error) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := archs[aliases(name)]
	if !ok {
		return nil, fmt.Errorf("unknown architecture %q (have %v)", name, namesLocked())
	}
	return a, nil
}

// Names returns the registered architectures, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(archs))
	for n := range archs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// aliases maps Go GOARCH names to canonical names.
func aliases(name string) string {
	switch name {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "loong64":
		return "loongarch64"
	default:
		return name
	}
}
