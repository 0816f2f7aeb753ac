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

package percpu

import (
	"errors"
	"fmt"
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/physmem"
)

// ErrAlreadyInitialized is returned by a second InitArea for the same core.
var ErrAlreadyInitialized = errors.New("per-CPU area already initialized")

// ErrNotBound is returned when a core's per-CPU register does not point to
// a valid area.
var ErrNotBound = errors.New("per-CPU register not bound")

// Binder binds an area to the architecture's per-CPU register.
type Binder interface {
	// Bind points the per-CPU register of c at base.
	Bind(c *cpu.Core, base addr.VirtAddr)

	// Bound returns the current value of the per-CPU register of c.
	Bound(c *cpu.Core) addr.VirtAddr
}

// Config configures a Manager.
type Config struct {
	// Template is the per-CPU image. It is sealed by NewManager.
	Template *Template

	// Memory holds the areas.
	Memory *physmem.Arena

	// DirectMap gives the kernel virtual alias of each area.
	DirectMap addr.DirectMap

	// Frames allocates areas for secondary cores.
	Frames frame.Allocator

	// Static is the reserved boot-core area, usable before the frame
	// allocator is initialized.
	Static addr.PhysAddr

	// StaticSize is the size of the reserved boot-core area.
	StaticSize uint64

	// Binder accesses the per-CPU register.
	Binder Binder
}

// Manager creates and locates per-CPU areas.
type Manager struct {
	cfg Config

	mu    sync.Mutex
	areas map[int]*Area
}

// NewManager returns a Manager.
func NewManager(cfg Config) *Manager {
	cfg.Template.Seal()
	return &Manager{cfg: cfg, areas: make(map[int]*Area)}
}

// Template returns the per-CPU image.
func (m *Manager) Template() *Template {
	return m.cfg.Template
}

// InitArea creates the area of the given core: the boot core (0) uses the
// static reserved region, other cores allocate frames. The template is
// copied after the header and the header is filled in.
func (m *Manager) InitArea(core int) (*Area, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.areas[core]; ok {
		return nil, fmt.Errorf("core %d: %w", core, ErrAlreadyInitialized)
	}

	size, ok := addr.PhysAddr(m.cfg.Template.Size()).RoundUp()
	if !ok {
		return nil, fmt.Errorf("per-CPU template too large")
	}
	pages := uint64(size) >> addr.PageShift

	var phys addr.PhysAddr
	switch {
	case core == 0:
		if uint64(size) > m.cfg.StaticSize {
			return nil, fmt.Errorf("per-CPU area of %#x bytes does not fit the static region of %#x bytes", uint64(size), m.cfg.StaticSize)
		}
		phys = m.cfg.Static
	case pages == 1:
		p, err := m.cfg.Frames.Alloc()
		if err != nil {
			return nil, fmt.Errorf("core %d: allocating per-CPU area: %w", core, err)
		}
		phys = p
	default:
		ca, ok := m.cfg.Frames.(frame.ContiguousAllocator)
		if !ok {
			return nil, fmt.Errorf("core %d: per-CPU area needs %d contiguous frames", core, pages)
		}
		p, err := ca.AllocContiguous(pages)
		if err != nil {
			return nil, fmt.Errorf("core %d: allocating per-CPU area: %w", core, err)
		}
		phys = p
	}

	mem, err := m.cfg.Memory.Bytes(phys, uint64(size))
	if err != nil {
		return nil, err
	}
	clear(mem)
	copy(mem[HeaderSize:], m.cfg.Template.image())

	a := &Area{
		core: core,
		phys: phys,
		virt: m.cfg.DirectMap.Virt(phys),
		mem:  mem[:m.cfg.Template.Size()],
	}
	a.setWord(SelfOffset, uint64(a.virt))
	a.setWord(ValidOffset, uint64(a.virt))
	m.areas[core] = a
	return a, nil
}

// Area returns the area of the given core.
func (m *Manager) Area(core int) (*Area, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.areas[core]
	return a, ok
}

// Bind points the per-CPU register of c at its area.
func (m *Manager) Bind(c *cpu.Core) error {
	a, ok := m.Area(c.ID)
	if !ok {
		return fmt.Errorf("core %d: binding before InitArea: %w", c.ID, ErrNotBound)
	}
	m.cfg.Binder.Bind(c, a.virt)
	return nil
}

// Local returns the area of the core c runs on, found through the per-CPU
// register alone.
func (m *Manager) Local(c *cpu.Core) (*Area, error) {
	base := m.cfg.Binder.Bound(c)
	phys, ok := m.cfg.DirectMap.Phys(base)
	if !ok {
		return nil, fmt.Errorf("core %d: register holds %v: %w", c.ID, base, ErrNotBound)
	}
	mem, err := m.cfg.Memory.Bytes(phys, m.cfg.Template.Size())
	if err != nil {
		return nil, fmt.Errorf("core %d: register holds %v: %w", c.ID, base, ErrNotBound)
	}
	a := &Area{core: c.ID, phys: phys, virt: base, mem: mem}
	if h := a.Header(); h.Self != uint64(base) || h.Valid != uint64(base) {
		return nil, fmt.Errorf("core %d: no area at %v: %w", c.ID, base, ErrNotBound)
	}
	return a, nil
}
