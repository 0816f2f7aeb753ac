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
	"testing"

	"github.com/google/go-cmp/cmp"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/frame/frametest"
	"polyhal.dev/hal/pkg/physmem"
)

const offset = 0xffff_ffc0_0000_0000

type sysBinder struct{}

func (sysBinder) Bind(c *cpu.Core, base addr.VirtAddr) { c.Sys.PerCPU = uint64(base) }
func (sysBinder) Bound(c *cpu.Core) addr.VirtAddr     { return addr.VirtAddr(c.Sys.PerCPU) }

type counters struct {
	Ticks  uint64
	Nested uint32
	Flags  uint32
}

func newManager(t *testing.T, tmpl *Template) (*Manager, *frametest.Counting) {
	t.Helper()
	mem, err := physmem.New(0x8000_0000, 64*addr.PageSize)
	if err != nil {
		t.Fatalf("physmem.New failed: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	frames := frametest.New(frametest.NewBump(0x8001_0000, 0x8004_0000))
	return NewManager(Config{
		Template:   tmpl,
		Memory:     mem,
		DirectMap:  addr.DirectMap{Offset: offset},
		Frames:     frames,
		Static:     0x8000_0000,
		StaticSize: addr.PageSize,
		Binder:     sysBinder{},
	}), frames
}

func TestIsolation(t *testing.T) {
	tmpl := NewTemplate()
	id := Declare(tmpl, "cpu_id", uint64(0xffff))
	stats := Declare(tmpl, "stats", counters{Flags: 7})
	m, frames := newManager(t, tmpl)

	a0, err := m.InitArea(0)
	if err != nil {
		t.Fatalf("InitArea(0) failed: %v", err)
	}
	a1, err := m.InitArea(1)
	if err != nil {
		t.Fatalf("InitArea(1) failed: %v", err)
	}
	if a0.Phys() != 0x8000_0000 {
		t.Errorf("boot core area at %v, want the static region", a0.Phys())
	}
	if frames.Allocs() != 1 {
		t.Errorf("secondary area allocations = %d, want 1", frames.Allocs())
	}

	// Both start from the template.
	if got := id.Get(a1); got != 0xffff {
		t.Errorf("initial cpu_id = %#x, want 0xffff", got)
	}
	id.Set(a0, 0)
	id.Set(a1, 1)
	stats.Set(a0, counters{Ticks: 42, Nested: 1, Flags: 7})
	if got := id.Get(a0); got != 0 {
		t.Errorf("core 0 cpu_id = %d, want 0", got)
	}
	if got := id.Get(a1); got != 1 {
		t.Errorf("core 1 cpu_id = %d, want 1", got)
	}
	if diff := cmp.Diff(counters{Flags: 7}, stats.Get(a1)); diff != "" {
		t.Errorf("core 1 stats changed by core 0 write (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(counters{Ticks: 42, Nested: 1, Flags: 7}, stats.Get(a0)); diff != "" {
		t.Errorf("core 0 stats mismatch (-want +got):\n%s", diff)
	}
}

func TestLayout(t *testing.T) {
	tmpl := NewTemplate()
	Declare(tmpl, "a", uint8(1))
	b := Declare(tmpl, "b", uint64(2))
	if b.Offset() != HeaderSize+8 {
		t.Errorf("b.Offset() = %d, want %d", b.Offset(), HeaderSize+8)
	}
	if got := tmpl.Size(); got != HeaderSize+16 {
		t.Errorf("Size() = %d, want %d", got, HeaderSize+16)
	}
	want := []VarInfo{
		{Name: "a", Offset: HeaderSize, Size: 1},
		{Name: "b", Offset: HeaderSize + 8, Size: 8},
	}
	if diff := cmp.Diff(want, tmpl.Vars()); diff != "" {
		t.Errorf("Vars() mismatch (-want +got):\n%s", diff)
	}

	tmpl.Seal()
	defer func() {
		if recover() == nil {
			t.Errorf("Declare after Seal did not panic")
		}
	}()
	Declare(tmpl, "late", uint32(0))
}

func TestHeaderAndLocal(t *testing.T) {
	tmpl := NewTemplate()
	id := Declare(tmpl, "cpu_id", uint64(0))
	m, _ := newManager(t, tmpl)
	a, err := m.InitArea(2)
	if err != nil {
		t.Fatalf("InitArea failed: %v", err)
	}
	id.Set(a, 2)

	h := a.Header()
	want := Header{Self: uint64(a.Base()), Valid: uint64(a.Base())}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if uint64(a.Base()) != offset+uint64(a.Phys()) {
		t.Errorf("Base() = %v, want linear alias of %v", a.Base(), a.Phys())
	}

	c := cpu.New(2)
	if _, err := m.Local(c); !errors.Is(err, ErrNotBound) {
		t.Errorf("Local before Bind = %v, want ErrNotBound", err)
	}
	if err := m.Bind(c); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	local, err := m.Local(c)
	if err != nil {
		t.Fatalf("Local failed: %v", err)
	}
	if got := id.Get(local); got != 2 {
		t.Errorf("cpu_id via register = %d, want 2", got)
	}
	local.SetKernelSP(0x1234)
	if got := a.Header().KernelSP; got != 0x1234 {
		t.Errorf("KernelSP through second view = %#x, want 0x1234", got)
	}
}

func TestInitTwice(t *testing.T) {
	m, _ := newManager(t, NewTemplate())
	if _, err := m.InitArea(0); err != nil {
		t.Fatalf("InitArea failed: %v", err)
	}
	if _, err := m.InitArea(0); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second InitArea = %v, want ErrAlreadyInitialized", err)
	}
}

func TestLargeArea(t *testing.T) {
	tmpl := NewTemplate()
	Declare(tmpl, "stack", [600]uint64{})
	m, _ := newManager(t, tmpl)
	if _, err := m.InitArea(0); err == nil {
		t.Errorf("InitArea(0) with an oversized template succeeded")
	}
	// The bump allocator hands out single frames only.
	if _, err := m.InitArea(1); err == nil {
		t.Errorf("InitArea(1) without a contiguous allocator succeeded")
	}
}
