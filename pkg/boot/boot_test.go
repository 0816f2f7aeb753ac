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

package boot

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	_ "polyhal.dev/hal/pkg/arch/archs"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/memregion"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/ring0"
	"polyhal.dev/hal/pkg/trap"
)

const (
	memBase = addr.PhysAddr(0x8000_0000)
	memSize = 4 << 20
)

func memoryMap(t *testing.T) *memregion.Set {
	t.Helper()
	set := memregion.NewSet()
	for _, r := range []memregion.Region{
		{Start: 0x1000_0000, End: 0x1000_1000, Kind: memregion.Device, Name: "uart"},
		{Start: memBase, End: memBase.Add(memSize), Kind: memregion.Usable, Name: "ram"},
	} {
		if err := set.Add(r); err != nil {
			t.Fatalf("Add(%v): %v", r, err)
		}
	}
	return set
}

var nopHooks = trap.HandlerFunc(func(trap.Frame, trap.Type) {})

func baseConfig(t *testing.T, a arch.Arch) Config {
	return Config{
		Arch:          a,
		Regions:       memoryMap(t),
		Cores:         4,
		TimerInterval: 100,
		Hooks:         nopHooks,
		Timeout:       5 * time.Second,
		MaxInterval:   10 * time.Millisecond,
	}
}

func boot(t *testing.T, cfg Config) *Machine {
	t.Helper()
	var l Loader
	m, err := l.Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("no panic, want %q", want)
		}
		if s, ok := r.(string); !ok || !strings.Contains(s, want) {
			t.Errorf("panic %v, want %q", r, want)
		}
	}()
	fn()
}

func TestBoot(t *testing.T) {
	for _, name := range arch.Names() {
		t.Run(name, func(t *testing.T) {
			a, err := arch.Lookup(name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			tmpl := percpu.NewTemplate()
			id := percpu.Declare(tmpl, "id", uint64(0))

			var (
				mu      sync.Mutex
				entered []int
				mainOK  bool
			)
			cfg := baseConfig(t, a)
			cfg.PerCPU = tmpl
			cfg.Main = func(c *ring0.CPU) error {
				if got := c.Kernel().CPUs(); got != cfg.Cores {
					t.Errorf("main entered with %d cores online, want %d", got, cfg.Cores)
				}
				id.Set(c.Area, uint64(c.ID()))
				mu.Lock()
				defer mu.Unlock()
				mainOK = c.ID() == 0
				return nil
			}
			cfg.Secondary = func(c *ring0.CPU) error {
				id.Set(c.Area, uint64(c.ID()))
				mu.Lock()
				defer mu.Unlock()
				entered = append(entered, c.ID())
				return nil
			}
			m := boot(t, cfg)

			if !mainOK {
				t.Errorf("main did not run on core 0")
			}
			sort.Ints(entered)
			if diff := cmp.Diff([]int{1, 2, 3}, entered); diff != "" {
				t.Errorf("secondary entries mismatch (-want +got):\n%s", diff)
			}

			k := m.Kernel
			bases := make(map[addr.VirtAddr]int)
			for core := 0; core < cfg.Cores; core++ {
				c, ok := k.CPU(core)
				if !ok {
					t.Fatalf("core %d not online", core)
				}
				local, err := k.PerCPU.Local(c.Core)
				if err != nil {
					t.Fatalf("Local(%d): %v", core, err)
				}
				if local.Base() != c.Area.Base() {
					t.Errorf("core %d: Local base %v, want %v", core, local.Base(), c.Area.Base())
				}
				if got := id.Get(local); got != uint64(core) {
					t.Errorf("core %d: id = %d", core, got)
				}
				if prev, ok := bases[c.Area.Base()]; ok {
					t.Errorf("cores %d and %d share per-CPU area %v", prev, core, c.Area.Base())
				}
				bases[c.Area.Base()] = core
			}

			c0, _ := k.CPU(0)
			if c0.Area.Phys() != memBase {
				t.Errorf("boot core area at %v, want static region %v", c0.Area.Phys(), memBase)
			}
			r, ok := m.Regions.Find(memBase)
			if !ok || r.Kind != memregion.Reserved || r.Name != StaticPerCPUName {
				t.Errorf("Find(%v) = %v, %t, want reserved %s", memBase, r, ok, StaticPerCPUName)
			}
			if m.Memory.Base() != memBase || m.Memory.Size() != memSize {
				t.Errorf("memory [%v, +%#x), want [%v, +%#x)", m.Memory.Base(), m.Memory.Size(), memBase, memSize)
			}
			if st := m.Frames.(*frame.Bitmap).Stats(); st.Free >= st.Total {
				t.Errorf("Stats() = %+v, want frames in use", st)
			}
		})
	}
}

func TestIRQsEnabled(t *testing.T) {
	a, _ := arch.Lookup("riscv64")
	var (
		mu   sync.Mutex
		sets = make(map[int]*devices.Set)
	)
	cfg := baseConfig(t, a)
	cfg.Cores = 2
	cfg.IRQs = []int{5}
	cfg.Devices = func(core int) *devices.Set {
		d := devices.NewSimSet(100)
		mu.Lock()
		sets[core] = d
		mu.Unlock()
		return d
	}
	boot(t, cfg)
	for core, d := range sets {
		irq := d.IRQ.(*devices.SimIRQ)
		if !irq.Raise(5) {
			t.Errorf("core %d: IRQ 5 masked", core)
		}
		if irq.Raise(6) {
			t.Errorf("core %d: IRQ 6 enabled", core)
		}
	}
	if len(sets) != 2 {
		t.Errorf("devices created for %d cores, want 2", len(sets))
	}
}

func TestEntryErrors(t *testing.T) {
	a, _ := arch.Lookup("aarch64")
	errMain := errors.New("main failed")
	errSecondary := errors.New("secondary failed")
	cfg := baseConfig(t, a)
	cfg.Main = func(*ring0.CPU) error { return errMain }
	cfg.Secondary = func(c *ring0.CPU) error {
		if c.ID() == 2 {
			return errSecondary
		}
		return nil
	}
	var l Loader
	_, err := l.Init(context.Background(), cfg)
	if !errors.Is(err, errMain) || !errors.Is(err, errSecondary) {
		t.Errorf("Init = %v, want both entry errors", err)
	}
}

func TestSecondaryTimeout(t *testing.T) {
	a, _ := arch.Lookup("x86_64")
	cfg := baseConfig(t, a)
	cfg.Cores = 3
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.Devices = func(core int) *devices.Set {
		if core == 2 {
			time.Sleep(200 * time.Millisecond)
		}
		return devices.NewSimSet(100)
	}
	cfg.Main = func(*ring0.CPU) error {
		t.Errorf("main entered before every core was online")
		return nil
	}
	var l Loader
	if _, err := l.Init(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "of 3 cores online") {
		t.Errorf("Init = %v, want timeout", err)
	}
}

func TestNoUsableMemory(t *testing.T) {
	a, _ := arch.Lookup("loongarch64")
	cfg := baseConfig(t, a)
	cfg.Regions = memregion.NewSet()
	if err := cfg.Regions.Add(memregion.Region{Start: 0x1000_0000, End: 0x1000_1000, Kind: memregion.Device}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var l Loader
	if _, err := l.Init(context.Background(), cfg); err == nil {
		t.Errorf("Init succeeded without usable memory")
	}
}

func TestInitTwicePanics(t *testing.T) {
	a, _ := arch.Lookup("riscv64")
	var l Loader
	cfg := baseConfig(t, a)
	cfg.Cores = 1
	m, err := l.Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()
	mustPanic(t, "called twice", func() {
		l.Init(context.Background(), baseConfig(t, a))
	})
}

func TestGlobalInit(t *testing.T) {
	a, _ := arch.Lookup("riscv64")
	cfg := baseConfig(t, a)
	cfg.Cores = 2
	m, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()
	mustPanic(t, "called twice", func() {
		Init(context.Background(), baseConfig(t, a))
	})
}
